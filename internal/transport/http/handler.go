package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cwrk-planet/classroom-service/internal/domain"
	"github.com/cwrk-planet/classroom-service/internal/service"
	"github.com/cwrk-planet/classroom-service/internal/store"
	httpmw "github.com/cwrk-planet/classroom-service/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	lectureSvc *service.LectureService
	roomSvc    *service.RoomService
	memberSvc  *service.MemberService
	store      *store.Store
	log        *slog.Logger
}

func NewHandler(lectures *service.LectureService, rooms *service.RoomService, members *service.MemberService, st *store.Store) *Handler {
	return &Handler{
		lectureSvc: lectures,
		roomSvc:    rooms,
		memberSvc:  members,
		store:      st,
		log:        slog.Default().With("component", "http"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes. Anything unknown is a 500
// and gets logged.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrLectureNotFound),
		errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrNotInRoom):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrRoomFull),
		errors.Is(err, domain.ErrUpdateFailed):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidLecture),
		errors.Is(err, service.ErrInvalidCursor),
		errors.Is(err, store.ErrMissingID):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.log.Error("handler."+op, slog.Any("err", err))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func caller(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	u, ok := httpmw.UserFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing identity"})
	}
	return u, ok
}

// GET /api/lectures?status=
func (h *Handler) ListLectures(w http.ResponseWriter, r *http.Request) {
	status := domain.LectureStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unknown status " + strconv.Quote(string(status))})
		return
	}
	items, err := h.lectureSvc.List(r.Context(), status)
	if err != nil {
		h.writeError(w, "ListLectures", err)
		return
	}
	if items == nil {
		items = []domain.Lecture{}
	}
	writeJSON(w, http.StatusOK, LecturesResponse{Items: items})
}

// POST /api/lectures
func (h *Handler) ScheduleLecture(w http.ResponseWriter, r *http.Request) {
	u, ok := caller(w, r)
	if !ok {
		return
	}
	var req LectureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	lec, err := h.lectureSvc.Schedule(r.Context(), u, req.input())
	if err != nil {
		h.writeError(w, "ScheduleLecture", err)
		return
	}
	writeJSON(w, http.StatusCreated, lec)
}

// GET /api/lectures/{id}
func (h *Handler) GetLecture(w http.ResponseWriter, r *http.Request) {
	lec, err := h.lectureSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "GetLecture", err)
		return
	}
	writeJSON(w, http.StatusOK, lec)
}

// PATCH /api/lectures/{id}
func (h *Handler) UpdateLecture(w http.ResponseWriter, r *http.Request) {
	u, ok := caller(w, r)
	if !ok {
		return
	}
	var req LectureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	lec, err := h.lectureSvc.UpdateDetails(r.Context(), u, chi.URLParam(r, "id"), req.input())
	if err != nil {
		h.writeError(w, "UpdateLecture", err)
		return
	}
	writeJSON(w, http.StatusOK, lec)
}

// POST /api/lectures/{id}/status
func (h *Handler) TransitionLecture(w http.ResponseWriter, r *http.Request) {
	u, ok := caller(w, r)
	if !ok {
		return
	}
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	lec, err := h.lectureSvc.TransitionAs(r.Context(), u, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeError(w, "TransitionLecture", err)
		return
	}
	writeJSON(w, http.StatusOK, lec)
}

// GET /api/rooms?limit=&cursor=
// Without paging parameters every room is returned.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("limit") == "" && q.Get("cursor") == "" {
		rooms, err := h.roomSvc.GetRoomsWithLectures(r.Context())
		if err != nil {
			h.writeError(w, "ListRooms", err)
			return
		}
		if rooms == nil {
			rooms = []service.RoomWithLecture{}
		}
		writeJSON(w, http.StatusOK, RoomsListResponse{Items: rooms})
		return
	}

	limit := 0
	if s := q.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	rooms, next, err := h.roomSvc.ListRooms(r.Context(), limit, q.Get("cursor"))
	if err != nil {
		h.writeError(w, "ListRooms", err)
		return
	}
	if rooms == nil {
		rooms = []service.RoomWithLecture{}
	}
	writeJSON(w, http.StatusOK, RoomsListResponse{Items: rooms, NextCursor: next})
}

// GET /api/rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.roomSvc.GetRoomByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "GetRoom", err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// POST /api/rooms/cleanup
func (h *Handler) CleanupRooms(w http.ResponseWriter, r *http.Request) {
	u, ok := caller(w, r)
	if !ok {
		return
	}
	if u.Role != domain.RoleAdmin && u.Role != domain.RoleTeacher {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: domain.ErrForbidden.Error()})
		return
	}
	deleted, err := h.roomSvc.CleanupExpiredRooms(r.Context())
	if err != nil {
		h.writeError(w, "CleanupRooms", err)
		return
	}
	if deleted == nil {
		deleted = []string{}
	}
	writeJSON(w, http.StatusOK, CleanupResponse{Deleted: deleted})
}

// GET /api/rooms/{id}/participants
func (h *Handler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	items, err := h.memberSvc.ListParticipants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "GetParticipants", err)
		return
	}
	if items == nil {
		items = []domain.Participant{}
	}
	writeJSON(w, http.StatusOK, ParticipantsResponse{Items: items})
}

// POST /api/rooms/{id}/join
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	u, ok := caller(w, r)
	if !ok {
		return
	}
	roomID := chi.URLParam(r, "id")
	p, err := h.memberSvc.AddParticipant(r.Context(), roomID, u)
	if err != nil {
		h.writeError(w, "JoinRoom", err)
		return
	}
	writeJSON(w, http.StatusOK, JoinRoomResponse{RoomID: roomID, Participant: *p})
}

// POST /api/rooms/{id}/leave
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	u, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.memberSvc.RemoveParticipant(r.Context(), chi.URLParam(r, "id"), u.ID); err != nil {
		h.writeError(w, "LeaveRoom", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// storeCollection resolves the {collection} parameter of the store endpoint.
// Unknown collections are a 404; write is only allowed for rooms, since
// lectures change through the lecture routes alone.
func storeCollection(w http.ResponseWriter, r *http.Request, write bool) (string, bool) {
	name := chi.URLParam(r, "collection")
	switch name {
	case store.CollectionRooms:
		return name, true
	case store.CollectionEvents:
		if !write {
			return name, true
		}
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "collection " + name + " is read-only"})
		return "", false
	default:
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown collection " + strconv.Quote(name)})
		return "", false
	}
}

// GET /api/store/{collection}
func (h *Handler) GetCollection(w http.ResponseWriter, r *http.Request) {
	collection, ok := storeCollection(w, r, false)
	if !ok {
		return
	}
	recs, err := h.store.Find(r.Context(), collection, nil)
	if err != nil {
		h.writeError(w, "GetCollection", err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// PUT /api/store/rooms
// Records are upserted by id; rooms absent from the body are kept.
func (h *Handler) PutCollection(w http.ResponseWriter, r *http.Request) {
	collection, ok := storeCollection(w, r, true)
	if !ok {
		return
	}
	var recs []store.Record
	if err := json.NewDecoder(r.Body).Decode(&recs); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	if err := h.store.UpsertAll(r.Context(), collection, recs); err != nil {
		h.writeError(w, "PutCollection", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.log.Warn("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
