package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/classroom-service/internal/domain"
	"github.com/cwrk-planet/classroom-service/internal/store"
)

const (
	DefaultRoomCapacity = 30
	DefaultGraceWindow  = 24 * time.Hour
)

type RoomConfig struct {
	DefaultCapacity int
	// GraceWindow is how long past its date a lecture keeps its room.
	GraceWindow time.Duration
	Now         func() time.Time
}

// RoomService keeps one room per live lecture and reclaims the rest.
type RoomService struct {
	store *store.Store
	cfg   RoomConfig
	log   *slog.Logger
}

func NewRoomService(st *store.Store, cfg RoomConfig) *RoomService {
	if cfg.DefaultCapacity <= 0 {
		cfg.DefaultCapacity = DefaultRoomCapacity
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = DefaultGraceWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RoomService{
		store: st,
		cfg:   cfg,
		log:   slog.Default().With("component", "rooms"),
	}
}

// RoomWithLecture is a room whose lecture projection was re-derived from the
// lecture record at read time.
type RoomWithLecture struct {
	domain.Room
	Lecture *domain.Lecture `json:"lecture,omitempty"`
}

func lectureRef(lec domain.Lecture) *domain.LectureRef {
	return &domain.LectureRef{
		ID:        lec.ID,
		Name:      lec.Name,
		TeacherID: lec.TeacherID,
		Status:    lec.Status,
	}
}

// ManageRoomForLecture creates the lecture's room or rewrites it in place.
// Live participants and createdAt of an existing room are kept.
func (s *RoomService) ManageRoomForLecture(ctx context.Context, lec domain.Lecture) (*domain.Room, error) {
	roomID := domain.RoomIDForLecture(lec.ID)

	capacity := lec.MaxParticipants
	if capacity <= 0 {
		capacity = s.cfg.DefaultCapacity
	}
	status := domain.RoomScheduled
	if lec.Status == domain.LectureInProgress {
		status = domain.RoomOccupied
	}

	fields := store.Patch{
		"id":             roomID,
		"name":           "Room for " + lec.Name,
		"capacity":       capacity,
		"status":         status,
		"features":       domain.AllRoomFeatures(),
		"currentLecture": lectureRef(lec),
	}

	_, exists, err := s.store.FindOne(ctx, store.CollectionRooms, store.Query{"id": roomID})
	if err != nil {
		return nil, err
	}

	var rec store.Record
	if exists {
		var ok bool
		rec, ok, err = s.store.Update(ctx, store.CollectionRooms, store.Query{"id": roomID}, fields)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: room %s", domain.ErrUpdateFailed, roomID)
		}
		s.log.Debug("room updated", "room", roomID, "lecture", lec.ID)
	} else {
		now := s.cfg.Now().UTC()
		fresh := store.Record(fields)
		fresh["participants"] = []domain.Participant{}
		fresh["createdAt"] = now
		fresh["updatedAt"] = now.Format(time.RFC3339Nano)
		rec, err = s.store.Insert(ctx, store.CollectionRooms, fresh)
		if err != nil {
			return nil, err
		}
		s.log.Info("room created", "room", roomID, "lecture", lec.ID, "capacity", capacity)
	}

	room, err := store.Decode[domain.Room](rec)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// CleanupExpiredRooms deletes rooms whose lecture is gone, cancelled, or
// older than the grace window, and returns the deleted room ids. Rooms whose
// reference was cleared on completion are matched through their room id.
func (s *RoomService) CleanupExpiredRooms(ctx context.Context) ([]string, error) {
	lectures, err := s.lecturesByID(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := s.store.Find(ctx, store.CollectionRooms, nil)
	if err != nil {
		return nil, err
	}

	now := s.cfg.Now()
	var removed []string
	for _, rec := range recs {
		room, err := store.Decode[domain.Room](rec)
		if err != nil {
			return removed, fmt.Errorf("decode room %s: %w", rec.ID(), err)
		}
		lectureID, ok := room.LectureID()
		if !ok {
			continue
		}

		reason := expiryReason(lectures[lectureID], now, s.cfg.GraceWindow)
		if reason == "" {
			continue
		}
		if _, err := s.store.Delete(ctx, store.CollectionRooms, store.Query{"id": room.ID}); err != nil {
			return removed, fmt.Errorf("delete room %s: %w", room.ID, err)
		}
		s.log.Info("room removed", "room", room.ID, "lecture", lectureID, "reason", reason)
		removed = append(removed, room.ID)
	}
	return removed, nil
}

func expiryReason(lec *domain.Lecture, now time.Time, grace time.Duration) string {
	switch {
	case lec == nil:
		return "lecture not found"
	case lec.Status == domain.LectureCancelled:
		return "lecture cancelled"
	case now.Sub(lec.Date) > grace:
		return "lecture expired"
	default:
		return ""
	}
}

// UpdateRoomStatus applies a lecture status to the room that references the
// lecture. A lecture without a room is not an error.
func (s *RoomService) UpdateRoomStatus(ctx context.Context, lectureID string, status domain.LectureStatus) error {
	rec, ok, err := s.store.FindOne(ctx, store.CollectionRooms, store.Query{"currentLecture.id": lectureID})
	if err != nil {
		return err
	}
	if !ok {
		s.log.Info("no room for lecture", "lecture", lectureID)
		return nil
	}
	room, err := store.Decode[domain.Room](rec)
	if err != nil {
		return err
	}
	return s.applyLectureStatus(ctx, room, status)
}

// propagate is the transition side of UpdateRoomStatus: the room is found by
// the lecture's roomId and only touched while it still points at the lecture.
func (s *RoomService) propagate(ctx context.Context, lec domain.Lecture) error {
	roomID := lec.RoomID
	if roomID == "" {
		roomID = domain.RoomIDForLecture(lec.ID)
	}
	rec, ok, err := s.store.FindOne(ctx, store.CollectionRooms, store.Query{"id": roomID})
	if err != nil {
		return err
	}
	if !ok {
		s.log.Warn("lecture room missing", "lecture", lec.ID, "room", roomID)
		return nil
	}
	room, err := store.Decode[domain.Room](rec)
	if err != nil {
		return err
	}
	if room.CurrentLecture == nil || room.CurrentLecture.ID != lec.ID {
		return nil
	}
	return s.applyLectureStatus(ctx, room, lec.Status)
}

func (s *RoomService) applyLectureStatus(ctx context.Context, room domain.Room, status domain.LectureStatus) error {
	patch := store.Patch{}
	if rs, ok := domain.RoomStatusFor(status); ok {
		patch["status"] = rs
	}
	if status.Terminal() {
		patch["currentLecture"] = nil
	} else if room.CurrentLecture != nil {
		ref := *room.CurrentLecture
		ref.Status = status
		patch["currentLecture"] = ref
	}

	_, ok, err := s.store.Update(ctx, store.CollectionRooms, store.Query{"id": room.ID}, patch)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: room %s", domain.ErrUpdateFailed, room.ID)
	}
	s.log.Info("room status derived", "room", room.ID, "lecture_status", status, "room_status", patch["status"])
	return nil
}

func (s *RoomService) lecturesByID(ctx context.Context) (map[string]*domain.Lecture, error) {
	recs, err := s.store.Find(ctx, store.CollectionEvents, nil)
	if err != nil {
		return nil, err
	}
	lectures, err := store.DecodeAll[domain.Lecture](recs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*domain.Lecture, len(lectures))
	for i := range lectures {
		out[lectures[i].ID] = &lectures[i]
	}
	return out, nil
}

// hydrate re-derives the lecture projection of room from the lecture record,
// dropping the reference when the lecture is gone. Nothing is written back.
func hydrate(room domain.Room, lectures map[string]*domain.Lecture) RoomWithLecture {
	if room.CurrentLecture == nil {
		return RoomWithLecture{Room: room}
	}
	lec, ok := lectures[room.CurrentLecture.ID]
	if !ok {
		room.CurrentLecture = nil
		return RoomWithLecture{Room: room}
	}
	ref := *room.CurrentLecture
	ref.Status = lec.Status
	room.CurrentLecture = &ref
	return RoomWithLecture{Room: room, Lecture: lec}
}

func (s *RoomService) GetRoomsWithLectures(ctx context.Context) ([]RoomWithLecture, error) {
	lectures, err := s.lecturesByID(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := s.store.Find(ctx, store.CollectionRooms, nil)
	if err != nil {
		return nil, err
	}
	rooms, err := store.DecodeAll[domain.Room](recs)
	if err != nil {
		return nil, err
	}
	out := make([]RoomWithLecture, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, hydrate(r, lectures))
	}
	return out, nil
}

func (s *RoomService) GetRoomByID(ctx context.Context, id string) (*RoomWithLecture, error) {
	rec, ok, err := s.store.FindOne(ctx, store.CollectionRooms, store.Query{"id": id})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, id)
	}
	room, err := store.Decode[domain.Room](rec)
	if err != nil {
		return nil, err
	}

	lectures := map[string]*domain.Lecture{}
	if room.CurrentLecture != nil {
		lrec, found, err := s.store.FindOne(ctx, store.CollectionEvents, store.Query{"id": room.CurrentLecture.ID})
		if err != nil {
			return nil, err
		}
		if found {
			lec, err := store.Decode[domain.Lecture](lrec)
			if err != nil {
				return nil, err
			}
			lectures[lec.ID] = &lec
		}
	}
	out := hydrate(room, lectures)
	return &out, nil
}

// ListRooms returns one page of hydrated rooms, newest first.
func (s *RoomService) ListRooms(ctx context.Context, limit int, cursor string) ([]RoomWithLecture, string, error) {
	if _, err := parseRoomCursor(cursor); err != nil {
		return nil, "", err
	}
	rooms, err := s.GetRoomsWithLectures(ctx)
	if err != nil {
		return nil, "", err
	}
	return pageRooms(rooms, limit, cursor)
}

// IsNotFound reports whether err means a lecture or room is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrLectureNotFound) || errors.Is(err, domain.ErrRoomNotFound)
}
