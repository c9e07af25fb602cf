package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cwrk-planet/classroom-service/internal/domain"
	"github.com/cwrk-planet/classroom-service/internal/store"
)

// RoomNotifier is told when a lecture reaches a terminal status so live
// sessions in its room can be closed.
type RoomNotifier interface {
	RoomCleared(roomID string, status domain.LectureStatus)
}

type LectureInput struct {
	Name            string    `json:"name"`
	Date            time.Time `json:"date"`
	Description     string    `json:"description,omitempty"`
	MaxParticipants int       `json:"maxParticipants,omitempty"`
	TeacherID       string    `json:"teacherId,omitempty"`
}

func (in LectureInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("%w: name is required", domain.ErrInvalidLecture)
	case in.Date.IsZero():
		return fmt.Errorf("%w: date is required", domain.ErrInvalidLecture)
	case in.MaxParticipants < 0:
		return fmt.Errorf("%w: maxParticipants must not be negative", domain.ErrInvalidLecture)
	}
	return nil
}

// LectureService owns lecture records and is the only writer of their status.
type LectureService struct {
	store    *store.Store
	rooms    *RoomService
	notifier RoomNotifier
	now      func() time.Time
	newID    func() string
	log      *slog.Logger
}

func NewLectureService(st *store.Store, rooms *RoomService, now func() time.Time) *LectureService {
	if now == nil {
		now = time.Now
	}
	return &LectureService{
		store: st,
		rooms: rooms,
		now:   now,
		newID: uuid.NewString,
		log:   slog.Default().With("component", "lectures"),
	}
}

func (s *LectureService) SetNotifier(n RoomNotifier) {
	s.notifier = n
}

func (s *LectureService) Get(ctx context.Context, id string) (*domain.Lecture, error) {
	rec, ok, err := s.store.FindOne(ctx, store.CollectionEvents, store.Query{"id": id})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrLectureNotFound, id)
	}
	lec, err := store.Decode[domain.Lecture](rec)
	if err != nil {
		return nil, err
	}
	return &lec, nil
}

// List returns lectures ordered by date; an empty status lists all of them.
func (s *LectureService) List(ctx context.Context, status domain.LectureStatus) ([]domain.Lecture, error) {
	var q store.Query
	if status != "" {
		q = store.Query{"status": status}
	}
	recs, err := s.store.Find(ctx, store.CollectionEvents, q)
	if err != nil {
		return nil, err
	}
	lectures, err := store.DecodeAll[domain.Lecture](recs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(lectures, func(i, j int) bool {
		return lectures[i].Date.Before(lectures[j].Date)
	})
	return lectures, nil
}

// CanMutate reports whether caller may edit or transition lec.
func CanMutate(caller domain.User, lec domain.Lecture) bool {
	if caller.ID == "" {
		return false
	}
	return caller.Role == domain.RoleAdmin || caller.ID == lec.CreatedBy || caller.ID == lec.TeacherID
}

// Schedule creates a lecture, materializes its room and sweeps expired rooms.
func (s *LectureService) Schedule(ctx context.Context, caller domain.User, in LectureInput) (*domain.Lecture, error) {
	if caller.Role != domain.RoleTeacher && caller.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("%w: role %q may not schedule lectures", domain.ErrForbidden, caller.Role)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	id := s.newID()
	teacherID := in.TeacherID
	if teacherID == "" {
		teacherID = caller.ID
	}
	now := s.now().UTC()
	lec := domain.Lecture{
		ID:              id,
		Name:            strings.TrimSpace(in.Name),
		Date:            in.Date.UTC(),
		RoomID:          domain.RoomIDForLecture(id),
		Description:     in.Description,
		MaxParticipants: in.MaxParticipants,
		TeacherID:       teacherID,
		CreatedBy:       caller.ID,
		Status:          domain.LectureScheduled,
		UpdatedAt:       &now,
	}
	rec, err := store.Encode(lec)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Insert(ctx, store.CollectionEvents, rec); err != nil {
		return nil, err
	}
	s.log.Info("lecture scheduled", "lecture", id, "teacher", teacherID, "date", lec.Date)

	if err := s.afterWrite(ctx, lec); err != nil {
		return nil, err
	}
	return &lec, nil
}

// UpdateDetails edits the descriptive fields of a lecture. Status is not
// writable here.
func (s *LectureService) UpdateDetails(ctx context.Context, caller domain.User, id string, in LectureInput) (*domain.Lecture, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanMutate(caller, *current) {
		return nil, fmt.Errorf("%w: %s", domain.ErrForbidden, id)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	patch := store.Patch{
		"name":            strings.TrimSpace(in.Name),
		"date":            in.Date.UTC(),
		"description":     in.Description,
		"maxParticipants": in.MaxParticipants,
	}
	if in.TeacherID != "" {
		patch["teacherId"] = in.TeacherID
	}
	rec, ok, err := s.store.Update(ctx, store.CollectionEvents, store.Query{"id": id}, patch)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: lecture %s", domain.ErrUpdateFailed, id)
	}
	lec, err := store.Decode[domain.Lecture](rec)
	if err != nil {
		return nil, err
	}
	s.log.Info("lecture updated", "lecture", id)

	if err := s.afterWrite(ctx, lec); err != nil {
		return nil, err
	}
	return &lec, nil
}

func (s *LectureService) afterWrite(ctx context.Context, lec domain.Lecture) error {
	if _, err := s.rooms.ManageRoomForLecture(ctx, lec); err != nil {
		return fmt.Errorf("manage room for %s: %w", lec.ID, err)
	}
	if _, err := s.rooms.CleanupExpiredRooms(ctx); err != nil {
		return fmt.Errorf("cleanup rooms: %w", err)
	}
	return nil
}

// TransitionAs is Transition gated by CanMutate.
func (s *LectureService) TransitionAs(ctx context.Context, caller domain.User, id string, next domain.LectureStatus) (*domain.Lecture, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanMutate(caller, *current) {
		return nil, fmt.Errorf("%w: %s", domain.ErrForbidden, id)
	}
	return s.Transition(ctx, id, next)
}

// Transition moves a lecture along the lifecycle graph, stamps start and end
// times, and derives the status of the lecture's room. A room that fails to
// follow fails the whole call.
func (s *LectureService) Transition(ctx context.Context, id string, next domain.LectureStatus) (*domain.Lecture, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, next)
	}

	patch := store.Patch{"status": next}
	now := s.now().UTC()
	switch next {
	case domain.LectureInProgress:
		patch["startTime"] = now
	case domain.LectureCompleted:
		patch["endTime"] = now
	}

	// Matching on the status that was validated makes a concurrent
	// transition that got there first turn this one into ErrUpdateFailed.
	rec, ok, err := s.store.Update(ctx, store.CollectionEvents, store.Query{"id": id, "status": current.Status}, patch)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: lecture %s left %s concurrently", domain.ErrUpdateFailed, id, current.Status)
	}
	lec, err := store.Decode[domain.Lecture](rec)
	if err != nil {
		return nil, err
	}
	s.log.Info("lecture transitioned", "lecture", id, "from", current.Status, "to", next)

	if err := s.rooms.propagate(ctx, lec); err != nil {
		return nil, fmt.Errorf("propagate %s to room: %w", id, err)
	}
	if next.Terminal() && s.notifier != nil {
		s.notifier.RoomCleared(lec.RoomID, next)
	}
	return &lec, nil
}
