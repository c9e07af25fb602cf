package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/classroom-service/internal/domain"
	"github.com/cwrk-planet/classroom-service/internal/store"
	"github.com/cwrk-planet/classroom-service/internal/testfixtures"
)

type harness struct {
	clock    *testfixtures.Clock
	store    *store.Store
	rooms    *RoomService
	lectures *LectureService
	members  *MemberService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := testfixtures.NewClock(time.Time{})
	st := store.New(store.NewFileBackend(t.TempDir(), ""), store.WithClock(clock.Now))
	rooms := NewRoomService(st, RoomConfig{Now: clock.Now})
	return &harness{
		clock:    clock,
		store:    st,
		rooms:    rooms,
		lectures: NewLectureService(st, rooms, clock.Now),
		members:  NewMemberService(st, clock.Now),
	}
}

func (h *harness) seedLecture(t *testing.T, lec domain.Lecture) domain.Lecture {
	t.Helper()
	if lec.RoomID == "" {
		lec.RoomID = domain.RoomIDForLecture(lec.ID)
	}
	if lec.Date.IsZero() {
		lec.Date = h.clock.Now()
	}
	if lec.Status == "" {
		lec.Status = domain.LectureScheduled
	}
	rec, err := store.Encode(lec)
	require.NoError(t, err)
	_, err = h.store.Insert(context.Background(), store.CollectionEvents, rec)
	require.NoError(t, err)
	return lec
}

func (h *harness) seedLectureWithRoom(t *testing.T, lec domain.Lecture) domain.Lecture {
	t.Helper()
	lec = h.seedLecture(t, lec)
	_, err := h.rooms.ManageRoomForLecture(context.Background(), lec)
	require.NoError(t, err)
	return lec
}

func (h *harness) rawRoom(t *testing.T, id string) (store.Record, bool) {
	t.Helper()
	rec, ok, err := h.store.FindOne(context.Background(), store.CollectionRooms, store.Query{"id": id})
	require.NoError(t, err)
	return rec, ok
}

var (
	teacher = domain.User{ID: "T1", Username: "teacher", Role: domain.RoleTeacher}
	student = domain.User{ID: "S1", Username: "student", Role: domain.RoleStudent}
	admin   = domain.User{ID: "A1", Username: "admin", Role: domain.RoleAdmin}
)
