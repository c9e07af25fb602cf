package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/classroom-service/internal/domain"
	"github.com/cwrk-planet/classroom-service/internal/service"
	"github.com/cwrk-planet/classroom-service/internal/session"
	"github.com/cwrk-planet/classroom-service/internal/store"
)

var teacher = domain.User{ID: "T1", Username: "teacher", Role: domain.RoleTeacher}

// seed schedules a lecture in a fresh store file under dir.
func seed(t *testing.T, dir string) domain.Lecture {
	t.Helper()
	st := store.New(store.NewFileBackend(dir, ""))
	rooms := service.NewRoomService(st, service.RoomConfig{})
	lectures := service.NewLectureService(st, rooms, time.Now)
	lec, err := lectures.Schedule(context.Background(), teacher, service.LectureInput{
		Name: "Distributed Systems",
		Date: time.Now(),
	})
	require.NoError(t, err)
	return *lec
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRooms(t *testing.T) {
	dir := t.TempDir()
	lec := seed(t, dir)

	out, err := run(t, "rooms", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, lec.RoomID)
	assert.Contains(t, out, "Distributed Systems")
	assert.Contains(t, out, "scheduled")
}

func TestTransitionThenSweep(t *testing.T) {
	dir := t.TempDir()
	lec := seed(t, dir)

	out, err := run(t, "transition", lec.ID, "in-progress", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "is now in-progress")

	_, err = run(t, "transition", lec.ID, "scheduled", "--data-dir", dir)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	out, err = run(t, "sweep", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "0 room(s) deleted")

	_, err = run(t, "transition", lec.ID, "cancelled", "--data-dir", dir)
	require.NoError(t, err)

	out, err = run(t, "sweep", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted "+lec.RoomID)
}

func TestTransitionUnknownStatus(t *testing.T) {
	_, err := run(t, "transition", "L1", "paused", "--data-dir", t.TempDir())
	assert.ErrorContains(t, err, "unknown status")
}

func TestDataDirFromEnv(t *testing.T) {
	dir := t.TempDir()
	lec := seed(t, dir)
	t.Setenv("ROOMCTL_DATA_DIR", dir)

	out, err := run(t, "rooms")
	require.NoError(t, err)
	assert.Contains(t, out, lec.RoomID)
}

func TestJoinRequiresUser(t *testing.T) {
	_, err := run(t, "join", "room_L1")
	assert.ErrorContains(t, err, "--user-id is required")

	_, err = run(t, "join", "room_L1", "--user-id", "S1", "--role", "guest")
	assert.ErrorContains(t, err, "unknown role")
}

func TestPrinterRendersChanges(t *testing.T) {
	var out bytes.Buffer
	p := &printer{out: &out, self: "S1"}
	ts := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	p.render(session.State{Phase: session.PhaseConnected, IsConnected: true})
	p.render(session.State{
		Phase:        session.PhaseConnected,
		IsConnected:  true,
		Participants: []domain.Participant{{ID: "T1"}, {ID: "S1"}},
		Messages:     []domain.RoomMessage{{Username: "teacher", Content: "hi", Timestamp: ts}},
		Stream:       &domain.StreamState{IsActive: true, StreamerID: "T1", Quality: domain.QualityHigh},
	})
	p.render(session.State{Phase: session.PhaseConnecting, SystemMessage: "Connection lost, reconnecting..."})
	p.render(session.State{Phase: session.PhaseConnected, IsConnected: true, SystemMessage: "This session has ended."})

	got := out.String()
	assert.Contains(t, got, "* connected")
	assert.Contains(t, got, "teacher: hi")
	assert.Contains(t, got, "* 2 participant(s)")
	assert.Contains(t, got, "* T1 is live (high)")
	assert.Contains(t, got, "* broadcast ended")
	assert.Contains(t, got, "* Connection lost, reconnecting...")
	assert.Equal(t, 2, strings.Count(got, "* connected"))
	assert.Contains(t, got, "* This session has ended.")
}
