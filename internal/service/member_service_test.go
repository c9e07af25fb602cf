package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/classroom-service/internal/domain"
)

func TestAddParticipant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	lec := h.seedLectureWithRoom(t, domain.Lecture{ID: "L1", Name: "Anatomy"})

	p, err := h.members.AddParticipant(ctx, lec.RoomID, teacher)
	require.NoError(t, err)
	assert.True(t, p.CanStream)
	assert.True(t, p.CanScreenShare)
	assert.True(t, p.CanChat)
	assert.Equal(t, "online", p.Status)
	assert.True(t, h.clock.Now().Equal(p.JoinedAt))

	s, err := h.members.AddParticipant(ctx, lec.RoomID, student)
	require.NoError(t, err)
	assert.False(t, s.CanStream)
	assert.False(t, s.CanScreenShare)
	assert.True(t, s.CanChat)

	list, err := h.members.ListParticipants(ctx, lec.RoomID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, teacher.ID, list[0].ID)
	assert.Equal(t, student.ID, list[1].ID)
}

func TestAddParticipantTwiceConverges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	lec := h.seedLectureWithRoom(t, domain.Lecture{ID: "L1", Name: "Anatomy"})

	first, err := h.members.AddParticipant(ctx, lec.RoomID, student)
	require.NoError(t, err)
	second, err := h.members.AddParticipant(ctx, lec.RoomID, student)
	require.NoError(t, err)
	assert.True(t, first.JoinedAt.Equal(second.JoinedAt))

	list, err := h.members.ListParticipants(ctx, lec.RoomID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAddParticipantRoomFull(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	lec := h.seedLectureWithRoom(t, domain.Lecture{ID: "L1", Name: "Anatomy", MaxParticipants: 1})

	_, err := h.members.AddParticipant(ctx, lec.RoomID, teacher)
	require.NoError(t, err)
	_, err = h.members.AddParticipant(ctx, lec.RoomID, student)
	assert.ErrorIs(t, err, domain.ErrRoomFull)
}

func TestAddParticipantUnknownRoom(t *testing.T) {
	h := newHarness(t)
	_, err := h.members.AddParticipant(context.Background(), "room_x", student)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRemoveParticipant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	lec := h.seedLectureWithRoom(t, domain.Lecture{ID: "L1", Name: "Anatomy"})
	_, err := h.members.AddParticipant(ctx, lec.RoomID, teacher)
	require.NoError(t, err)
	_, err = h.members.AddParticipant(ctx, lec.RoomID, student)
	require.NoError(t, err)

	require.NoError(t, h.members.RemoveParticipant(ctx, lec.RoomID, teacher.ID))
	list, err := h.members.ListParticipants(ctx, lec.RoomID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, student.ID, list[0].ID)

	err = h.members.RemoveParticipant(ctx, lec.RoomID, teacher.ID)
	assert.ErrorIs(t, err, domain.ErrNotInRoom)
}

func TestUpdateParticipantStreamingStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	lec := h.seedLectureWithRoom(t, domain.Lecture{ID: "L1", Name: "Anatomy"})
	_, err := h.members.AddParticipant(ctx, lec.RoomID, teacher)
	require.NoError(t, err)

	require.NoError(t, h.members.UpdateParticipantStreamingStatus(ctx, lec.RoomID, teacher.ID, true))
	list, err := h.members.ListParticipants(ctx, lec.RoomID)
	require.NoError(t, err)
	assert.True(t, list[0].IsStreaming)

	require.NoError(t, h.members.UpdateParticipantStreamingStatus(ctx, lec.RoomID, teacher.ID, false))
	list, err = h.members.ListParticipants(ctx, lec.RoomID)
	require.NoError(t, err)
	assert.False(t, list[0].IsStreaming)

	err = h.members.UpdateParticipantStreamingStatus(ctx, lec.RoomID, "nobody", true)
	assert.ErrorIs(t, err, domain.ErrNotInRoom)
}
