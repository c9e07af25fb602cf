package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/classroom-service/internal/domain"
)

func TestPageRoomsTieBreaksOnID(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rooms := []RoomWithLecture{
		{Room: domain.Room{ID: "room_a", CreatedAt: at}},
		{Room: domain.Room{ID: "room_c", CreatedAt: at}},
		{Room: domain.Room{ID: "room_b", CreatedAt: at}},
	}

	page, next, err := pageRooms(rooms, 2, "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "room_c", page[0].ID)
	assert.Equal(t, "room_b", page[1].ID)
	require.NotEmpty(t, next)

	page, next, err = pageRooms(rooms, 2, next)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "room_a", page[0].ID)
	assert.Empty(t, next)
}

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, defaultPageSize, clampPageSize(0))
	assert.Equal(t, maxPageSize, clampPageSize(500))
	assert.Equal(t, 7, clampPageSize(7))
}

func TestParseRoomCursorRejectsEmptyID(t *testing.T) {
	c, err := roomCursor{CreatedAt: time.Now()}.encode()
	require.NoError(t, err)
	_, err = parseRoomCursor(c)
	assert.ErrorIs(t, err, ErrInvalidCursor)
}
