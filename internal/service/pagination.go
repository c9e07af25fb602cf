package service

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// roomCursor is the keyset position of the last room on a page. Rooms are
// ordered by createdAt desc, then id desc.
type roomCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

func (c roomCursor) encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func parseRoomCursor(s string) (*roomCursor, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var c roomCursor
	if err := json.Unmarshal(data, &c); err != nil || c.ID == "" {
		return nil, fmt.Errorf("%w: malformed payload", ErrInvalidCursor)
	}
	return &c, nil
}

// after reports whether r sorts strictly past the cursor.
func (c roomCursor) after(r RoomWithLecture) bool {
	if r.CreatedAt.Equal(c.CreatedAt) {
		return r.ID < c.ID
	}
	return r.CreatedAt.Before(c.CreatedAt)
}

func clampPageSize(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	}
	return limit
}

// pageRooms sorts rooms newest first and cuts the page that follows cursor.
// next is empty on the last page.
func pageRooms(rooms []RoomWithLecture, limit int, cursor string) (page []RoomWithLecture, next string, err error) {
	cur, err := parseRoomCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
		}
		return rooms[i].ID > rooms[j].ID
	})

	start := 0
	if cur != nil {
		start = sort.Search(len(rooms), func(i int) bool { return cur.after(rooms[i]) })
	}
	end := min(start+clampPageSize(limit), len(rooms))
	page = rooms[start:end]

	if end < len(rooms) && len(page) > 0 {
		last := page[len(page)-1]
		next, err = roomCursor{CreatedAt: last.CreatedAt, ID: last.ID}.encode()
		if err != nil {
			return nil, "", err
		}
	}
	return page, next, nil
}
