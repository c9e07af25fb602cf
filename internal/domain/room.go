package domain

import (
	"strings"
	"time"
)

type RoomStatus string

const (
	RoomScheduled RoomStatus = "scheduled"
	RoomOccupied  RoomStatus = "occupied"
	RoomAvailable RoomStatus = "available"
)

const roomIDPrefix = "room_"

// RoomIDForLecture derives the room id bound to a lecture.
func RoomIDForLecture(lectureID string) string {
	return roomIDPrefix + lectureID
}

// LectureIDFromRoomID reverses RoomIDForLecture.
func LectureIDFromRoomID(roomID string) (string, bool) {
	if !strings.HasPrefix(roomID, roomIDPrefix) || len(roomID) == len(roomIDPrefix) {
		return "", false
	}
	return strings.TrimPrefix(roomID, roomIDPrefix), true
}

// RoomStatusFor projects a lecture status onto its room. ok is false when the
// lecture status leaves the room status unchanged.
func RoomStatusFor(s LectureStatus) (status RoomStatus, ok bool) {
	switch s {
	case LectureInProgress:
		return RoomOccupied, true
	case LectureCompleted, LectureCancelled:
		return RoomAvailable, true
	default:
		return "", false
	}
}

type RoomFeatures struct {
	HasVideo       bool `json:"hasVideo"`
	HasAudio       bool `json:"hasAudio"`
	HasChat        bool `json:"hasChat"`
	HasWhiteboard  bool `json:"hasWhiteboard"`
	HasScreenShare bool `json:"hasScreenShare"`
}

func AllRoomFeatures() RoomFeatures {
	return RoomFeatures{
		HasVideo:       true,
		HasAudio:       true,
		HasChat:        true,
		HasWhiteboard:  true,
		HasScreenShare: true,
	}
}

// LectureRef is the room's denormalized copy of its lecture. It may go stale
// and is repaired on read.
type LectureRef struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	TeacherID string        `json:"teacherId"`
	Status    LectureStatus `json:"status"`
}

type Room struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Capacity       int           `json:"capacity"`
	Status         RoomStatus    `json:"status"`
	Features       RoomFeatures  `json:"features"`
	CurrentLecture *LectureRef   `json:"currentLecture,omitempty"`
	Participants   []Participant `json:"participants,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// LectureID returns the id of the lecture that owns the room, preferring the
// embedded reference and falling back to the id encoded in the room id.
func (r Room) LectureID() (string, bool) {
	if r.CurrentLecture != nil && r.CurrentLecture.ID != "" {
		return r.CurrentLecture.ID, true
	}
	return LectureIDFromRoomID(r.ID)
}
