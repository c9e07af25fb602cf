package domain

import "time"

type LectureStatus string

const (
	LectureScheduled  LectureStatus = "scheduled"
	LectureDelayed    LectureStatus = "delayed"
	LectureInProgress LectureStatus = "in-progress"
	LectureCompleted  LectureStatus = "completed"
	LectureCancelled  LectureStatus = "cancelled"
)

// lectureTransitions is the lifecycle graph. Terminal statuses have no successors.
var lectureTransitions = map[LectureStatus][]LectureStatus{
	LectureScheduled:  {LectureInProgress, LectureCancelled, LectureDelayed},
	LectureDelayed:    {LectureInProgress, LectureCancelled},
	LectureInProgress: {LectureCompleted, LectureCancelled},
	LectureCompleted:  {},
	LectureCancelled:  {},
}

func (s LectureStatus) Valid() bool {
	_, ok := lectureTransitions[s]
	return ok
}

func (s LectureStatus) Terminal() bool {
	return s == LectureCompleted || s == LectureCancelled
}

// CanTransitionTo reports whether next is an allowed successor of s.
func (s LectureStatus) CanTransitionTo(next LectureStatus) bool {
	for _, allowed := range lectureTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func AllLectureStatuses() []LectureStatus {
	return []LectureStatus{LectureScheduled, LectureDelayed, LectureInProgress, LectureCompleted, LectureCancelled}
}

// Lecture is a scheduled teaching session, stored in the "events" collection.
type Lecture struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Date            time.Time     `json:"date"`
	RoomID          string        `json:"roomId"`
	Description     string        `json:"description,omitempty"`
	MaxParticipants int           `json:"maxParticipants,omitempty"`
	TeacherID       string        `json:"teacherId"`
	CreatedBy       string        `json:"createdBy"`
	Status          LectureStatus `json:"status"`
	StartTime       *time.Time    `json:"startTime,omitempty"`
	EndTime         *time.Time    `json:"endTime,omitempty"`
	UpdatedAt       *time.Time    `json:"updatedAt,omitempty"`
}
