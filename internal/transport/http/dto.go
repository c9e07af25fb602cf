package http

import (
	"time"

	"github.com/cwrk-planet/classroom-service/internal/domain"
	"github.com/cwrk-planet/classroom-service/internal/service"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type LectureRequest struct {
	Name            string    `json:"name"`
	Date            time.Time `json:"date"`
	Description     string    `json:"description,omitempty"`
	MaxParticipants int       `json:"maxParticipants,omitempty"`
	TeacherID       string    `json:"teacherId,omitempty"`
}

func (r LectureRequest) input() service.LectureInput {
	return service.LectureInput{
		Name:            r.Name,
		Date:            r.Date,
		Description:     r.Description,
		MaxParticipants: r.MaxParticipants,
		TeacherID:       r.TeacherID,
	}
}

type StatusRequest struct {
	Status domain.LectureStatus `json:"status"`
}

type LecturesResponse struct {
	Items []domain.Lecture `json:"items"`
}

type RoomsListResponse struct {
	Items      []service.RoomWithLecture `json:"items"`
	NextCursor string                    `json:"nextCursor,omitempty"`
}

type CleanupResponse struct {
	Deleted []string `json:"deleted"`
}

type ParticipantsResponse struct {
	Items []domain.Participant `json:"items"`
}

type JoinRoomResponse struct {
	RoomID      string             `json:"roomId"`
	Participant domain.Participant `json:"participant"`
}
