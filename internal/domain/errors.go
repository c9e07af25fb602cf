package domain

import "errors"

var (
	ErrLectureNotFound   = errors.New("lecture not found")
	ErrRoomNotFound      = errors.New("room not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUpdateFailed      = errors.New("update failed")
	ErrInvalidLecture    = errors.New("invalid lecture")
	ErrForbidden         = errors.New("caller may not mutate this lecture")
	ErrRoomFull          = errors.New("room is full")
	ErrNotInRoom         = errors.New("user not in the room")
)
