package domain

import "time"

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent || r == RoleAdmin
}

// User is what the identity provider tells us about the caller.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Role        Role   `json:"role"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Status      string `json:"status,omitempty"`
}

// Participant is someone currently connected to a room.
type Participant struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Role           Role      `json:"role"`
	Status         string    `json:"status,omitempty"`
	CanStream      bool      `json:"canStream"`
	CanChat        bool      `json:"canChat"`
	CanScreenShare bool      `json:"canScreenShare"`
	IsStreaming    bool      `json:"isStreaming"`
	JoinedAt       time.Time `json:"joinedAt"`
}

func NewParticipant(u User, now time.Time) Participant {
	status := u.Status
	if status == "" {
		status = "online"
	}
	return Participant{
		ID:             u.ID,
		Username:       u.Username,
		Role:           u.Role,
		Status:         status,
		CanStream:      u.Role == RoleTeacher,
		CanChat:        true,
		CanScreenShare: u.Role == RoleTeacher,
		JoinedAt:       now,
	}
}
