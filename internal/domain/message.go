package domain

import "time"

type RoomMessage struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SameAs reports whether two messages are the same delivery: equal sender,
// content and timestamp.
func (m RoomMessage) SameAs(o RoomMessage) bool {
	return m.UserID == o.UserID && m.Content == o.Content && m.Timestamp.Equal(o.Timestamp)
}

type StreamQuality string

const (
	QualityLow    StreamQuality = "low"
	QualityMedium StreamQuality = "medium"
	QualityHigh   StreamQuality = "high"
)

func (q StreamQuality) Valid() bool {
	return q == QualityLow || q == QualityMedium || q == QualityHigh
}

// StreamState describes the single active broadcaster of a room.
type StreamState struct {
	IsActive   bool          `json:"isActive"`
	StreamerID string        `json:"streamerId"`
	Quality    StreamQuality `json:"quality"`
}
