package ws

import (
	"encoding/json"

	"github.com/cwrk-planet/classroom-service/internal/domain"
)

// Server -> client
const (
	TypeWelcome            = "welcome"
	TypeRoomState          = "room_state"
	TypeMessageReceived    = "message_received"
	TypeStreamStarted      = "stream_started"
	TypeStreamStopped      = "stream_stopped"
	TypeStreamStatusChange = "stream_status_change"
	TypeUserJoined         = "user_joined"
	TypeUserLeft           = "user_left"
	TypeRoomCleared        = "room_cleared"
	TypeError              = "error"
)

// Client -> server
const (
	TypeChat         = "chat"
	TypeStreamStart  = "stream_start"
	TypeStreamStop   = "stream_stop"
	TypeStreamStatus = "stream_status"
)

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Envelope is the read side of Message; the payload is decoded once the
// type is known.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type WelcomePayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type RoomStatePayload struct {
	RoomID       string               `json:"roomId"`
	Participants []domain.Participant `json:"participants"`
	Messages     []domain.RoomMessage `json:"messages"`
	Stream       *domain.StreamState  `json:"stream,omitempty"`
}

type PeerEventPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type StreamStoppedPayload struct {
	RoomID     string `json:"roomId"`
	StreamerID string `json:"streamerId"`
}

type StreamStatusPayload struct {
	UserID      string `json:"userId,omitempty"`
	IsStreaming bool   `json:"isStreaming"`
}

type RoomClearedPayload struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

type ChatPayload struct {
	Content string `json:"content"`
}

type StreamStartPayload struct {
	Quality domain.StreamQuality `json:"quality"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}
