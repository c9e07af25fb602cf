// Package session owns one live connection for a (room, user) pair and turns
// transport events into local room state.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/classroom-service/internal/domain"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseConnected  Phase = "connected"
	PhaseLeaving    Phase = "leaving"
)

type EventType string

const (
	EventConnected          EventType = "connected"
	EventDisconnected       EventType = "disconnected"
	EventWelcome            EventType = "welcome"
	EventRoomState          EventType = "room_state"
	EventMessageReceived    EventType = "message_received"
	EventStreamStarted      EventType = "stream_started"
	EventStreamStopped      EventType = "stream_stopped"
	EventStreamAdded        EventType = "stream_added"
	EventStreamRemoved      EventType = "stream_removed"
	EventUserJoined         EventType = "user_joined"
	EventUserLeft           EventType = "user_left"
	EventStreamStatusChange EventType = "stream_status_change"
	EventRoomCleared        EventType = "room_cleared"

	// Raised by the coordinator itself, never by a transport.
	EventJoinFailed         EventType = "join_failed"
	EventParticipantsLoaded EventType = "participants_loaded"
)

// Snapshot is the full room state a transport sends after (re)connect.
type Snapshot struct {
	Participants []domain.Participant `json:"participants"`
	Messages     []domain.RoomMessage `json:"messages"`
	Stream       *domain.StreamState  `json:"stream,omitempty"`
}

// Event is one inbound notification. Only the fields of its type are set.
type Event struct {
	Type EventType

	Snapshot     *Snapshot
	Message      *domain.RoomMessage
	Stream       *domain.StreamState
	Participants []domain.Participant

	// PeerID and Media belong to stream_added / stream_removed.
	PeerID string
	Media  MediaStream

	// UserID is set for user_joined, user_left, stream_stopped and
	// stream_status_change.
	UserID      string
	IsStreaming bool
	Reason      string
}

// Transport is the realtime connection to a room. Connect returns once the
// connection is open; the transport then reports EventConnected on Events.
type Transport interface {
	Connect(ctx context.Context, roomID string, user domain.User) error
	Disconnect() error
	Events() <-chan Event
	SendMessage(ctx context.Context, content string) error
	StartStream(ctx context.Context, stream MediaStream, quality domain.StreamQuality) error
	StopStream(ctx context.Context) error
}

// MediaTrack holds a hardware resource until Stop is called.
type MediaTrack interface {
	ID() string
	Kind() string
	Stop()
}

type MediaStream interface {
	ID() string
	Tracks() []MediaTrack
}

type MediaDevices interface {
	Acquire(ctx context.Context, quality domain.StreamQuality) (MediaStream, error)
}

// Membership is the durable participant list of a room.
type Membership interface {
	AddParticipant(ctx context.Context, roomID string, u domain.User) (*domain.Participant, error)
	RemoveParticipant(ctx context.Context, roomID, userID string) error
	ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error)
	UpdateParticipantStreamingStatus(ctx context.Context, roomID, userID string, isStreaming bool) error
}

var (
	ErrNotConnected = errors.New("session not connected")
	ErrClosed       = errors.New("session coordinator stopped")
	ErrEmptyMessage = errors.New("empty message")
)

// TransportError wraps a connect or send failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MediaAcquisitionError means the camera or microphone could not be opened.
type MediaAcquisitionError struct {
	Quality domain.StreamQuality
	Err     error
}

func (e *MediaAcquisitionError) Error() string {
	return fmt.Sprintf("acquire media (%s): %v", e.Quality, e.Err)
}

func (e *MediaAcquisitionError) Unwrap() error { return e.Err }

func stopTracks(s MediaStream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
