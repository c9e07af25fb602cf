package ws

import (
	"sync"

	"github.com/cwrk-planet/classroom-service/internal/domain"
)

const defaultHistory = 100

type Conn interface {
	Send(msg Message) error
	Close() error
	UserID() string
	RoomID() string
}

// roomState is what the relay remembers about a room between connections.
type roomState struct {
	messages []domain.RoomMessage
	stream   *domain.StreamState
}

// Hub tracks connections per room together with the room's recent chat and
// its active broadcast.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[Conn]struct{}
	state   map[string]*roomState
	history int
}

func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[Conn]struct{}),
		state:   make(map[string]*roomState),
		history: defaultHistory,
	}
}

func (h *Hub) Add(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[c.RoomID()]
	if !ok {
		rs = make(map[Conn]struct{})
		h.rooms[c.RoomID()] = rs
	}
	rs[c] = struct{}{}
}

func (h *Hub) Remove(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rs, ok := h.rooms[c.RoomID()]; ok {
		delete(rs, c)
		if len(rs) == 0 {
			delete(h.rooms, c.RoomID())
		}
	}
}

func (h *Hub) Broadcast(roomID string, msg Message) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Send(msg) // best-effort
	}
}

func (h *Hub) room(roomID string) *roomState {
	st, ok := h.state[roomID]
	if !ok {
		st = &roomState{}
		h.state[roomID] = st
	}
	return st
}

// AppendMessage records m in the room history, keeping the newest entries.
func (h *Hub) AppendMessage(roomID string, m domain.RoomMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.room(roomID)
	st.messages = append(st.messages, m)
	if over := len(st.messages) - h.history; over > 0 {
		st.messages = append([]domain.RoomMessage(nil), st.messages[over:]...)
	}
}

// Snapshot copies the room history and stream state.
func (h *Hub) Snapshot(roomID string) ([]domain.RoomMessage, *domain.StreamState) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.state[roomID]
	if !ok {
		return []domain.RoomMessage{}, nil
	}
	msgs := append([]domain.RoomMessage{}, st.messages...)
	var stream *domain.StreamState
	if st.stream != nil {
		c := *st.stream
		stream = &c
	}
	return msgs, stream
}

// StartStream makes userID the room's broadcaster. It fails when someone
// else is already live.
func (h *Hub) StartStream(roomID, userID string, q domain.StreamQuality) (domain.StreamState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.room(roomID)
	if st.stream != nil && st.stream.StreamerID != userID {
		return *st.stream, false
	}
	st.stream = &domain.StreamState{IsActive: true, StreamerID: userID, Quality: q}
	return *st.stream, true
}

// StopStream clears the broadcast if userID owns it.
func (h *Hub) StopStream(roomID, userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.state[roomID]
	if !ok || st.stream == nil || st.stream.StreamerID != userID {
		return false
	}
	st.stream = nil
	return true
}

// Clear forgets everything about a room.
func (h *Hub) Clear(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.state, roomID)
}

// Connected reports whether userID still has an open connection in roomID.
func (h *Hub) Connected(roomID, userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomID] {
		if c.UserID() == userID {
			return true
		}
	}
	return false
}
