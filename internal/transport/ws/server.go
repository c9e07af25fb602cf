package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwrk-planet/classroom-service/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type MemberSvc interface {
	ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error)
	RemoveParticipant(ctx context.Context, roomID, userID string) error
}

type Server struct {
	upgrader  websocket.Upgrader
	hub       *Hub
	memberSvc MemberSvc
	now       func() time.Time
	log       *slog.Logger

	pingEvery time.Duration
}

type Option func(*Server)

func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pingEvery = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func NewServer(hub *Hub, member MemberSvc, opts ...Option) *Server {
	s := &Server{
		hub:       hub,
		memberSvc: member,
		now:       time.Now,
		log:       slog.Default().With("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleWS serves GET /ws/rooms/{id}?user_id=...&username=...&role=...
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user := domain.User{
		ID:       strings.TrimSpace(q.Get("user_id")),
		Username: strings.TrimSpace(q.Get("username")),
		Role:     domain.Role(strings.TrimSpace(q.Get("role"))),
	}
	if user.ID == "" {
		http.Error(w, "missing user_id", http.StatusUnauthorized)
		return
	}
	if user.Username == "" {
		user.Username = user.ID
	}
	if !user.Role.Valid() {
		user.Role = domain.RoleStudent
	}
	roomID := chi.URLParam(r, "id")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "err", err)
		return
	}

	// The request context is cancelled once the handler returns, which is
	// after the read loop ends.
	ctx := r.Context()
	c := newWsConn(conn, roomID, user)
	s.hub.Add(c)

	_ = c.Send(Message{Type: TypeWelcome, Payload: WelcomePayload{RoomID: roomID, UserID: user.ID}})
	if err := s.sendState(ctx, c); err != nil {
		s.log.Warn("ws send initial state failed", "room", roomID, "user", user.ID, "err", err)
	}

	s.hub.Broadcast(roomID, Message{
		Type:    TypeUserJoined,
		Payload: PeerEventPayload{RoomID: roomID, UserID: user.ID},
	})

	go s.writeLoop(ctx, c)
	s.readLoop(ctx, c)

	s.hub.Remove(c)
	s.release(ctx, c)

	if err := c.Close(); err != nil {
		s.log.Debug("ws close failed", "room", roomID, "user", user.ID, "err", err)
	}
}

// release undoes what a connection left behind: its broadcast and its
// participant entry. Clients normally leave on their own; this covers
// dropped connections.
func (s *Server) release(ctx context.Context, c *wsConn) {
	roomID, userID := c.roomID, c.user.ID

	if s.hub.StopStream(roomID, userID) {
		s.broadcastStreamStopped(roomID, userID)
	}
	// Another tab of the same user keeps the participant entry alive.
	if !s.hub.Connected(roomID, userID) {
		if err := s.memberSvc.RemoveParticipant(ctx, roomID, userID); err != nil {
			s.log.Debug("ws leave room failed", "room", roomID, "user", userID, "err", err)
		}
	}
	s.hub.Broadcast(roomID, Message{
		Type:    TypeUserLeft,
		Payload: PeerEventPayload{RoomID: roomID, UserID: userID},
	})
}

func (s *Server) sendState(ctx context.Context, c *wsConn) error {
	parts, err := s.memberSvc.ListParticipants(ctx, c.roomID)
	if err != nil {
		parts = []domain.Participant{}
	}
	msgs, stream := s.hub.Snapshot(c.roomID)

	if sendErr := c.Send(Message{
		Type: TypeRoomState,
		Payload: RoomStatePayload{
			RoomID:       c.roomID,
			Participants: parts,
			Messages:     msgs,
			Stream:       stream,
		},
	}); sendErr != nil {
		return sendErr
	}
	return err
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("ws read failed", "room", c.roomID, "user", c.user.ID, "err", err)
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		s.handle(c, env)
	}
}

func (s *Server) handle(c *wsConn, env Envelope) {
	roomID, userID := c.roomID, c.user.ID

	switch env.Type {
	case TypeChat:
		var p ChatPayload
		if decode(env.Payload, &p) != nil {
			return
		}
		text := strings.TrimSpace(p.Content)
		if text == "" {
			return
		}
		m := domain.RoomMessage{
			UserID:    userID,
			Username:  c.user.Username,
			Content:   text,
			Timestamp: s.now().UTC(),
		}
		s.hub.AppendMessage(roomID, m)
		// Everyone gets the message, the sender included.
		s.hub.Broadcast(roomID, Message{Type: TypeMessageReceived, Payload: m})

	case TypeStreamStart:
		var p StreamStartPayload
		_ = decode(env.Payload, &p)
		if !p.Quality.Valid() {
			p.Quality = domain.QualityMedium
		}
		st, ok := s.hub.StartStream(roomID, userID, p.Quality)
		if !ok {
			_ = c.Send(Message{Type: TypeError, Payload: ErrorPayload{Error: "room already has a broadcaster: " + st.StreamerID}})
			return
		}
		s.hub.Broadcast(roomID, Message{Type: TypeStreamStarted, Payload: st})
		s.broadcastStatus(roomID, userID, true)

	case TypeStreamStop:
		if s.hub.StopStream(roomID, userID) {
			s.broadcastStreamStopped(roomID, userID)
		}

	case TypeStreamStatus:
		var p StreamStatusPayload
		if decode(env.Payload, &p) != nil {
			return
		}
		s.broadcastStatus(roomID, userID, p.IsStreaming)

	default:
		s.log.Debug("ws unknown frame", "room", roomID, "type", env.Type)
	}
}

func (s *Server) broadcastStreamStopped(roomID, userID string) {
	s.hub.Broadcast(roomID, Message{
		Type:    TypeStreamStopped,
		Payload: StreamStoppedPayload{RoomID: roomID, StreamerID: userID},
	})
	s.broadcastStatus(roomID, userID, false)
}

func (s *Server) broadcastStatus(roomID, userID string, streaming bool) {
	s.hub.Broadcast(roomID, Message{
		Type:    TypeStreamStatusChange,
		Payload: StreamStatusPayload{UserID: userID, IsStreaming: streaming},
	})
}

// RoomCleared tells every client of roomID that the lecture behind it is
// over and forgets the room's relay state.
func (s *Server) RoomCleared(roomID string, status domain.LectureStatus) {
	s.hub.Broadcast(roomID, Message{
		Type:    TypeRoomCleared,
		Payload: RoomClearedPayload{RoomID: roomID, Reason: "lecture " + string(status)},
	})
	s.hub.Clear(roomID)
	s.log.Info("room cleared", "room", roomID, "status", status)
}

func (s *Server) writeLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

func decode(payload json.RawMessage, dst any) error {
	if len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, dst)
}

type wsConn struct {
	conn   *websocket.Conn
	roomID string
	user   domain.User
	sendMu chan struct{}
	closed chan struct{}
}

func newWsConn(c *websocket.Conn, roomID string, user domain.User) *wsConn {
	return &wsConn{
		conn:   c,
		roomID: roomID,
		user:   user,
		sendMu: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) Send(msg Message) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	return c.conn.WriteJSON(msg)
}

func (c *wsConn) Close() error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	select {
	case <-c.closed:
		return nil
	default:
		close(c.closed)
	}

	return c.conn.Close()
}

func (c *wsConn) UserID() string { return c.user.ID }
func (c *wsConn) RoomID() string { return c.roomID }
