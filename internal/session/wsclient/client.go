// Package wsclient is a session.Transport over the room relay websocket.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/classroom-service/internal/domain"
	"github.com/cwrk-planet/classroom-service/internal/session"
	"github.com/cwrk-planet/classroom-service/internal/transport/ws"

	"github.com/gorilla/websocket"
)

const (
	defaultBuffer = 64
	writeTimeout  = 5 * time.Second
)

// Client dials ws://host/ws/rooms/{id}. One Client serves one session and
// may connect again after Disconnect.
type Client struct {
	base   string
	dialer *websocket.Dialer
	log    *slog.Logger
	events chan session.Event

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
}

type Option func(*Client)

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New accepts an http(s) or ws(s) base URL.
func New(baseURL string, opts ...Option) *Client {
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	}
	c := &Client{
		base:   base,
		dialer: websocket.DefaultDialer,
		log:    slog.Default().With("component", "wsclient"),
		events: make(chan session.Event, defaultBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Events() <-chan session.Event { return c.events }

func (c *Client) Connect(ctx context.Context, roomID string, user domain.User) error {
	q := url.Values{}
	q.Set("user_id", user.ID)
	q.Set("username", user.Username)
	q.Set("role", string(user.Role))
	target := c.base + "/ws/rooms/" + url.PathEscape(roomID) + "?" + q.Encode()

	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", roomID, err)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return errors.New("already connected")
	}
	done := make(chan struct{})
	c.conn, c.done = conn, done
	c.mu.Unlock()

	c.emit(done, session.Event{Type: session.EventConnected})
	go c.readLoop(conn, done)
	return nil
}

// Disconnect closes the socket. It is safe to call when not connected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.conn, c.done = nil, nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	close(done)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

func (c *Client) SendMessage(ctx context.Context, content string) error {
	return c.write(ctx, ws.Message{Type: ws.TypeChat, Payload: ws.ChatPayload{Content: content}})
}

// StartStream announces a broadcast. Media travels outside the relay, so
// only the quality is sent.
func (c *Client) StartStream(ctx context.Context, _ session.MediaStream, quality domain.StreamQuality) error {
	return c.write(ctx, ws.Message{Type: ws.TypeStreamStart, Payload: ws.StreamStartPayload{Quality: quality}})
}

func (c *Client) StopStream(ctx context.Context) error {
	return c.write(ctx, ws.Message{Type: ws.TypeStreamStop})
}

func (c *Client) write(ctx context.Context, msg ws.Message) error {
	// Holding mu serializes writers, which gorilla requires.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return session.ErrNotConnected
	}
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteJSON(msg)
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer c.dropped(conn, done)

	for {
		var env ws.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			select {
			case <-done:
			default:
				c.log.Warn("relay connection lost", "err", err)
			}
			return
		}
		ev, ok, err := decodeEvent(env)
		if err != nil {
			c.log.Warn("bad relay frame", "type", env.Type, "err", err)
			continue
		}
		if !ok {
			continue
		}
		c.emit(done, ev)
	}
}

// dropped releases a connection that died under the read loop so the client
// can Connect again, and reports it. After Disconnect the connection is no
// longer ours and nothing is reported.
func (c *Client) dropped(conn *websocket.Conn, done chan struct{}) {
	c.mu.Lock()
	owned := c.conn == conn
	if owned {
		c.conn, c.done = nil, nil
	}
	c.mu.Unlock()
	if !owned {
		return
	}
	_ = conn.Close()
	c.emit(done, session.Event{Type: session.EventDisconnected})
	close(done)
}

// emit never blocks past the connection's lifetime.
func (c *Client) emit(done chan struct{}, ev session.Event) {
	select {
	case <-done:
		return
	default:
	}
	select {
	case c.events <- ev:
	case <-done:
	}
}

func decodeEvent(env ws.Envelope) (session.Event, bool, error) {
	switch env.Type {
	case ws.TypeWelcome:
		return session.Event{Type: session.EventWelcome}, true, nil

	case ws.TypeRoomState:
		var p ws.RoomStatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return session.Event{}, false, err
		}
		return session.Event{Type: session.EventRoomState, Snapshot: &session.Snapshot{
			Participants: p.Participants,
			Messages:     p.Messages,
			Stream:       p.Stream,
		}}, true, nil

	case ws.TypeMessageReceived:
		var m domain.RoomMessage
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return session.Event{}, false, err
		}
		return session.Event{Type: session.EventMessageReceived, Message: &m}, true, nil

	case ws.TypeStreamStarted:
		var st domain.StreamState
		if err := json.Unmarshal(env.Payload, &st); err != nil {
			return session.Event{}, false, err
		}
		return session.Event{Type: session.EventStreamStarted, Stream: &st}, true, nil

	case ws.TypeStreamStopped:
		var p ws.StreamStoppedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return session.Event{}, false, err
		}
		return session.Event{Type: session.EventStreamStopped, UserID: p.StreamerID}, true, nil

	case ws.TypeStreamStatusChange:
		var p ws.StreamStatusPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return session.Event{}, false, err
		}
		return session.Event{Type: session.EventStreamStatusChange, UserID: p.UserID, IsStreaming: p.IsStreaming}, true, nil

	case ws.TypeUserJoined, ws.TypeUserLeft:
		var p ws.PeerEventPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return session.Event{}, false, err
		}
		typ := session.EventUserJoined
		if env.Type == ws.TypeUserLeft {
			typ = session.EventUserLeft
		}
		return session.Event{Type: typ, UserID: p.UserID}, true, nil

	case ws.TypeRoomCleared:
		var p ws.RoomClearedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return session.Event{}, false, err
		}
		return session.Event{Type: session.EventRoomCleared, Reason: p.Reason}, true, nil

	case ws.TypeError:
		var p ws.ErrorPayload
		_ = json.Unmarshal(env.Payload, &p)
		return session.Event{}, false, errors.New(p.Error)

	default:
		return session.Event{}, false, nil
	}
}
