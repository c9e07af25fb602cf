package wsclient

import (
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/classroom-service/internal/domain"
	"github.com/cwrk-planet/classroom-service/internal/service"
	"github.com/cwrk-planet/classroom-service/internal/session"
	"github.com/cwrk-planet/classroom-service/internal/store"
	"github.com/cwrk-planet/classroom-service/internal/testfixtures"
	"github.com/cwrk-planet/classroom-service/internal/transport/ws"
)

type env struct {
	clock    *testfixtures.Clock
	members  *service.MemberService
	lectures *service.LectureService
	rooms    *service.RoomService
	relay    *ws.Server
	url      string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clock := testfixtures.NewClock(time.Time{})
	st := store.New(store.NewFileBackend(t.TempDir(), ""), store.WithClock(clock.Now))
	rooms := service.NewRoomService(st, service.RoomConfig{Now: clock.Now})
	lectures := service.NewLectureService(st, rooms, clock.Now)
	members := service.NewMemberService(st, clock.Now)

	relay := ws.NewServer(ws.NewHub(), members, ws.WithClock(clock.Now))
	lectures.SetNotifier(relay)

	r := chi.NewRouter()
	r.Get("/ws/rooms/{id}", relay.HandleWS)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return &env{clock: clock, members: members, lectures: lectures, rooms: rooms, relay: relay, url: ts.URL}
}

var teacher = domain.User{ID: "T1", Username: "teacher", Role: domain.RoleTeacher}

func waitEvent(t *testing.T, c *Client, typ session.EventType) session.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
		}
	}
}

func TestClient_ConnectReceivesSnapshot(t *testing.T) {
	e := newEnv(t)
	c := New(e.url)

	require.NoError(t, c.Connect(context.Background(), "room_L1", teacher))
	t.Cleanup(func() { _ = c.Disconnect() })

	waitEvent(t, c, session.EventConnected)
	waitEvent(t, c, session.EventWelcome)
	ev := waitEvent(t, c, session.EventRoomState)
	require.NotNil(t, ev.Snapshot)
	assert.Empty(t, ev.Snapshot.Messages)
	assert.Nil(t, ev.Snapshot.Stream)
}

func TestClient_SendAndStream(t *testing.T) {
	e := newEnv(t)
	c := New(e.url)
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx, "room_L1", teacher))
	t.Cleanup(func() { _ = c.Disconnect() })
	waitEvent(t, c, session.EventRoomState)

	require.NoError(t, c.SendMessage(ctx, "hi"))
	ev := waitEvent(t, c, session.EventMessageReceived)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "hi", ev.Message.Content)
	assert.Equal(t, "teacher", ev.Message.Username)

	require.NoError(t, c.StartStream(ctx, nil, domain.QualityHigh))
	ev = waitEvent(t, c, session.EventStreamStarted)
	require.NotNil(t, ev.Stream)
	assert.Equal(t, "T1", ev.Stream.StreamerID)
	ev = waitEvent(t, c, session.EventStreamStatusChange)
	assert.Equal(t, "T1", ev.UserID)
	assert.True(t, ev.IsStreaming)

	require.NoError(t, c.StopStream(ctx))
	ev = waitEvent(t, c, session.EventStreamStopped)
	assert.Equal(t, "T1", ev.UserID)
}

func TestClient_NotConnected(t *testing.T) {
	c := New("http://127.0.0.1:1")

	assert.ErrorIs(t, c.SendMessage(context.Background(), "x"), session.ErrNotConnected)
	assert.NoError(t, c.Disconnect())
	assert.NoError(t, c.Disconnect())
}

func TestClient_DialFailure(t *testing.T) {
	c := New("http://127.0.0.1:1")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.Error(t, c.Connect(ctx, "room_L1", teacher))
}

func TestClient_ReconnectAfterDisconnect(t *testing.T) {
	e := newEnv(t)
	c := New(e.url)
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx, "room_L1", teacher))
	waitEvent(t, c, session.EventRoomState)
	require.NoError(t, c.Disconnect())

	require.NoError(t, c.Connect(ctx, "room_L1", teacher))
	t.Cleanup(func() { _ = c.Disconnect() })
	waitEvent(t, c, session.EventConnected)
	waitEvent(t, c, session.EventRoomState)
}

// socketDialer keeps the raw connections it opens so a test can cut them
// without the client noticing first.
type socketDialer struct {
	mu    sync.Mutex
	conns []net.Conn
}

func (d *socketDialer) dialer() *websocket.Dialer {
	var nd net.Dialer
	return &websocket.Dialer{
		HandshakeTimeout: time.Second,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := nd.DialContext(ctx, network, addr)
			if err == nil {
				d.mu.Lock()
				d.conns = append(d.conns, conn)
				d.mu.Unlock()
			}
			return conn, err
		},
	}
}

func (d *socketDialer) cutLatest() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := len(d.conns); n > 0 {
		_ = d.conns[n-1].Close()
	}
}

func (d *socketDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func TestClient_ConnectAgainAfterSocketDrop(t *testing.T) {
	e := newEnv(t)
	sd := &socketDialer{}
	c := New(e.url, WithDialer(sd.dialer()))
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx, "room_L1", teacher))
	waitEvent(t, c, session.EventRoomState)

	sd.cutLatest()
	waitEvent(t, c, session.EventDisconnected)
	assert.ErrorIs(t, c.SendMessage(ctx, "x"), session.ErrNotConnected)

	require.NoError(t, c.Connect(ctx, "room_L1", teacher))
	t.Cleanup(func() { _ = c.Disconnect() })
	waitEvent(t, c, session.EventConnected)
	waitEvent(t, c, session.EventRoomState)
}

func TestDecodeEvent(t *testing.T) {
	raw := func(v any) json.RawMessage {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return b
	}

	tests := []struct {
		name string
		in   ws.Envelope
		want session.Event
		ok   bool
	}{
		{
			name: "user joined",
			in:   ws.Envelope{Type: ws.TypeUserJoined, Payload: raw(ws.PeerEventPayload{RoomID: "r", UserID: "S1"})},
			want: session.Event{Type: session.EventUserJoined, UserID: "S1"},
			ok:   true,
		},
		{
			name: "user left",
			in:   ws.Envelope{Type: ws.TypeUserLeft, Payload: raw(ws.PeerEventPayload{RoomID: "r", UserID: "S1"})},
			want: session.Event{Type: session.EventUserLeft, UserID: "S1"},
			ok:   true,
		},
		{
			name: "room cleared",
			in:   ws.Envelope{Type: ws.TypeRoomCleared, Payload: raw(ws.RoomClearedPayload{RoomID: "r", Reason: "lecture cancelled"})},
			want: session.Event{Type: session.EventRoomCleared, Reason: "lecture cancelled"},
			ok:   true,
		},
		{
			name: "stream status",
			in:   ws.Envelope{Type: ws.TypeStreamStatusChange, Payload: raw(ws.StreamStatusPayload{UserID: "T1", IsStreaming: true})},
			want: session.Event{Type: session.EventStreamStatusChange, UserID: "T1", IsStreaming: true},
			ok:   true,
		},
		{
			name: "unknown frame",
			in:   ws.Envelope{Type: "presence"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := decodeEvent(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}

	_, _, err := decodeEvent(ws.Envelope{Type: ws.TypeRoomState, Payload: json.RawMessage(`{"participants": 5}`)})
	assert.Error(t, err)
}

// A full session: join through the relay, chat, broadcast, then the lecture
// completes and the room is cleared out from under the session.
func TestCoordinatorOverRelay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	lec, err := e.lectures.Schedule(ctx, teacher, service.LectureInput{
		Name:            "Go",
		Date:            e.clock.Now(),
		MaxParticipants: 5,
	})
	require.NoError(t, err)

	coord := session.NewCoordinator(session.Config{
		RoomID:                 lec.RoomID,
		User:                   teacher,
		Transport:              New(e.url),
		Media:                  session.HeadlessMedia{},
		Members:                e.members,
		ClearedDisconnectDelay: 100 * time.Millisecond,
	})
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go coord.Run(runCtx)

	require.NoError(t, coord.Mount(ctx))
	require.Eventually(t, func() bool { return coord.Snapshot().HasJoined }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		parts, err := e.members.ListParticipants(ctx, lec.RoomID)
		return err == nil && len(parts) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, coord.SendMessage(ctx, "welcome"))
	require.Eventually(t, func() bool { return len(coord.Snapshot().Messages) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, coord.StartStream(ctx, domain.QualityMedium))
	require.Eventually(t, func() bool {
		parts, err := e.members.ListParticipants(ctx, lec.RoomID)
		return err == nil && len(parts) == 1 && parts[0].IsStreaming
	}, 2*time.Second, 10*time.Millisecond)

	_, err = e.lectures.Transition(ctx, lec.ID, domain.LectureInProgress)
	require.NoError(t, err)
	_, err = e.lectures.Transition(ctx, lec.ID, domain.LectureCompleted)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s := coord.Snapshot()
		return s.Phase == session.PhaseIdle && !s.HasJoined && s.LocalStream == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, coord.Snapshot().SystemMessage, "This session has ended.")
}

func TestCoordinatorRecoversFromSocketDrop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	lec, err := e.lectures.Schedule(ctx, teacher, service.LectureInput{
		Name:            "Go",
		Date:            e.clock.Now(),
		MaxParticipants: 5,
	})
	require.NoError(t, err)

	sd := &socketDialer{}
	coord := session.NewCoordinator(session.Config{
		RoomID:         lec.RoomID,
		User:           teacher,
		Transport:      New(e.url, WithDialer(sd.dialer())),
		Media:          session.HeadlessMedia{},
		Members:        e.members,
		ReconnectDelay: 20 * time.Millisecond,
	})
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go coord.Run(runCtx)

	require.NoError(t, coord.Mount(ctx))
	require.Eventually(t, func() bool { return coord.Snapshot().HasJoined }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		parts, err := e.members.ListParticipants(ctx, lec.RoomID)
		return err == nil && len(parts) == 1
	}, 2*time.Second, 10*time.Millisecond)

	sd.cutLatest()

	require.Eventually(t, func() bool { return sd.count() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		s := coord.Snapshot()
		if s.Phase != session.PhaseConnected || !s.IsConnected {
			return false
		}
		parts, err := e.members.ListParticipants(ctx, lec.RoomID)
		return err == nil && len(parts) == 1 && parts[0].ID == teacher.ID
	}, 3*time.Second, 10*time.Millisecond)
	assert.True(t, coord.Snapshot().HasJoined)

	require.NoError(t, coord.SendMessage(ctx, "still here"))
	require.Eventually(t, func() bool { return len(coord.Snapshot().Messages) == 1 }, 2*time.Second, 10*time.Millisecond)
}
