package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/classroom-service/internal/domain"
)

const (
	DefaultClearedDisconnectDelay = 3 * time.Second
	DefaultReconnectDelay         = 500 * time.Millisecond
	DefaultMaxReconnectDelay      = 10 * time.Second
	DefaultMaxReconnectAttempts   = 10
	teardownTimeout               = 10 * time.Second
)

type Config struct {
	RoomID    string
	User      domain.User
	Transport Transport
	Media     MediaDevices
	Members   Membership

	// ClearedDisconnectDelay is how long a room_cleared notice stays up
	// before the session is torn down.
	ClearedDisconnectDelay time.Duration
	// ReconnectDelay is the wait before the first reconnect after a drop.
	// It doubles per failed attempt up to MaxReconnectDelay; after
	// MaxReconnectAttempts failures the session is torn down.
	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	MaxReconnectAttempts int
	// OnChange receives every new state from the event loop.
	OnChange func(State)
	Logger   *slog.Logger
}

// Coordinator serializes everything about one session through Run's loop.
// Public methods post work to the loop and wait for it.
type Coordinator struct {
	cfg Config
	log *slog.Logger

	cmds chan func()
	done chan struct{}

	// loop-owned
	state          State
	generation     int
	cancelConnect  context.CancelFunc
	clearedTimer   *time.Timer
	reconnectTimer *time.Timer
	attempts       int
	loopCtx        context.Context

	mu     sync.RWMutex
	latest State
}

func NewCoordinator(cfg Config) *Coordinator {
	if cfg.ClearedDisconnectDelay <= 0 {
		cfg.ClearedDisconnectDelay = DefaultClearedDisconnectDelay
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = max(DefaultMaxReconnectDelay, cfg.ReconnectDelay)
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	c := &Coordinator{
		cfg:  cfg,
		log:  log.With("room", cfg.RoomID, "user", cfg.User.ID),
		cmds: make(chan func()),
		done: make(chan struct{}),
	}
	c.state = State{Phase: PhaseIdle}
	c.latest = c.state
	return c
}

// Run is the event loop. It returns when ctx is done, tearing the session
// down first.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)
	c.loopCtx = ctx
	events := c.cfg.Transport.Events()

	for {
		select {
		case <-ctx.Done():
			tctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
			c.teardown(tctx, "shutdown")
			cancel()
			return
		case fn := <-c.cmds:
			fn()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.dispatch(ev)
		}
	}
}

// Done is closed when Run has returned.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Snapshot returns the most recent state.
func (c *Coordinator) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

func (c *Coordinator) do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	select {
	case c.cmds <- func() { res <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) post(fn func()) {
	select {
	case c.cmds <- fn:
	case <-c.done:
	}
}

func (c *Coordinator) setState(s State) {
	c.state = s
	c.mu.Lock()
	c.latest = s
	c.mu.Unlock()
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(s)
	}
}

// Mount opens the connection. A second Mount while a session is active is
// ignored.
func (c *Coordinator) Mount(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.state.Phase != PhaseIdle {
			c.log.Debug("mount ignored", "phase", c.state.Phase)
			return nil
		}
		c.generation++
		s := c.state
		s.Phase = PhaseConnecting
		s.SystemMessage = ""
		s.RoomCleared = false
		c.setState(s)
		c.connect()
		return nil
	})
}

// connect dials in the background and reports back to the loop.
func (c *Coordinator) connect() {
	if c.cancelConnect != nil {
		c.cancelConnect()
	}
	gen := c.generation
	connectCtx, cancel := context.WithCancel(c.loopCtx)
	c.cancelConnect = cancel

	go func() {
		err := c.cfg.Transport.Connect(connectCtx, c.cfg.RoomID, c.cfg.User)
		c.post(func() { c.connectResult(gen, err) })
	}()
}

func (c *Coordinator) connectResult(gen int, err error) {
	// The transport may report connected before Connect returns, so a
	// connected phase is still current.
	live := c.state.Phase == PhaseConnecting || c.state.Phase == PhaseConnected
	if gen != c.generation || !live {
		// the view went away while connecting
		if err == nil {
			if derr := c.cfg.Transport.Disconnect(); derr != nil {
				c.log.Warn("disconnect after late connect failed", "err", derr)
			}
		}
		c.log.Debug("stale connect result dropped", "err", err)
		return
	}
	if err == nil {
		return
	}
	terr := &TransportError{Op: "connect", Err: err}
	if c.attempts > 0 {
		c.log.Warn("reconnect failed", "attempt", c.attempts, "err", terr)
		c.scheduleReconnect()
		return
	}
	c.log.Error("connect failed", "err", terr)
	s := c.state
	s.Phase = PhaseIdle
	s.SystemMessage = terr.Error()
	c.setState(s)
	c.cancelConnect()
	c.cancelConnect = nil
}

func (c *Coordinator) dispatch(ev Event) {
	if c.state.Phase == PhaseIdle || c.state.Phase == PhaseLeaving {
		c.log.Debug("event ignored", "event", ev.Type, "phase", c.state.Phase)
		return
	}
	next, effects := Reduce(c.state, c.cfg.User.ID, ev)
	if ev.Type == EventConnected && next.IsConnected {
		c.attempts = 0
	}
	c.setState(next)
	for _, e := range effects {
		c.run(e)
	}
}

func (c *Coordinator) run(e Effect) {
	ctx := c.loopCtx
	switch e.Kind {
	case EffectJoin:
		if _, err := c.cfg.Members.AddParticipant(ctx, c.cfg.RoomID, c.cfg.User); err != nil {
			c.log.Error("join failed", "err", err)
			c.dispatch(Event{Type: EventJoinFailed})
			return
		}
		c.log.Info("joined room")
		c.refreshParticipants(ctx)

	case EffectRefreshParticipants:
		c.refreshParticipants(ctx)

	case EffectPersistStreaming:
		if err := c.cfg.Members.UpdateParticipantStreamingStatus(ctx, c.cfg.RoomID, e.UserID, e.IsStreaming); err != nil {
			c.log.Warn("persist streaming status failed", "peer", e.UserID, "err", err)
		}

	case EffectStopLocalTracks:
		stopTracks(e.Stream)

	case EffectReconnect:
		c.scheduleReconnect()

	case EffectRestoreMembership:
		c.restoreMembership(ctx)

	case EffectScheduleDisconnect:
		if c.clearedTimer != nil {
			c.clearedTimer.Stop()
		}
		gen := c.generation
		c.clearedTimer = time.AfterFunc(c.cfg.ClearedDisconnectDelay, func() {
			c.post(func() {
				if gen != c.generation {
					return
				}
				tctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
				defer cancel()
				c.teardown(tctx, "room cleared")
			})
		})
	}
}

// scheduleReconnect arms the next reconnect attempt, or tears the session
// down once the attempts are used up.
func (c *Coordinator) scheduleReconnect() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.attempts++
	if c.attempts > c.cfg.MaxReconnectAttempts {
		c.log.Error("giving up reconnecting", "attempts", c.cfg.MaxReconnectAttempts)
		tctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		c.teardown(tctx, "reconnect failed")
		s := c.state
		s.SystemMessage = "Connection lost."
		c.setState(s)
		return
	}

	delay := backoff(c.cfg.ReconnectDelay, c.cfg.MaxReconnectDelay, c.attempts)
	gen := c.generation
	c.log.Info("reconnect scheduled", "attempt", c.attempts, "delay", delay)
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.post(func() {
			if gen != c.generation || c.state.Phase != PhaseConnecting || c.state.IsConnected {
				return
			}
			c.connect()
		})
	})
}

// backoff doubles base for every attempt after the first, capped at ceiling.
func backoff(base, ceiling time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	return min(d, ceiling)
}

// restoreMembership puts the user back on the durable list after a
// reconnect if the relay removed them while the socket was down.
// AddParticipant upserts by id, so a race with another tab is harmless.
func (c *Coordinator) restoreMembership(ctx context.Context) {
	parts, err := c.cfg.Members.ListParticipants(ctx, c.cfg.RoomID)
	if err != nil {
		c.log.Warn("refresh participants failed", "err", err)
		return
	}
	for _, p := range parts {
		if p.ID == c.cfg.User.ID {
			c.dispatch(Event{Type: EventParticipantsLoaded, Participants: parts})
			return
		}
	}
	if _, err := c.cfg.Members.AddParticipant(ctx, c.cfg.RoomID, c.cfg.User); err != nil {
		c.log.Error("rejoin after reconnect failed", "err", err)
		return
	}
	c.log.Info("membership restored after reconnect")
	c.refreshParticipants(ctx)
}

func (c *Coordinator) refreshParticipants(ctx context.Context) {
	parts, err := c.cfg.Members.ListParticipants(ctx, c.cfg.RoomID)
	if err != nil {
		c.log.Warn("refresh participants failed", "err", err)
		return
	}
	c.dispatch(Event{Type: EventParticipantsLoaded, Participants: parts})
}

// Unmount tears the session down. It is safe to call in any phase.
func (c *Coordinator) Unmount(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.teardown(ctx, "unmount")
		return nil
	})
}

// ExitRoom leaves the room on the user's request; the view may unmount
// afterwards.
func (c *Coordinator) ExitRoom(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.teardown(ctx, "exit")
		return nil
	})
}

// teardown runs leave, track stop, remote stream clear, disconnect and flag
// reset in that order. A failing step is logged and the rest still run.
func (c *Coordinator) teardown(ctx context.Context, reason string) {
	s := c.state
	c.log.Info("session teardown", "reason", reason, "phase", s.Phase)

	s.Phase = PhaseLeaving
	c.setState(s)
	if c.cancelConnect != nil {
		c.cancelConnect()
		c.cancelConnect = nil
	}
	if c.clearedTimer != nil {
		c.clearedTimer.Stop()
		c.clearedTimer = nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.attempts = 0

	if s.HasJoined {
		if err := c.cfg.Members.RemoveParticipant(ctx, c.cfg.RoomID, c.cfg.User.ID); err != nil {
			c.log.Warn("leave failed", "err", err)
		}
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("stopping local tracks panicked", "panic", r)
			}
		}()
		stopTracks(s.LocalStream)
	}()
	s.LocalStream = nil

	s.RemoteStreams = nil

	if err := c.cfg.Transport.Disconnect(); err != nil {
		c.log.Warn("disconnect failed", "err", &TransportError{Op: "disconnect", Err: err})
	}

	s.IsConnected = false
	s.HasJoined = false
	s.RoomCleared = false
	s.Phase = PhaseIdle
	c.generation++
	c.setState(s)
}

// StartStream opens local media and announces a broadcast. On failure the
// state is left as it was.
func (c *Coordinator) StartStream(ctx context.Context, quality domain.StreamQuality) error {
	if !quality.Valid() {
		return fmt.Errorf("invalid stream quality %q", quality)
	}
	if !c.Snapshot().IsConnected {
		return &TransportError{Op: "start_stream", Err: ErrNotConnected}
	}

	stream, err := c.cfg.Media.Acquire(ctx, quality)
	if err != nil {
		return &MediaAcquisitionError{Quality: quality, Err: err}
	}

	err = c.do(ctx, func() error {
		if !c.state.IsConnected {
			return &TransportError{Op: "start_stream", Err: ErrNotConnected}
		}
		if err := c.cfg.Transport.StartStream(ctx, stream, quality); err != nil {
			return &TransportError{Op: "start_stream", Err: err}
		}
		prev := c.state.LocalStream
		s := c.state
		s.LocalStream = stream
		c.setState(s)
		if prev != nil {
			stopTracks(prev)
		}
		return nil
	})
	if err != nil {
		stopTracks(stream)
	}
	return err
}

// StopStream ends the local broadcast.
func (c *Coordinator) StopStream(ctx context.Context) error {
	return c.do(ctx, func() error {
		if err := c.cfg.Transport.StopStream(ctx); err != nil {
			return &TransportError{Op: "stop_stream", Err: err}
		}
		s := c.state
		stopTracks(s.LocalStream)
		s.LocalStream = nil
		c.setState(s)
		return nil
	})
}

// SendMessage hands content to the transport. The message shows up through
// message_received like everyone else's.
func (c *Coordinator) SendMessage(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}
	return c.do(ctx, func() error {
		if !c.state.IsConnected {
			return &TransportError{Op: "send", Err: ErrNotConnected}
		}
		if err := c.cfg.Transport.SendMessage(ctx, content); err != nil {
			return &TransportError{Op: "send", Err: err}
		}
		return nil
	})
}
