package session

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/cwrk-planet/classroom-service/internal/domain"
)

// recorder keeps the order of side effects across fakes.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeTrack struct {
	id  string
	rec *recorder

	mu      sync.Mutex
	stopped bool
}

func (t *fakeTrack) ID() string   { return t.id }
func (t *fakeTrack) Kind() string { return "video" }

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.rec.add("stop:" + t.id)
}

func (t *fakeTrack) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeStream struct {
	id     string
	tracks []*fakeTrack
}

func newFakeStream(rec *recorder, id string) *fakeStream {
	return &fakeStream{
		id: id,
		tracks: []*fakeTrack{
			{id: id + "-video", rec: rec},
			{id: id + "-audio", rec: rec},
		},
	}
}

func (s *fakeStream) ID() string { return s.id }

func (s *fakeStream) Tracks() []MediaTrack {
	out := make([]MediaTrack, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

func (s *fakeStream) allStopped() bool {
	for _, t := range s.tracks {
		if !t.isStopped() {
			return false
		}
	}
	return true
}

type fakeMedia struct {
	rec    *recorder
	err    error
	stream *fakeStream
}

func (m *fakeMedia) Acquire(ctx context.Context, quality domain.StreamQuality) (MediaStream, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.stream = newFakeStream(m.rec, "local")
	return m.stream, nil
}

type fakeTransport struct {
	rec    *recorder
	events chan Event

	mu            sync.Mutex
	gate          chan struct{}
	connectErr    error
	disconnectErr error
	startErr      error
	sendErr       error
	connects      int
	sent          []string
	streaming     bool
}

func newFakeTransport(rec *recorder) *fakeTransport {
	return &fakeTransport{rec: rec, events: make(chan Event, 64)}
}

func (f *fakeTransport) Events() <-chan Event { return f.events }

func (f *fakeTransport) emit(ev Event) { f.events <- ev }

// Connect waits on gate when set, ignoring ctx, to model a connect that
// resolves late.
func (f *fakeTransport) Connect(ctx context.Context, roomID string, user domain.User) error {
	f.mu.Lock()
	f.connects++
	gate, err := f.gate, f.connectErr
	f.mu.Unlock()
	f.rec.add("connect")
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeTransport) Disconnect() error {
	f.rec.add("disconnect")
	return f.disconnectErr
}

func (f *fakeTransport) SendMessage(ctx context.Context, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, content)
	return nil
}

func (f *fakeTransport) StartStream(ctx context.Context, stream MediaStream, quality domain.StreamQuality) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.streaming = true
	return nil
}

func (f *fakeTransport) StopStream(ctx context.Context) error {
	f.mu.Lock()
	f.streaming = false
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) isStreaming() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streaming
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

type membersMock struct {
	mock.Mock
	rec *recorder
}

func (m *membersMock) AddParticipant(ctx context.Context, roomID string, u domain.User) (*domain.Participant, error) {
	args := m.Called(ctx, roomID, u)
	m.rec.add("join")
	p, _ := args.Get(0).(*domain.Participant)
	return p, args.Error(1)
}

func (m *membersMock) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	args := m.Called(ctx, roomID, userID)
	m.rec.add("leave")
	return args.Error(0)
}

func (m *membersMock) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	args := m.Called(ctx, roomID)
	parts, _ := args.Get(0).([]domain.Participant)
	return parts, args.Error(1)
}

func (m *membersMock) UpdateParticipantStreamingStatus(ctx context.Context, roomID, userID string, isStreaming bool) error {
	args := m.Called(ctx, roomID, userID, isStreaming)
	return args.Error(0)
}
