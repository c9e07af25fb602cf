package store

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ExecContext names the execution context a Store instance serves.
type ExecContext string

const (
	// Privileged processes own the data (local file or database).
	Privileged ExecContext = "privileged"
	// Unprivileged processes reach the data through the privileged one.
	Unprivileged ExecContext = "unprivileged"
)

// Capabilities is what the caller's execution context can do. Privileged
// contexts provide DataDir/Filename or a Sink; unprivileged contexts provide
// BaseURL and optionally an HTTP client and a participant cache.
type Capabilities struct {
	Context ExecContext

	DataDir  string
	Filename string
	Sink     DocumentSink

	BaseURL    string
	HTTPClient *http.Client
	Cache      ParticipantCache
}

// NewBackend builds the backend matching caps.
func NewBackend(caps Capabilities) (Backend, error) {
	switch caps.Context {
	case Privileged:
		if caps.Sink != nil {
			return NewSinkBackend(caps.Sink), nil
		}
		return NewFileBackend(caps.DataDir, caps.Filename), nil
	case Unprivileged:
		if caps.BaseURL == "" {
			return nil, fmt.Errorf("%w: base url", ErrMissingCapability)
		}
		return NewRemoteBackend(caps.BaseURL, caps.HTTPClient, caps.Cache), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownContext, caps.Context)
	}
}

// Provider hands out the single Store of the current execution context. A
// request for a different context replaces the held instance instead of
// reusing a store wired to the wrong backend.
type Provider struct {
	mu      sync.Mutex
	current *Store
	ctxKind ExecContext

	now func() time.Time
	log *slog.Logger
}

func NewProvider(now func() time.Time, log *slog.Logger) *Provider {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Provider{now: now, log: log}
}

func (p *Provider) Instance(caps Capabilities) (*Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil && p.ctxKind == caps.Context {
		return p.current, nil
	}

	backend, err := NewBackend(caps)
	if err != nil {
		return nil, err
	}
	if p.current != nil {
		p.log.Info("store context changed, replacing instance", "from", p.ctxKind, "to", caps.Context)
	}
	p.current = New(backend, WithClock(p.now), WithLogger(p.log))
	p.ctxKind = caps.Context
	return p.current, nil
}

// Context returns the execution context of the held instance, if any.
func (p *Provider) Context() (ExecContext, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctxKind, p.current != nil
}
