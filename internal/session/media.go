package session

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/cwrk-planet/classroom-service/internal/domain"
)

// HeadlessMedia hands out tracks that hold no hardware. Command-line clients
// use it to announce broadcasts without a camera.
type HeadlessMedia struct{}

func (HeadlessMedia) Acquire(ctx context.Context, quality domain.StreamQuality) (MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return &headlessStream{
		id: id,
		tracks: []MediaTrack{
			&headlessTrack{id: id + "-video", kind: "video"},
			&headlessTrack{id: id + "-audio", kind: "audio"},
		},
	}, nil
}

type headlessStream struct {
	id     string
	tracks []MediaTrack
}

func (s *headlessStream) ID() string           { return s.id }
func (s *headlessStream) Tracks() []MediaTrack { return s.tracks }

type headlessTrack struct {
	id      string
	kind    string
	stopped atomic.Bool
}

func (t *headlessTrack) ID() string    { return t.id }
func (t *headlessTrack) Kind() string  { return t.kind }
func (t *headlessTrack) Stop()         { t.stopped.Store(true) }
func (t *headlessTrack) Stopped() bool { return t.stopped.Load() }
