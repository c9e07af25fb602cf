package grpcx

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported through the health service next to the
// overall ("") status.
const ServiceName = "classroom.Rooms"

type Pinger interface {
	Ping(ctx context.Context) error
}

func NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	}, opts...)
	return grpc.NewServer(opts...)
}

// Health publishes SERVING while the store answers pings.
type Health struct {
	srv    *health.Server
	pinger Pinger
	log    *slog.Logger
}

func RegisterHealth(gs *grpc.Server, p Pinger) *Health {
	h := &Health{
		srv:    health.NewServer(),
		pinger: p,
		log:    slog.Default().With("component", "grpc-health"),
	}
	healthpb.RegisterHealthServer(gs, h.srv)
	return h
}

// Check pings the store once and updates the published status.
func (h *Health) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := h.pinger.Ping(ctx); err != nil {
		h.log.Warn("store ping failed", "err", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus("", st)
	h.srv.SetServingStatus(ServiceName, st)
	return st
}

// Run re-checks every interval until ctx is done, then marks everything
// NOT_SERVING.
func (h *Health) Run(ctx context.Context, every time.Duration) {
	h.Check(ctx)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-t.C:
			h.Check(ctx)
		}
	}
}
