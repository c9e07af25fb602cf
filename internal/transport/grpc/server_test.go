package grpcx

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type switchPinger struct{ down atomic.Bool }

func (p *switchPinger) Ping(context.Context) error {
	if p.down.Load() {
		return errors.New("store unreachable")
	}
	return nil
}

func startHealth(t *testing.T, p Pinger) (*Health, healthpb.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := NewServer()
	h := RegisterHealth(gs, p)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return h, healthpb.NewHealthClient(conn)
}

func TestHealthFollowsStore(t *testing.T) {
	p := &switchPinger{}
	h, client := startHealth(t, p)
	ctx := context.Background()

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, h.Check(ctx))
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	p.down.Store(true)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, h.Check(ctx))
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestHealthRunStopsServing(t *testing.T) {
	h, client := startHealth(t, &switchPinger{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestUnaryInterceptor(t *testing.T) {
	icpt := UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/classroom.Rooms/Test"}

	t.Run("adds deadline", func(t *testing.T) {
		_, err := icpt(context.Background(), nil, info, func(ctx context.Context, _ any) (any, error) {
			_, ok := ctx.Deadline()
			assert.True(t, ok)
			return nil, nil
		})
		require.NoError(t, err)
	})

	t.Run("recovers panic", func(t *testing.T) {
		_, err := icpt(context.Background(), nil, info, func(context.Context, any) (any, error) {
			panic("boom")
		})
		assert.Equal(t, codes.Internal, status.Code(err))
	})

	t.Run("keeps handler status", func(t *testing.T) {
		_, err := icpt(context.Background(), nil, info, func(context.Context, any) (any, error) {
			return nil, status.Error(codes.NotFound, "no such room")
		})
		assert.Equal(t, codes.NotFound, status.Code(err))
		assert.Equal(t, "no such room", status.Convert(err).Message())
	})
}
