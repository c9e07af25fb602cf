package grpcx

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultCallTimeout = 10 * time.Second

// finish recovers a handler panic into codes.Internal and logs the call.
// It must be deferred directly so recover sees the panic.
func finish(kind, method string, start time.Time, err *error) {
	log := slog.Default().With("component", "grpc")
	if r := recover(); r != nil {
		log.Error("grpc "+kind+" panic", "method", method, "panic", r, "stack", string(debug.Stack()))
		*err = status.Error(codes.Internal, "internal server error")
	}
	level := slog.LevelDebug
	if code := status.Code(*err); code == codes.Internal || code == codes.Unknown {
		level = slog.LevelWarn
	}
	log.Log(context.Background(), level, "grpc "+kind,
		"method", method,
		"code", status.Code(*err).String(),
		"dur_ms", time.Since(start).Milliseconds())
}

// UnaryServerInterceptor bounds calls that arrive without a deadline.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer finish("unary", info.FullMethod, time.Now(), &err)
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, defaultCallTimeout)
			defer cancel()
		}
		resp, err = handler(ctx, req)
		return resp, err
	}
}

func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer finish("stream", info.FullMethod, time.Now(), &err)
		return handler(srv, ss)
	}
}
