package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/classroom-service/config"
	"github.com/cwrk-planet/classroom-service/internal/logger"
	"github.com/cwrk-planet/classroom-service/internal/postgres"
	"github.com/cwrk-planet/classroom-service/internal/service"
	"github.com/cwrk-planet/classroom-service/internal/store"
	grpcx "github.com/cwrk-planet/classroom-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/classroom-service/internal/transport/http"
	"github.com/cwrk-planet/classroom-service/internal/transport/ws"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("logging.level: %v", err)
	}
	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     level,
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting classroom-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "store", cfg.Store.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- store ---
	caps := store.Capabilities{
		Context:  store.Privileged,
		DataDir:  cfg.Store.DataDir,
		Filename: cfg.Store.Filename,
	}
	if cfg.Store.Backend == config.BackendPostgres {
		db, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Store.Postgres.DSN,
			MaxConns:        cfg.Store.Postgres.MaxConns,
			ApplicationName: cfg.Logging.Service,
		})
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer db.Close()

		docs := postgres.NewDocumentRepository(db.Pool)
		if err := docs.Migrate(ctx); err != nil {
			log.Fatalf("postgres migrate: %v", err)
		}
		caps.Sink = docs
	}
	st, err := store.NewProvider(time.Now, slog.Default().With("component", "store")).Instance(caps)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	if err := st.Ping(ctx); err != nil {
		log.Fatalf("store: %v", err)
	}

	// --- services ---
	roomSvc := service.NewRoomService(st, service.RoomConfig{
		DefaultCapacity: cfg.Rooms.DefaultCapacity,
		GraceWindow:     cfg.GraceWindow(),
	})
	lectureSvc := service.NewLectureService(st, roomSvc, time.Now)
	memberSvc := service.NewMemberService(st, time.Now)

	// --- WS Hub & Server ---
	wsServer := ws.NewServer(ws.NewHub(), memberSvc)
	lectureSvc.SetNotifier(wsServer)

	// --- HTTP ---
	handler := httpx.NewHandler(lectureSvc, roomSvc, memberSvc, st)
	httpSrv := &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     httpx.NewRouter(handler, wsServer),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// --- gRPC ---
	grpcServer := grpcx.NewServer()
	health := grpcx.RegisterHealth(grpcServer, st)

	// --- run ---
	errCh := make(chan error, 2)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.GRPC.Addr != "" {
		go func() {
			lis, err := net.Listen("tcp", cfg.GRPC.Addr)
			if err != nil {
				errCh <- err
				return
			}
			slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- err
			}
		}()
		go health.Run(ctx, 30*time.Second)
	}

	go sweepLoop(ctx, roomSvc, cfg.CleanupInterval())

	// --- graceful shutdown ---
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal")
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}
	stop()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	grpcServer.GracefulStop()
	if err := httpSrv.Shutdown(ctxShutdown); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	slog.Info("stopped")
}

// sweepLoop runs the room sweep on a fixed interval. A failed sweep is only
// logged; the next tick tries again.
func sweepLoop(ctx context.Context, rooms *service.RoomService, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			deleted, err := rooms.CleanupExpiredRooms(ctx)
			if err != nil {
				slog.Warn("room sweep failed", "err", err, "deleted", len(deleted))
				continue
			}
			if len(deleted) > 0 {
				slog.Info("room sweep", "deleted", deleted)
			}
		}
	}
}
