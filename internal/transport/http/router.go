package http

import (
	"log/slog"
	"net/http"
	"time"

	httpmw "github.com/cwrk-planet/classroom-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/classroom-service/internal/transport/ws"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler, wsServer *ws.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(httpmw.RequestLogger(slog.Default().With("component", "http")))
	r.Use(middlewareChi.Recoverer)

	// WS endpoint; identity travels in the query string.
	r.Get("/ws/rooms/{id}", wsServer.HandleWS)

	r.Get("/healthz", h.Health)

	// Collection CRUD for unprivileged store instances.
	r.Route("/api/store/{collection}", func(sr chi.Router) {
		sr.Use(middlewareChi.Timeout(30 * time.Second))
		sr.Get("/", h.GetCollection)
		sr.Put("/", h.PutCollection)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.Identity)
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Route("/api/lectures", func(lr chi.Router) {
			lr.Get("/", h.ListLectures)
			lr.Post("/", h.ScheduleLecture)

			lr.Route("/{id}", func(ir chi.Router) {
				ir.Get("/", h.GetLecture)
				ir.Patch("/", h.UpdateLecture)
				ir.Post("/status", h.TransitionLecture)
			})
		})

		pr.Route("/api/rooms", func(rm chi.Router) {
			rm.Get("/", h.ListRooms)
			rm.Post("/cleanup", h.CleanupRooms)

			rm.Route("/{id}", func(rr chi.Router) {
				rr.Get("/", h.GetRoom)
				rr.Post("/join", h.JoinRoom)
				rr.Post("/leave", h.LeaveRoom)
				rr.Get("/participants", h.GetParticipants)
			})
		})
	})

	return r
}
