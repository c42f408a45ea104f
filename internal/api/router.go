package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/graylogic-mqttlink/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.requirePermission(auth.PermLinkRead))

			r.Get("/link", s.handleLink)
			r.Get("/link/events", s.handleLinkEvents)
			r.Get("/ws", s.handleWebSocket)
		})

		r.With(s.requirePermission(auth.PermLinkPublish)).Post("/publish", s.handlePublish)
	})

	return r
}

// handleHealth reports 200 while the link is up and 503 otherwise, so it can
// back a container or load balancer probe directly.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status":  "ok",
		"state":   s.link.State(),
		"version": s.version,
	}
	if err := s.link.HealthCheck(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["error"] = err.Error()
	}
	writeJSON(w, status, body)
}
