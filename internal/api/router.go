package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Method(http.MethodGet, "/metrics/prometheus", s.metrics.Handler())

		// Door-facing access operations
		r.Post("/verify", s.handleVerify)
		r.Post("/issue_key", s.handleIssueKey)
		r.Post("/return_key", s.handleReturnKey)
		r.Post("/issue", s.handleIssueKey)
		r.Post("/return", s.handleReturnKey)

		// Credential administration
		r.Route("/credentials", func(r chi.Router) {
			r.Get("/", s.handleListCredentials)
			r.Post("/", s.handleCreateCredential)
			r.Get("/by-serial/{serial}", s.handleGetCredentialBySerial)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetCredential)
				r.Patch("/", s.handleUpdateCredential)
				r.Delete("/", s.handleDeleteCredential)
			})
		})

		r.Get("/access-events", s.handleListAccessEvents)

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

// wsPath returns the WebSocket route relative to /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			s.logger.Warn("database health check failed", "error", err)
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"mqtt":    s.mqttConnected(),
	})
}
