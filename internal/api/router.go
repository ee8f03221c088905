package api

import (
	"github.com/go-chi/chi/v5"
)

// buildRouter assembles the chi router with middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{id}", s.handleGetDevice)
			r.Put("/{id}/position", s.handleSetPosition)
			r.Post("/{mac}/power", s.handleControlPower)
		})

		r.Get("/positions", s.handleListPositions)
		r.Get("/summary", s.handleSummary)

		r.Route("/logs", func(r chi.Router) {
			r.Get("/", s.handleListLogs)
			r.Delete("/", s.handleClearLogs)
			r.Get("/history", s.handleLogHistory)
		})

		r.Get("/power/daily", s.handleDailyPower)
	})

	return r
}
