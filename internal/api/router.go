package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/roadwatch/internal/api/incidents"
	"github.com/good-yellow-bee/roadwatch/internal/api/middleware"
	"github.com/good-yellow-bee/roadwatch/internal/api/readings"
	"github.com/good-yellow-bee/roadwatch/internal/api/segments"
	"github.com/good-yellow-bee/roadwatch/internal/api/system"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	ipLimiter := middleware.NewRateLimiter(s.config.RateLimitPerIP)

	// Global middleware
	r.Use(middleware.RequestLogger(s.config.Verbose))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(middleware.Prometheus(s.metrics))
	}

	// Unmatched routes get the same JSON envelope as everything else.
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, ErrMethodNotAllowed)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/readings", func(r chi.Router) {
			readingHandler := readings.NewHandler(s.pipeline, s.readings, s.config.QueryTimeout)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimitByIP(ipLimiter))
				r.Post("/batch", readingHandler.SubmitBatch)
			})
			r.Get("/segment/{id}", readingHandler.ListBySegment)
		})

		r.Route("/incidents", func(r chi.Router) {
			incidentHandler := incidents.NewHandler(s.storage, s.readings, s.ledger, s.publisher, s.metrics, s.config.QueryTimeout)

			r.Get("/", incidentHandler.List)
			r.Get("/{id}", incidentHandler.GetByID)
			r.Post("/{id}/resolve", incidentHandler.Resolve)
		})

		segmentHandler := segments.NewHandler(s.storage)

		r.Route("/segments", func(r chi.Router) {
			r.Get("/", segmentHandler.List)
			r.Get("/{id}", segmentHandler.GetByID)
			r.Get("/{id}/sensors", segmentHandler.ListSensors)
		})

		r.Get("/sensors", segmentHandler.ListAllSensors)

		r.Route("/system", func(r chi.Router) {
			statusHandler := system.NewHandler(system.Sources{
				Storage:   s.storage,
				Readings:  s.readings,
				Ledger:    s.ledger,
				Enricher:  s.enricher,
				Publisher: s.publisher,
				StartedAt: s.startedAt,
			})

			r.Get("/status", statusHandler.Status)
		})
	})

	// Health checks (public, no rate limit)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	return r
}
