// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/good-yellow-bee/roadwatch/internal/api/health"
	"github.com/good-yellow-bee/roadwatch/internal/enrichment"
	"github.com/good-yellow-bee/roadwatch/internal/events"
	"github.com/good-yellow-bee/roadwatch/internal/incident"
	"github.com/good-yellow-bee/roadwatch/internal/ingest"
	"github.com/good-yellow-bee/roadwatch/internal/metrics"
	"github.com/good-yellow-bee/roadwatch/internal/storage"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address        string
	QueryTimeout   time.Duration // Timeout for storage-backed API calls
	RateLimitPerIP int           // Ingestion requests per minute per client IP
	Verbose        bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 10 * time.Second
	}
	if c.RateLimitPerIP == 0 {
		c.RateLimitPerIP = 600
	}
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	storage       storage.Storage
	readings      storage.ReadingRepository
	pipeline      *ingest.Pipeline
	ledger        *incident.Ledger
	enricher      *enrichment.Coordinator
	publisher     events.Publisher
	metrics       *metrics.Collector
	server        *http.Server
	healthHandler *health.Handler
	startedAt     time.Time
}

// Dependencies bundles everything the API serves. Enricher, publisher,
// and metrics are optional; readings may point at a different backend
// than the primary store.
type Dependencies struct {
	Storage   storage.Storage
	Readings  storage.ReadingRepository
	Pipeline  *ingest.Pipeline
	Ledger    *incident.Ledger
	Enricher  *enrichment.Coordinator
	Publisher events.Publisher
	Metrics   *metrics.Collector
}

// New creates a new API server.
func New(cfg *Config, deps Dependencies) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("incident ledger is required")
	}

	cfg.SetDefaults()

	readings := deps.Readings
	if readings == nil {
		readings = deps.Storage.Readings()
	}

	s := &Server{
		config:        cfg,
		storage:       deps.Storage,
		readings:      readings,
		pipeline:      deps.Pipeline,
		ledger:        deps.Ledger,
		enricher:      deps.Enricher,
		publisher:     deps.Publisher,
		metrics:       deps.Metrics,
		healthHandler: health.NewHandler(),
		startedAt:     time.Now(),
	}

	router := s.setupRouter()

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		log.Printf("HTTP API listening on %s", s.config.Address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down HTTP API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	if s.healthHandler != nil {
		s.healthHandler.RegisterChecker(c)
	}
}
