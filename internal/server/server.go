// Package server provides the HTTP API for the sync engine.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/soroe/internal/config"
	"github.com/hyperjump/soroe/internal/syncer"
	"github.com/hyperjump/soroe/internal/tracker"
	"github.com/hyperjump/soroe/internal/vecindex"
)

// Probe checks reachability of an external dependency for health reporting.
type Probe func(ctx context.Context) error

// Server is the HTTP server for the sync API.
type Server struct {
	orchestrator *syncer.Orchestrator
	queue        *syncer.Queue
	tracker      *tracker.Tracker
	index        vecindex.Index
	probes       map[string]Probe
	config       *config.ServerConfig
	logger       *zap.Logger
	server       *http.Server
}

// NewServer creates a server with the given dependencies. probes may be nil.
func NewServer(
	orchestrator *syncer.Orchestrator,
	queue *syncer.Queue,
	tr *tracker.Tracker,
	index vecindex.Index,
	probes map[string]Probe,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		orchestrator: orchestrator,
		queue:        queue,
		tracker:      tr,
		index:        index,
		probes:       probes,
		config:       cfg,
		logger:       logger,
	}
}

// Router builds the chi router for the API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/sync", s.handleSync)
	r.Post("/api/v1/rebuild", s.handleRebuild)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/api/v1/history", s.handleHistory)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
