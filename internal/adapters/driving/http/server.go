package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driving"
	"github.com/custodia-labs/corpus-core/internal/metrics"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// ScheduleAdmin manages the maintenance schedules; services.Scheduler implements it
type ScheduleAdmin interface {
	ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	TriggerNow(ctx context.Context, id string) (*domain.Task, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	docs       func() string

	// Services
	corpora   driving.CorpusService
	features  driving.FeatureService
	callbacks driving.CallbackService
	schedules ScheduleAdmin // optional

	// Infrastructure
	taskQueue driven.TaskQueue
	checks    map[string]Pinger
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	Version        string
	AllowedOrigins []string
	// Docs returns the OpenAPI document served at /api/v1/openapi.json
	Docs func() string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// Deps are the services and infrastructure behind the routes
type Deps struct {
	Corpora   driving.CorpusService
	Features  driving.FeatureService
	Callbacks driving.CallbackService
	Schedules ScheduleAdmin
	TaskQueue driven.TaskQueue
	// Checks are pinged by /ready, keyed by component name
	Checks  map[string]Pinger
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Deps) *Server {
	s := &Server{
		router:    http.NewServeMux(),
		version:   cfg.Version,
		docs:      cfg.Docs,
		corpora:   deps.Corpora,
		features:  deps.Features,
		callbacks: deps.Callbacks,
		schedules: deps.Schedules,
		taskQueue: deps.TaskQueue,
		checks:    deps.Checks,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "http")

	s.setupRoutes()

	var handler http.Handler = s.router
	handler = NewMetricsMiddleware(s.metrics).Handler(handler)
	handler = NewLoggingMiddleware(s.logger).Handler(handler)
	handler = NewRecoveryMiddleware(s.logger).Handler(handler)
	if len(cfg.AllowedOrigins) > 0 {
		handler = NewCORSMiddleware(cfg.AllowedOrigins).Handler(handler)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	s.router.Handle("GET /metrics", s.metrics.Handler())
	if s.docs != nil {
		s.router.HandleFunc("GET /api/v1/openapi.json", s.handleOpenAPI)
	}

	// Corpus lifecycle
	s.router.HandleFunc("GET /api/v1/corpora", s.handleListCorpora)
	s.router.HandleFunc("POST /api/v1/corpora/crawl", s.handleCreateFromCrawl)
	s.router.HandleFunc("POST /api/v1/corpora/upload", s.handleCreateFromUpload)
	s.router.HandleFunc("GET /api/v1/corpora/{id}", s.handleGetCorpus)
	s.router.HandleFunc("GET /api/v1/corpora/{id}/summary", s.handleCorpusSummary)
	s.router.HandleFunc("GET /api/v1/corpora/{id}/status", s.handleCorpusStatus)
	s.router.HandleFunc("POST /api/v1/corpora/{id}/crawl", s.handleCrawl)
	s.router.HandleFunc("POST /api/v1/corpora/{id}/files", s.handleAddExpectedFiles)
	s.router.HandleFunc("GET /api/v1/corpora/{id}/crawl-ready", s.handleCrawlIsReady)
	s.router.HandleFunc("GET /api/v1/corpora/{id}/upload-ready", s.handleFileUploadIsReady)
	s.router.HandleFunc("POST /api/v1/corpora/{id}/integrity-check", s.handleCheckIntegrity)
	s.router.HandleFunc("GET /api/v1/corpora/{id}/documents/{docID}", s.handleGetDocument)
	s.router.HandleFunc("POST /api/v1/corpora/{id}/documents/delete", s.handleDeleteDocuments)

	// Features, gated by availability
	s.router.HandleFunc("GET /api/v1/corpora/{id}/availability", s.handleCheckAvailability)
	s.router.HandleFunc("GET /api/v1/corpora/{id}/features", s.handleRequestFeatures)
	s.router.HandleFunc("GET /api/v1/corpora/{id}/graph", s.handleRequestGraph)

	// Remote worker callbacks
	s.router.HandleFunc("POST /api/v1/callbacks/compute", s.handleComputeCallback)
	s.router.HandleFunc("POST /api/v1/callbacks/integrity", s.handleIntegrityCallback)
	s.router.HandleFunc("POST /api/v1/callbacks/file-extract", s.handleFileExtractCallback)

	// Task queue
	if s.taskQueue != nil {
		s.router.HandleFunc("GET /api/v1/tasks", s.handleListTasks)
		s.router.HandleFunc("GET /api/v1/tasks/stats", s.handleTaskStats)
		s.router.HandleFunc("GET /api/v1/tasks/{id}", s.handleGetTask)
		s.router.HandleFunc("DELETE /api/v1/tasks/{id}", s.handleCancelTask)
	}

	// Maintenance schedules
	if s.schedules != nil {
		s.router.HandleFunc("GET /api/v1/schedules", s.handleListSchedules)
		s.router.HandleFunc("PUT /api/v1/schedules/{id}", s.handleUpdateSchedule)
		s.router.HandleFunc("POST /api/v1/schedules/{id}/trigger", s.handleTriggerSchedule)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
