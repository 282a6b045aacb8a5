package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/launchkit/launchkit/internal/domain"
	"github.com/launchkit/launchkit/internal/port"
	"github.com/launchkit/launchkit/internal/service/fetcher"
	"go.uber.org/zap"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr string
	// AdminUsername and AdminPassword protect mutating endpoints and the
	// file browser when both are set
	AdminUsername    string
	AdminPassword    string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ProgressInterval time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:         "127.0.0.1:8420",
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     30 * time.Second,
		IdleTimeout:      60 * time.Second,
		ProgressInterval: 500 * time.Millisecond,
	}
}

// JobService runs and tracks jobs
type JobService interface {
	Submit(ctx context.Context, job *domain.Job) (*fetcher.Handle, error)
	Cancel(id string) error
	Registry() *fetcher.Registry
}

// MetricsSource exposes event counters
type MetricsSource interface {
	GetMetrics() map[string]int64
}

// Server represents the HTTP API server
type Server struct {
	config  *Config
	jobs    JobService
	store   port.Store
	metrics MetricsSource
	fs      port.FileSystem
	logger  *zap.Logger
	server  *http.Server

	// jobs submitted over HTTP outlive their request
	jobCtx    context.Context
	cancelAll context.CancelFunc
}

// New creates a new HTTP server. store, metrics and fs may be nil, which
// disables the endpoints depending on them.
func New(cfg *Config, jobs JobService, store port.Store, metrics MetricsSource, fs port.FileSystem, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 500 * time.Millisecond
	}

	s := &Server{
		config:  cfg,
		jobs:    jobs,
		store:   store,
		metrics: metrics,
		fs:      fs,
		logger:  logger,
	}
	s.jobCtx, s.cancelAll = context.WithCancel(context.Background())

	protect := func(h http.HandlerFunc) http.HandlerFunc { return h }
	if s.authEnabled() {
		protect = BasicAuthMiddleware(cfg.AdminUsername, cfg.AdminPassword, logger)
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", s.handleHealth)

	// Jobs
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("POST /api/jobs", protect(s.handleSubmitJob))
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", protect(s.handleCancelJob))
	mux.HandleFunc("GET /ws/progress", s.handleProgressStream)

	// History and counters
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)

	// Download root browser
	if fs != nil {
		mux.HandleFunc("GET /files/", protect(s.handleBrowse))
	}

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      LoggingMiddleware(logger)(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// authEnabled reports whether both admin credentials are configured
func (s *Server) authEnabled() bool {
	return s.config.AdminUsername != "" && s.config.AdminPassword != ""
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop cancels jobs submitted over HTTP and gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	s.cancelAll()
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(); err != nil {
			s.logger.Error("health check failed", zap.Error(err))
			http.Error(w, "Database connection failed", http.StatusServiceUnavailable)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"time":         time.Now().Format(time.RFC3339),
		"running_jobs": s.jobs.Registry().Running(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
