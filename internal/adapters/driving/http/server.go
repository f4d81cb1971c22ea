package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f(ctx)
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	origins    []string
	logger     *slog.Logger

	// Services
	authService      driving.AuthService
	ingestionService driving.IngestionService

	// Infrastructure
	taskQueue driven.TaskQueue
	readiness map[string]Pinger // dependency name -> health check
}

// Config holds server configuration
type Config struct {
	Host            string
	Port            int
	Version         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string // CORS; empty disables CORS headers
	Logger          *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	authService driving.AuthService,
	ingestionService driving.IngestionService,
	taskQueue driven.TaskQueue,
	readiness map[string]Pinger, // can be nil
) *Server {
	defaults := DefaultConfig()
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:           http.NewServeMux(),
		version:          cfg.Version,
		origins:          cfg.AllowedOrigins,
		logger:           logger,
		authService:      authService,
		ingestionService: ingestionService,
		taskQueue:        taskQueue,
		readiness:        readiness,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// Handler returns the router wrapped in the global middleware chain
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = NewRecoveryMiddleware(s.logger).Handler(h)
	if len(s.origins) > 0 {
		h = NewCORSMiddleware(s.origins).Handler(h)
	}
	h = NewLoggingMiddleware(s.logger).Handler(h)
	h = RequestID(h)
	return h
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.authService)

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	s.router.HandleFunc("GET /swagger/doc.json", s.handleSwaggerDoc)

	// Item processing endpoints
	s.router.Handle("GET /api/v1/items/{id}",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetItem)))
	s.router.Handle("GET /api/v1/items/{id}/chunks",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleListChunks)))
	s.router.Handle("POST /api/v1/items/{id}/process",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleProcessItem)))
	s.router.Handle("POST /api/v1/items/{id}/cancel",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleCancelItem)))
	s.router.Handle("POST /api/v1/items/{id}/retry",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleRetryItem)))

	// Task endpoints
	s.router.Handle("GET /api/v1/tasks/{id}",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetTask)))

	// Admin endpoints (unscoped callers only)
	s.router.Handle("GET /api/v1/admin/queue",
		authMiddleware.Authenticate(
			authMiddleware.RequireUnscoped(http.HandlerFunc(s.handleQueueStats))))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
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

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
