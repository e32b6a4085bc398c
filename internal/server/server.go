// Package server exposes the job driver over HTTP: job start, status query,
// cancellation, and incremental log streaming.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aptove/xcbridge/internal/driver"
	"github.com/aptove/xcbridge/internal/history"
	"github.com/aptove/xcbridge/internal/registry"
)

// defaultStreamInterval paces the log-streaming poll loop.
const defaultStreamInterval = 100 * time.Millisecond

// JobService defines what the HTTP layer needs from the job driver.
type JobService interface {
	StartBuild(spec driver.BuildSpec) (string, error)
	StartTest(spec driver.TestSpec) (string, error)
	Status(id string) (registry.Snapshot, error)
	Cancel(id string) error
}

// Toolchain reports on the external build tool installation.
type Toolchain interface {
	ListSDKs(ctx context.Context) ([]string, error)
}

// HistoryReader provides read access to the finished-job history.
type HistoryReader interface {
	Get(jobID string) (*history.Record, error)
	List(limit int) ([]*history.Record, error)
}

// Server is the xcbridge HTTP server.
type Server struct {
	addr         string
	jobs         JobService
	toolchain    Toolchain
	history      HistoryReader
	xcodeVersion string
	apiKey       string
	logger       *slog.Logger

	streamInterval time.Duration

	srv    *http.Server
	router *http.ServeMux

	mu      sync.RWMutex
	started bool
}

// Options carries the optional collaborators and settings for a Server.
type Options struct {
	Toolchain    Toolchain
	History      HistoryReader
	XcodeVersion string
	APIKey       string
}

// New creates a new Server instance.
func New(addr string, jobs JobService, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:           addr,
		jobs:           jobs,
		toolchain:      opts.Toolchain,
		history:        opts.History,
		xcodeVersion:   opts.XcodeVersion,
		apiKey:         opts.APIKey,
		logger:         logger,
		streamInterval: defaultStreamInterval,
		router:         http.NewServeMux(),
	}

	s.registerRoutes()

	return s
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	s.router.HandleFunc("GET /status", s.handleStatus)

	s.router.HandleFunc("POST /build", s.handleStartBuild)
	s.router.HandleFunc("GET /build/{id}", s.handleGetBuild)
	s.router.HandleFunc("GET /build/{id}/logs", s.handleJobLogs)
	s.router.HandleFunc("DELETE /build/{id}", s.handleCancel)

	s.router.HandleFunc("POST /test", s.handleStartTest)
	s.router.HandleFunc("GET /test/{id}", s.handleGetTest)
	s.router.HandleFunc("GET /test/{id}/logs", s.handleJobLogs)
	s.router.HandleFunc("DELETE /test/{id}", s.handleCancel)

	s.router.HandleFunc("GET /runs", s.handleListRuns)
	s.router.HandleFunc("GET /runs/{id}", s.handleGetRun)
}

// Handler returns the server's full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.loggingMiddleware(s.authMiddleware(s.router))
}

// Start starts the HTTP server with graceful shutdown support.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.started = true
	s.mu.Unlock()

	s.srv = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server", "reason", ctx.Err())
		return s.Stop(context.Background())
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.srv == nil {
		return nil
	}

	s.logger.Info("stopping HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	s.started = false
	return nil
}

// authMiddleware enforces the X-API-Key header when an API key is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.Header.Get("X-API-Key") == s.apiKey {
			next.ServeHTTP(w, r)
			return
		}
		s.writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid API key")
	})
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code. It
// passes Flush through so streaming responses keep working.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
