// Package server hosts the coordinator HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/gocrack/internal/errors"
	"github.com/3leaps/gocrack/internal/observability"
	"github.com/3leaps/gocrack/internal/server/handlers"
	"github.com/3leaps/gocrack/internal/server/middleware"
	"github.com/3leaps/gocrack/pkg/api"
	"github.com/3leaps/gocrack/pkg/coordinator"
)

// Timeouts bounds the underlying http.Server.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Idle     time.Duration
	Shutdown time.Duration
}

// DefaultTimeouts mirrors the configuration defaults.
var DefaultTimeouts = Timeouts{
	Read:     30 * time.Second,
	Write:    30 * time.Second,
	Idle:     120 * time.Second,
	Shutdown: 10 * time.Second,
}

// Option customizes a Server.
type Option func(*Server)

// WithCoordinator mounts the coordinator API.
func WithCoordinator(c *coordinator.Coordinator) Option {
	return func(s *Server) { s.coord = c }
}

// WithLogger sets the access logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records HTTP metrics into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTimeouts overrides DefaultTimeouts.
func WithTimeouts(t Timeouts) Option {
	return func(s *Server) { s.timeouts = t }
}

// Server is the coordinator HTTP server.
type Server struct {
	host     string
	port     int
	router   chi.Router
	coord    *coordinator.Coordinator
	logger   *zap.Logger
	metrics  *observability.Metrics
	timeouts Timeouts
	srv      *http.Server
}

// New builds a server listening on host:port. Routes are registered
// immediately; nothing listens until ListenAndServe.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:     host,
		port:     port,
		timeouts: DefaultTimeouts,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = observability.ServerLogger
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(s.logger))
	r.Use(middleware.Metrics(s.metrics))
	r.Use(middleware.Recovery)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apperrors.RespondWithError(w, r, apperrors.NewNotFound(fmt.Sprintf("route %s not found", r.URL.Path)))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apperrors.RespondWithError(w, r, apperrors.NewMethodNotAllowed(r.Method))
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get(api.PathVersion, handlers.VersionHandler)

	if s.coord != nil {
		h := handlers.NewCoordinator(s.coord)
		h.Routes(r)
		if hm := handlers.GetHealthManager(); hm != nil {
			hm.RegisterChecker("coordinator", h)
		}
	}
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.timeouts.Read,
		WriteTimeout: s.timeouts.Write,
		IdleTimeout:  s.timeouts.Idle,
	}
	return serve(ctx, s.srv, s.timeouts.Shutdown, s.logger)
}

// ServeMetrics serves the Prometheus registry on its own listener until ctx
// is cancelled.
func ServeMetrics(ctx context.Context, host string, port int, m *observability.Metrics, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(ctx, srv, DefaultTimeouts.Shutdown, logger)
}

func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("HTTP server shutting down", zap.String("addr", srv.Addr))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", srv.Addr, err)
	}
	return <-errCh
}
