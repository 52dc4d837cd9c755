// Package observability hosts the operational side of every Mimir binary:
// Prometheus metrics, Kubernetes probes, and OpenTelemetry tracing setup.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rafaeljc/mimir/internal/config"
)

// Server is the sidecar HTTP listener for probes and /metrics. It runs on
// its own port so scrapes and probes never queue behind API traffic.
type Server struct {
	logger   *slog.Logger
	cfg      *config.ObservabilityConfig
	checkers []Checker
	handler  http.Handler
	http     *http.Server
}

// NewServer wires the probe and metrics routes. checkers gate readiness.
func NewServer(logger *slog.Logger, cfg *config.ObservabilityConfig, checkers ...Checker) *Server {
	s := &Server{logger: logger, cfg: cfg, checkers: checkers}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer, middleware.NoCache)
	r.Get(cfg.LivenessPath, s.liveness)
	r.Get(cfg.ReadinessPath, s.readiness)
	r.Method(http.MethodGet, cfg.MetricsPath, promhttp.Handler())
	s.handler = r

	return s
}

// Handler returns the routes without a listener.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured port in the background.
func (s *Server) Start() {
	s.http = &http.Server{
		Addr:         net.JoinHostPort("", s.cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  s.cfg.Timeout,
		WriteTimeout: s.cfg.Timeout,
		IdleTimeout:  3 * s.cfg.Timeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	srv := s.http
	go func() {
		s.logger.Info("observability server listening",
			slog.String("addr", srv.Addr),
			slog.String("liveness_path", s.cfg.LivenessPath),
			slog.String("readiness_path", s.cfg.ReadinessPath),
			slog.String("metrics_path", s.cfg.MetricsPath),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("observability server failed", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown drains the listener. Without a prior Start it does nothing.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	s.logger.Info("stopping observability server")
	return s.http.Shutdown(ctx)
}
