// Package controlapi implements the administrative REST API of the control
// plane: config updates, assignment lookups, experiment listing,
// diagnostics and cache flushes.
package controlapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/mimir/internal/experiment"
	"github.com/rafaeljc/mimir/internal/health"
	"github.com/rafaeljc/mimir/internal/ingest"
	"github.com/rafaeljc/mimir/internal/remoteconfig"
	"github.com/rafaeljc/mimir/internal/store"
	"github.com/rafaeljc/mimir/internal/validation"
)

// ConfigAdmin manages remote configuration.
type ConfigAdmin interface {
	FetchConfig(ctx context.Context, callerID string) (*remoteconfig.Resolved, error)
	UpdateConfig(ctx context.Context, req remoteconfig.UpdateRequest) (*store.Variant, error)
	Flush(ctx context.Context)
}

// Assigner is the experiment assignment surface.
type Assigner interface {
	GetAssignment(ctx context.Context, userID, experimentID string) (*experiment.Result, error)
	ListActiveExperiments(ctx context.Context) ([]store.Experiment, error)
}

// EventReader reads a user's analytics events.
type EventReader interface {
	GetUserEvents(ctx context.Context, userID string, q ingest.EventsQuery) ([]store.Event, error)
}

// Diagnostics reports service health.
type Diagnostics interface {
	HealthCheck(ctx context.Context) *health.Report
	DetailedHealthCheck(ctx context.Context) *health.DetailedReport
}

// Services groups the domain services behind the API.
type Services struct {
	Config      ConfigAdmin
	Experiments Assigner
	Events      EventReader
	Diagnostics Diagnostics
}

// API holds the router and dependencies of the control plane.
type API struct {
	Router *chi.Mux

	svc          Services
	log          *slog.Logger
	apiKeyHash   string
	skipAuth     bool
	maxBodyBytes int64
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the base logger for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.log = l }
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) { a.maxBodyBytes = n }
}

// WithoutAuth disables API key checks. Tests and local development only.
func WithoutAuth() Option {
	return func(a *API) { a.skipAuth = true }
}

// NewAPI creates the control plane API. apiKeyHash is the hex SHA-256 of the
// accepted X-API-Key and is required unless WithoutAuth is given.
func NewAPI(svc Services, apiKeyHash string, opts ...Option) *API {
	validation.AssertPresent(svc.Config, "config admin")
	validation.AssertPresent(svc.Experiments, "assigner")
	validation.AssertPresent(svc.Events, "event reader")
	validation.AssertPresent(svc.Diagnostics, "diagnostics")

	a := &API{
		Router:       chi.NewRouter(),
		svc:          svc,
		log:          slog.Default(),
		apiKeyHash:   apiKeyHash,
		maxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}

	if !a.skipAuth && a.apiKeyHash == "" {
		panic("controlapi: apiKeyHash cannot be empty when authentication is enabled")
	}

	a.configureRoutes()
	return a
}

func (a *API) configureRoutes() {
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(a.requestLogger)
	a.Router.Use(metricsMiddleware)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	a.Router.Get("/health", a.handleHealthCheck)

	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(a.authenticateAPIKey)

		r.Put("/configs", a.handleUpdateConfig)
		r.Post("/cache/flush", a.handleFlushCache)

		r.Get("/experiments", a.handleListExperiments)
		r.Post("/assignments", a.handleGetAssignment)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/config", a.handleFetchConfig)
			r.Get("/events", a.handleGetUserEvents)
		})

		r.Get("/health/detailed", a.handleDetailedHealthCheck)
	})
}

// ServeHTTP lets the API be used directly as an http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.Router.ServeHTTP(w, r)
}
