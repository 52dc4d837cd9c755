// Package health implements the HealthCheck and DetailedHealthCheck operations.
//
// These are caller-facing diagnostics with a JSON body. Kubernetes probes live
// in the observability sidecar and are unrelated.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/store"
	"github.com/rafaeljc/mimir/internal/validation"
)

// Status is the overall verdict of a report.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Per-check states.
const (
	CheckOK     = "ok"
	CheckFailed = "failed"
)

// Health bodies are visible to unauthenticated callers, so store errors are
// logged and replaced with these fixed messages.
const (
	errDatabaseUnreachable = "database unreachable"
	errUnexpectedPing      = "unexpected ping result"
	errTableUnavailable    = "table unavailable"
)

// pingSentinel is what SELECT 1 must return.
const pingSentinel = 1

const defaultCheckTimeout = 2 * time.Second

// Store is the read-only surface checked by the reporter.
type Store interface {
	Ping(ctx context.Context) (int, error)
	CountRows(ctx context.Context, table string) (int64, error)
}

// Report is the HealthCheck response.
type Report struct {
	Status            Status    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	DatabaseConnected bool      `json:"database_connected"`
	UptimeSeconds     float64   `json:"uptime_seconds"`
	Error             string    `json:"error,omitempty"`
}

// Check is one entry of a detailed report.
type Check struct {
	Status   string `json:"status"`
	RowCount *int64 `json:"row_count,omitempty"`
	Error    string `json:"error,omitempty"`
}

// DetailedReport is the DetailedHealthCheck response.
type DetailedReport struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	UptimeSeconds float64          `json:"uptime_seconds"`
	Checks        map[string]Check `json:"checks"`
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithClock overrides the time source used for timestamps and uptime.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// WithTables overrides the tables counted by DetailedHealthCheck.
func WithTables(tables ...string) Option {
	return func(r *Reporter) { r.tables = tables }
}

// WithCheckTimeout bounds every individual store call.
func WithCheckTimeout(d time.Duration) Option {
	return func(r *Reporter) { r.timeout = d }
}

// Reporter runs diagnostics against the store.
type Reporter struct {
	store   Store
	tables  []string
	timeout time.Duration
	now     func() time.Time
	started time.Time
}

// NewReporter creates a reporter. Uptime counts from this call.
func NewReporter(s Store, opts ...Option) *Reporter {
	validation.AssertPresent(s, "health store")

	r := &Reporter{
		store:   s,
		tables:  store.CoreTables,
		timeout: defaultCheckTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.started = r.now()
	return r
}

func (r *Reporter) uptime(at time.Time) float64 {
	return at.Sub(r.started).Seconds()
}

// HealthCheck runs one store round trip.
func (r *Reporter) HealthCheck(ctx context.Context) *Report {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	v, err := r.store.Ping(ctx)
	now := r.now()
	rep := &Report{Timestamp: now.UTC(), UptimeSeconds: r.uptime(now)}

	switch {
	case err != nil:
		logger.FromContext(ctx).Warn("health check failed", slog.String("error", err.Error()))
		rep.Status = StatusUnhealthy
		rep.Error = errDatabaseUnreachable
	case v != pingSentinel:
		logger.FromContext(ctx).Warn("health check got an unexpected ping result", slog.Int("result", v))
		rep.Status = StatusDegraded
		rep.DatabaseConnected = true
		rep.Error = errUnexpectedPing
	default:
		rep.Status = StatusHealthy
		rep.DatabaseConnected = true
	}
	return rep
}

// DetailedHealthCheck checks connectivity and then every table concurrently.
// A failed table only downgrades the verdict to degraded; an unreachable
// store makes it unhealthy.
func (r *Reporter) DetailedHealthCheck(ctx context.Context) *DetailedReport {
	log := logger.FromContext(ctx)
	checks := make(map[string]Check, len(r.tables)+1)

	pingCtx, cancel := context.WithTimeout(ctx, r.timeout)
	v, err := r.store.Ping(pingCtx)
	cancel()

	status := StatusHealthy
	switch {
	case err != nil:
		log.Warn("database check failed", slog.String("error", err.Error()))
		checks["database"] = Check{Status: CheckFailed, Error: errDatabaseUnreachable}
		status = StatusUnhealthy
	case v != pingSentinel:
		log.Warn("database check got an unexpected ping result", slog.Int("result", v))
		checks["database"] = Check{Status: CheckFailed, Error: errUnexpectedPing}
		status = StatusDegraded
	default:
		checks["database"] = Check{Status: CheckOK}
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		degraded bool
	)

	for _, table := range r.tables {
		wg.Add(1)
		go func(table string) {
			defer wg.Done()

			countCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			n, err := r.store.CountRows(countCtx, table)

			mu.Lock()
			defer mu.Unlock()

			name := "table_" + table
			if err != nil {
				log.Warn("table check failed",
					slog.String("table", table),
					slog.String("error", err.Error()),
				)
				checks[name] = Check{Status: CheckFailed, Error: errTableUnavailable}
				degraded = true
				return
			}
			checks[name] = Check{Status: CheckOK, RowCount: &n}
		}(table)
	}

	wg.Wait()

	if degraded && status == StatusHealthy {
		status = StatusDegraded
	}

	now := r.now()
	return &DetailedReport{
		Status:        status,
		Timestamp:     now.UTC(),
		UptimeSeconds: r.uptime(now),
		Checks:        checks,
	}
}
