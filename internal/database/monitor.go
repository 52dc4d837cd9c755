package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/mimir/internal/observability"
)

// PoolStatter is the subset of *pgxpool.Pool the monitor samples.
type PoolStatter interface {
	Stat() *pgxpool.Stat
}

// RunPoolMonitor samples pool statistics into Prometheus every interval
// until ctx is cancelled. Run it in its own goroutine.
func RunPoolMonitor(ctx context.Context, pool PoolStatter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	recordPoolStats(pool.Stat())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			recordPoolStats(pool.Stat())
		}
	}
}

func recordPoolStats(s *pgxpool.Stat) {
	observability.DatabasePoolConnections.WithLabelValues("total").Set(float64(s.TotalConns()))
	observability.DatabasePoolConnections.WithLabelValues("idle").Set(float64(s.IdleConns()))
	observability.DatabasePoolConnections.WithLabelValues("in_use").Set(float64(s.AcquiredConns()))
	observability.DatabasePoolConnections.WithLabelValues("max").Set(float64(s.MaxConns()))
	observability.DatabasePoolAcquireCount.Set(float64(s.AcquireCount()))
	observability.DatabasePoolAcquireSeconds.Set(s.AcquireDuration().Seconds())
	observability.DatabasePoolEmptyAcquireCount.Set(float64(s.EmptyAcquireCount()))
}
