package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthChecker reports PostgreSQL reachability to the readiness probe.
type HealthChecker struct {
	pool *pgxpool.Pool
}

// NewHealthChecker creates a checker over pool.
func NewHealthChecker(pool *pgxpool.Pool) *HealthChecker {
	return &HealthChecker{pool: pool}
}

// Name returns the component name.
func (h *HealthChecker) Name() string {
	return "postgres"
}

// Check pings the pool.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.pool == nil {
		return fmt.Errorf("database pool is nil")
	}
	return h.pool.Ping(ctx)
}
