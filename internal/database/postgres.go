// Package database provides the PostgreSQL connection factory, the
// database/sql bridge used by the repository, and schema migrations.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/logger"
)

// NewPostgresPool creates a pgx pool from cfg and pings it with exponential
// backoff until it answers or PingMaxRetries is exhausted.
func NewPostgresPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config cannot be nil")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	log := logger.FromContext(ctx)
	maxRetries := max(cfg.PingMaxRetries, 1)
	backoff := cfg.PingBackoff

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, max(cfg.ConnectTimeout, time.Second))
		lastErr = pool.Ping(pingCtx)
		cancel()

		if lastErr == nil {
			log.Info("postgres ping successful", slog.Int("attempt", attempt))
			return pool, nil
		}

		log.Warn("postgres ping failed",
			slog.Int("attempt", attempt),
			slog.Int("max_retries", maxRetries),
			slog.String("error", lastErr.Error()),
		)

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				pool.Close()
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	pool.Close()
	return nil, fmt.Errorf("failed to ping database after %d attempts: %w", maxRetries, lastErr)
}

// OpenDB exposes pool as a *sql.DB. Connections stay owned by the pool:
// closing the returned DB does not close the pool.
func OpenDB(pool *pgxpool.Pool) *sql.DB {
	return stdlib.OpenDBFromPool(pool)
}
