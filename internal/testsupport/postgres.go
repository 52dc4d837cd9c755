// Package testsupport provides helpers for integration tests: ephemeral
// PostgreSQL and Redis containers and Prometheus metric assertions.
package testsupport

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/database"
	"github.com/rafaeljc/mimir/internal/logger"
)

// PostgresContainer is a running PostgreSQL container with the Mimir schema
// applied.
type PostgresContainer struct {
	Container        testcontainers.Container
	Pool             *pgxpool.Pool
	DB               *sql.DB
	ConnectionString string
}

// Terminate closes the handles and removes the container.
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	_ = c.DB.Close()
	c.Pool.Close()
	return c.Container.Terminate(ctx)
}

// StartPostgresContainer starts postgres:16-alpine and runs the embedded
// migrations through database.Migrate, so tests see the production schema.
func StartPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("mimir_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, &config.DatabaseConfig{
		URL:             connStr,
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  5 * time.Second,
		PingMaxRetries:  5,
		PingBackoff:     time.Second,
	})
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	db := database.OpenDB(pool)
	if err := database.Migrate(db, logger.Discard()); err != nil {
		_ = db.Close()
		pool.Close()
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &PostgresContainer{
		Container:        pgContainer,
		Pool:             pool,
		DB:               db,
		ConnectionString: connStr,
	}, nil
}
