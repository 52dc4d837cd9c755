package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/rafaeljc/mimir/migrations"
)

// MigrationStatus reports the schema version after a migration command.
type MigrationStatus struct {
	Version uint
	Dirty   bool
}

// Migrator applies the embedded schema migrations over an open *sql.DB.
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator builds a migrator on db (typically OpenDB(pool)).
func NewMigrator(db *sql.DB) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating postgres driver: %w", err)
	}

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}

	return &Migrator{m: m}, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Down rolls back steps migrations.
func (mg *Migrator) Down(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	if err := mg.m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rolling back migrations: %w", err)
	}
	return nil
}

// Status returns the current schema version. A fresh database reports 0.
func (mg *Migrator) Status() (MigrationStatus, error) {
	version, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, nil
	}
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("getting migration version: %w", err)
	}
	return MigrationStatus{Version: version, Dirty: dirty}, nil
}

// Migrate is the MIGRATE_ON_START path: apply everything and log the result.
// The migrator is not closed because closing it would close db.
func Migrate(db *sql.DB, log *slog.Logger) error {
	mg, err := NewMigrator(db)
	if err != nil {
		return err
	}

	if err := mg.Up(); err != nil {
		return err
	}

	status, err := mg.Status()
	if err != nil {
		return err
	}
	if status.Dirty {
		log.Warn("database migration state is dirty", slog.Uint64("version", uint64(status.Version)))
		return nil
	}
	log.Info("database migrations complete", slog.Uint64("version", uint64(status.Version)))
	return nil
}
