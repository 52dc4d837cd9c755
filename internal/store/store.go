// Package store is the data access layer for Mimir. Every query is built with
// squirrel and rendered either with $n bind parameters or, in literal mode,
// with every value inlined through the literal encoder.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rafaeljc/mimir/internal/literal"
)

// Query modes.
const (
	ModeBind    = "bind"
	ModeLiteral = "literal"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when an insert violates a unique constraint.
	ErrConflict = errors.New("store: conflict")
)

// Repository is the Postgres-backed repository shared by every service.
// It is safe for concurrent use.
type Repository struct {
	db   *sql.DB
	mode string
	sb   sq.StatementBuilderType
}

// New creates a repository over db. mode is ModeBind or ModeLiteral; an empty
// mode means ModeBind.
func New(db *sql.DB, mode string) (*Repository, error) {
	if db == nil {
		return nil, errors.New("store: database handle cannot be nil")
	}
	switch mode {
	case "":
		mode = ModeBind
	case ModeBind, ModeLiteral:
	default:
		return nil, fmt.Errorf("store: unknown query mode %q", mode)
	}

	return &Repository{
		db:   db,
		mode: mode,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

// Mode reports the query rendering mode.
func (r *Repository) Mode() string {
	return r.mode
}

// render turns a builder into executable SQL for the configured mode.
// Literal mode returns no args.
func (r *Repository) render(b sq.Sqlizer) (string, []any, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build query: %w", err)
	}

	if r.mode == ModeLiteral {
		inlined, err := literal.Inline(query, args)
		if err != nil {
			return "", nil, err
		}
		return inlined, nil, nil
	}

	query, err = sq.Dollar.ReplacePlaceholders(query)
	if err != nil {
		return "", nil, fmt.Errorf("rewrite placeholders: %w", err)
	}
	return query, args, nil
}

func (r *Repository) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := r.render(b)
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	return res, nil
}

func (r *Repository) query(ctx context.Context, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := r.render(b)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

// queryRow scans a single row into dest, mapping sql.ErrNoRows to ErrNotFound.
func (r *Repository) queryRow(ctx context.Context, b sq.Sqlizer, dest ...any) error {
	query, args, err := r.render(b)
	if err != nil {
		return err
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(dest...); err != nil {
		return mapError(err)
	}
	return nil
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
