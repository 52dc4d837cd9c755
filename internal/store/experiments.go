package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const (
	experimentsTable = "experiment_metadata"
	assignmentsTable = "user_experiment_assignments"
)

var experimentColumns = []string{
	"id", "name", "description", "cohorts", "is_active", "start_date", "end_date",
}

// Experiment mirrors an experiment_metadata row. Cohorts holds the stored
// JSON text with its original key order.
type Experiment struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Cohorts     json.RawMessage `json:"cohorts"`
	IsActive    bool            `json:"is_active"`
	StartDate   *time.Time      `json:"start_date"`
	EndDate     *time.Time      `json:"end_date"`
}

// Assignment mirrors a user_experiment_assignments row.
type Assignment struct {
	UserID       string    `json:"user_id"`
	ExperimentID string    `json:"experiment_id"`
	Cohort       string    `json:"cohort"`
	AssignedAt   time.Time `json:"assigned_at"`
}

// GetExperiment loads one experiment regardless of its active flag.
func (r *Repository) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	qb := r.sb.Select(experimentColumns...).
		From(experimentsTable).
		Where(sq.Eq{"id": id})

	query, args, err := r.render(qb)
	if err != nil {
		return nil, err
	}

	exp, err := scanExperiment(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("get experiment %q: %w", id, mapError(err))
	}
	return exp, nil
}

// ListActiveExperiments returns active experiments, latest start date first.
func (r *Repository) ListActiveExperiments(ctx context.Context) ([]Experiment, error) {
	qb := r.sb.Select(experimentColumns...).
		From(experimentsTable).
		Where(sq.Eq{"is_active": true}).
		OrderBy("start_date DESC NULLS LAST", "id ASC")

	rows, err := r.query(ctx, qb)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		out = append(out, *exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list experiments: rows: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExperiment(s scanner) (*Experiment, error) {
	var (
		exp         Experiment
		description sql.NullString
		cohorts     []byte
		start, end  sql.NullTime
	)
	if err := s.Scan(&exp.ID, &exp.Name, &description, &cohorts, &exp.IsActive, &start, &end); err != nil {
		return nil, err
	}

	exp.Description = nullString(description)
	exp.Cohorts = json.RawMessage(cohorts)
	if start.Valid {
		exp.StartDate = &start.Time
	}
	if end.Valid {
		exp.EndDate = &end.Time
	}
	return &exp, nil
}

// GetAssignment returns the assignment for one (user, experiment) pair.
func (r *Repository) GetAssignment(ctx context.Context, userID, experimentID string) (*Assignment, error) {
	qb := r.sb.Select("user_id", "experiment_id", "cohort", "assigned_at").
		From(assignmentsTable).
		Where(sq.Eq{"user_id": userID, "experiment_id": experimentID})

	var a Assignment
	if err := r.queryRow(ctx, qb, &a.UserID, &a.ExperimentID, &a.Cohort, &a.AssignedAt); err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return &a, nil
}

// LatestAssignment returns the user's most recent assignment in any experiment.
func (r *Repository) LatestAssignment(ctx context.Context, userID string) (*Assignment, error) {
	qb := r.sb.Select("user_id", "experiment_id", "cohort", "assigned_at").
		From(assignmentsTable).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("assigned_at DESC", "id DESC").
		Limit(1)

	var a Assignment
	if err := r.queryRow(ctx, qb, &a.UserID, &a.ExperimentID, &a.Cohort, &a.AssignedAt); err != nil {
		return nil, fmt.Errorf("latest assignment: %w", err)
	}
	return &a, nil
}

// CreateAssignment inserts a new assignment and fills AssignedAt. A second
// insert for the same pair fails with ErrConflict.
func (r *Repository) CreateAssignment(ctx context.Context, a *Assignment) error {
	qb := r.sb.Insert(assignmentsTable).
		Columns("user_id", "experiment_id", "cohort").
		Values(a.UserID, a.ExperimentID, a.Cohort).
		Suffix("RETURNING assigned_at")

	if err := r.queryRow(ctx, qb, &a.AssignedAt); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}
