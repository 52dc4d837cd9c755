// Package experiment assigns callers to experiment cohorts, exactly once per
// (caller, experiment) pair.
package experiment

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/rafaeljc/mimir/internal/apperror"
	"github.com/rafaeljc/mimir/internal/cohort"
	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/observability"
	"github.com/rafaeljc/mimir/internal/store"
	"github.com/rafaeljc/mimir/internal/validation"
)

// weightTolerance absorbs float rounding in stored weights such as 0.1+0.2+0.7.
const weightTolerance = 1e-9

// Repository is the persistence the service needs.
type Repository interface {
	GetAssignment(ctx context.Context, userID, experimentID string) (*store.Assignment, error)
	CreateAssignment(ctx context.Context, a *store.Assignment) error
	GetExperiment(ctx context.Context, id string) (*store.Experiment, error)
	ListActiveExperiments(ctx context.Context) ([]store.Experiment, error)
}

// Result is the outcome of GetAssignment.
type Result struct {
	UserID          string
	ExperimentID    string
	Cohort          string
	IsNewAssignment bool
	AssignedAt      time.Time
}

// Service implements GetAssignment and ListActiveExperiments.
type Service struct {
	repo   Repository
	engine *cohort.Engine
}

// NewService creates a service. A nil engine uses the rolling hash.
func NewService(repo Repository, engine *cohort.Engine) *Service {
	validation.AssertPresent(repo, "experiment repository")
	if engine == nil {
		engine = cohort.NewEngine(nil)
	}
	return &Service{repo: repo, engine: engine}
}

// GetAssignment returns userID's cohort in experimentID, creating it on first
// access. An existing assignment is returned unchanged even if the
// experiment's weights have moved since. When a concurrent first call wins
// the insert race, the winner's row is re-read and returned as not new.
func (s *Service) GetAssignment(ctx context.Context, userID, experimentID string) (*Result, error) {
	if err := validation.ValidateExperimentID(experimentID); err != nil {
		return nil, validation.AppError(err)
	}
	if userID == "" {
		return nil, apperror.New(apperror.CodeUnauthorized, "caller identity is required")
	}

	existing, err := s.repo.GetAssignment(ctx, userID, experimentID)
	if err == nil {
		observability.AssignmentsTotal.WithLabelValues("existing").Inc()
		return resultOf(existing, false), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		observability.AssignmentsTotal.WithLabelValues("failed").Inc()
		return nil, apperror.Wrap(apperror.CodeStorageFailed, "failed to read assignment", err)
	}

	exp, err := s.repo.GetExperiment(ctx, experimentID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		observability.AssignmentsTotal.WithLabelValues("not_found").Inc()
		return nil, apperror.New(apperror.CodeExperimentNotFound, "experiment not found")
	case err != nil:
		observability.AssignmentsTotal.WithLabelValues("failed").Inc()
		return nil, apperror.Wrap(apperror.CodeStorageFailed, "failed to read experiment", err)
	case !exp.IsActive:
		observability.AssignmentsTotal.WithLabelValues("inactive").Inc()
		return nil, apperror.New(apperror.CodeExperimentInactive, "experiment is not active")
	}

	dist, err := cohort.ParseDistribution(exp.Cohorts)
	if err != nil {
		observability.AssignmentsTotal.WithLabelValues("failed").Inc()
		return nil, apperror.Wrap(apperror.CodeInternal, "experiment cohorts are misconfigured", err)
	}

	log := logger.FromContext(ctx)
	if total := dist.Total(); math.Abs(total-1) > weightTolerance {
		log.Warn("cohort weights do not sum to 1",
			slog.String("experiment_id", experimentID),
			slog.Float64("total", total),
			slog.Any("cohorts", dist.Names()),
		)
	}

	a := &store.Assignment{
		UserID:       userID,
		ExperimentID: experimentID,
		Cohort:       s.engine.Assign(userID, experimentID, dist),
	}

	err = s.repo.CreateAssignment(ctx, a)
	if err == nil {
		observability.AssignmentsTotal.WithLabelValues("created").Inc()
		log.Info("cohort assigned",
			slog.String("user_id", userID),
			slog.String("experiment_id", experimentID),
			slog.String("cohort", a.Cohort),
			slog.String("strategy", s.engine.Strategy()),
		)
		return resultOf(a, true), nil
	}

	if errors.Is(err, store.ErrConflict) {
		winner, readErr := s.repo.GetAssignment(ctx, userID, experimentID)
		if readErr == nil {
			observability.AssignmentsTotal.WithLabelValues("recovered").Inc()
			log.Debug("assignment race lost, returning stored row",
				slog.String("user_id", userID),
				slog.String("experiment_id", experimentID),
			)
			return resultOf(winner, false), nil
		}
		err = errors.Join(err, readErr)
	}

	observability.AssignmentsTotal.WithLabelValues("failed").Inc()
	return nil, apperror.Wrap(apperror.CodeAssignmentPersistFailed, "failed to persist assignment", err)
}

// ListActiveExperiments returns active experiments, newest start date first.
func (s *Service) ListActiveExperiments(ctx context.Context) ([]store.Experiment, error) {
	exps, err := s.repo.ListActiveExperiments(ctx)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeStorageFailed, "failed to list experiments", err)
	}
	if exps == nil {
		exps = []store.Experiment{}
	}
	return exps, nil
}

// SubjectFor picks whose assignment a data plane caller may read. Callers may
// name only themselves unless they are admins.
func SubjectFor(callerID string, isAdmin bool, requested string) (string, error) {
	if requested == "" || requested == callerID {
		return callerID, nil
	}
	if !isAdmin {
		return "", apperror.New(apperror.CodeValidationFailed, "user_id: must match the authenticated caller")
	}
	if err := validation.ValidateIdentifier("user_id", requested); err != nil {
		return "", apperror.Wrap(apperror.CodeValidationFailed, err.Error(), err)
	}
	return requested, nil
}

func resultOf(a *store.Assignment, isNew bool) *Result {
	return &Result{
		UserID:          a.UserID,
		ExperimentID:    a.ExperimentID,
		Cohort:          a.Cohort,
		IsNewAssignment: isNew,
		AssignedAt:      a.AssignedAt,
	}
}
