// Package remoteconfig resolves a caller's effective configuration from their
// experiment assignment, with a per-process TTL cache in front of the store.
package remoteconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/rafaeljc/mimir/internal/apperror"
	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/observability"
	"github.com/rafaeljc/mimir/internal/store"
	"github.com/rafaeljc/mimir/internal/validation"
)

// Repository is the persistence the resolver needs.
type Repository interface {
	LatestAssignment(ctx context.Context, userID string) (*store.Assignment, error)
	ActiveVariant(ctx context.Context, experimentID, cohort string) (*store.Variant, error)
	UpsertVariant(ctx context.Context, experimentID, cohort string, data json.RawMessage) (*store.Variant, error)
}

// Cache holds resolved configs keyed by caller identity.
type Cache interface {
	Get(key string) (*Resolved, bool)
	Set(key string, v *Resolved)
	InvalidateAll()
}

// Broadcaster tells other replicas to flush their caches.
type Broadcaster interface {
	Publish(ctx context.Context, reason string) error
}

// Resolved is a caller's effective configuration. ExperimentID and Cohort are
// set only when the document came from the caller's own cohort variant.
type Resolved struct {
	ExperimentID *string
	Cohort       *string
	Config       json.RawMessage
}

// UpdateRequest is the administrative config write.
type UpdateRequest struct {
	ExperimentID string          `json:"experiment_id"`
	Cohort       string          `json:"cohort"`
	ConfigData   json.RawMessage `json:"config_data"`
}

var emptyConfig = json.RawMessage(`{}`)

// Resolver implements FetchConfig and UpdateConfig.
type Resolver struct {
	repo        Repository
	cache       Cache
	broadcaster Broadcaster
}

// NewResolver creates a resolver. broadcaster may be nil in single-replica
// deployments.
func NewResolver(repo Repository, cache Cache, broadcaster Broadcaster) *Resolver {
	validation.AssertPresent(repo, "config repository")
	validation.AssertPresent(cache, "config cache")
	return &Resolver{repo: repo, cache: cache, broadcaster: broadcaster}
}

// FetchConfig returns callerID's configuration. Absent assignments, variants
// and the default row all degrade to {}; only store failures are errors, and
// those are never cached.
func (r *Resolver) FetchConfig(ctx context.Context, callerID string) (*Resolved, error) {
	if callerID == "" {
		return nil, apperror.New(apperror.CodeUnauthorized, "caller identity is required")
	}

	if cached, ok := r.cache.Get(callerID); ok {
		return cached, nil
	}

	resolved, err := r.resolve(ctx, callerID)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeStorageFailed, "failed to resolve config", err)
	}

	r.cache.Set(callerID, resolved)
	return resolved, nil
}

func (r *Resolver) resolve(ctx context.Context, callerID string) (*Resolved, error) {
	assignment, err := r.repo.LatestAssignment(ctx, callerID)
	switch {
	case err == nil:
		variant, err := r.repo.ActiveVariant(ctx, assignment.ExperimentID, assignment.Cohort)
		if err == nil {
			return &Resolved{
				ExperimentID: &assignment.ExperimentID,
				Cohort:       &assignment.Cohort,
				Config:       documentOrEmpty(variant.ConfigData),
			}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		logger.FromContext(ctx).Debug("no active variant for cohort, serving default",
			slog.String("experiment_id", assignment.ExperimentID),
			slog.String("cohort", assignment.Cohort),
		)
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	variant, err := r.repo.ActiveVariant(ctx, store.DefaultExperimentID, store.DefaultCohort)
	if errors.Is(err, store.ErrNotFound) {
		return &Resolved{Config: emptyConfig}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Resolved{Config: documentOrEmpty(variant.ConfigData)}, nil
}

// UpdateConfig stores a variant document and flushes every cached config,
// locally and on peers. A failed broadcast is logged and peers catch up
// within one TTL.
func (r *Resolver) UpdateConfig(ctx context.Context, req UpdateRequest) (*store.Variant, error) {
	if err := validation.ValidateIdentifier("experiment_id", req.ExperimentID); err != nil {
		return nil, validation.AppError(err)
	}
	if err := validation.ValidateIdentifier("cohort", req.Cohort); err != nil {
		return nil, validation.AppError(err)
	}
	if !isObject(req.ConfigData) {
		return nil, apperror.New(apperror.CodeValidationFailed, "config_data: must be a JSON object")
	}

	variant, err := r.repo.UpsertVariant(ctx, req.ExperimentID, req.Cohort, req.ConfigData)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeStorageFailed, "failed to store config", err)
	}

	r.cache.InvalidateAll()
	observability.ConfigCacheInvalidations.WithLabelValues("update").Inc()

	log := logger.FromContext(ctx)
	log.Info("config updated",
		slog.String("experiment_id", req.ExperimentID),
		slog.String("cohort", req.Cohort),
		slog.Int("version", variant.Version),
	)

	if r.broadcaster != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := r.broadcaster.Publish(pubCtx, "update"); err != nil {
			log.Warn("config invalidation broadcast failed", slog.Any("error", err))
		}
	}

	return variant, nil
}

// Flush drops every cached config without a store write.
func (r *Resolver) Flush(ctx context.Context) {
	r.cache.InvalidateAll()
	observability.ConfigCacheInvalidations.WithLabelValues("manual").Inc()

	if r.broadcaster != nil {
		if err := r.broadcaster.Publish(ctx, "manual"); err != nil {
			logger.FromContext(ctx).Warn("config invalidation broadcast failed", slog.Any("error", err))
		}
	}
}

func documentOrEmpty(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return emptyConfig
	}
	return raw
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}
