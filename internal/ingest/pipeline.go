// Package ingest validates and persists client-emitted analytics events.
package ingest

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rafaeljc/mimir/internal/apperror"
	"github.com/rafaeljc/mimir/internal/literal"
	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/messaging"
	"github.com/rafaeljc/mimir/internal/observability"
	"github.com/rafaeljc/mimir/internal/store"
	"github.com/rafaeljc/mimir/internal/validation"
)

// Repository is the persistence the pipeline needs.
type Repository interface {
	InsertEvents(ctx context.Context, events []store.NewEvent) (int64, error)
	ListUserEvents(ctx context.Context, f store.EventFilter) ([]store.Event, error)
}

// Notifier announces persisted batches. Failures never fail ingestion.
type Notifier interface {
	PublishIngested(ctx context.Context, n messaging.Notice) error
}

// CollectResult is the outcome of an accepted batch.
type CollectResult struct {
	EventsInserted int64
	BatchID        string
	SessionID      string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNotifier publishes a Notice after every persisted batch.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithClock overrides the server timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline implements CollectEvents and GetUserEvents.
type Pipeline struct {
	repo     Repository
	notifier Notifier
	now      func() time.Time
	newID    func() string
}

// NewPipeline creates a pipeline over repo.
func NewPipeline(repo Repository, opts ...Option) *Pipeline {
	validation.AssertPresent(repo, "ingest repository")

	p := &Pipeline{repo: repo, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CollectEvents parses, validates and stores one batch for callerID.
//
// Nothing touches the store until the whole batch is valid. Retried batches
// are not deduplicated: the batch id is for client correlation only.
func (p *Pipeline) CollectEvents(ctx context.Context, callerID string, payload []byte) (*CollectResult, error) {
	start := time.Now()
	if callerID == "" {
		return nil, apperror.New(apperror.CodeUnauthorized, "caller identity is required")
	}

	var batch validation.Batch
	if err := validation.DecodeStrict(payload, &batch); err != nil {
		observability.IngestBatchesTotal.WithLabelValues(outcomeFor(err)).Inc()
		return nil, validation.AppError(err)
	}
	if err := validation.ValidateBatch(&batch); err != nil {
		observability.IngestBatchesTotal.WithLabelValues("invalid").Inc()
		return nil, validation.AppError(err)
	}

	batchID := p.newID()
	sessionID := p.newID()
	if batch.SessionID != nil && *batch.SessionID != "" {
		sessionID = *batch.SessionID
	}
	serverTS := p.now().UTC()

	rows := make([]store.NewEvent, len(batch.Events))
	for i, e := range batch.Events {
		rows[i] = store.NewEvent{
			UserID:          callerID,
			SessionID:       sessionID,
			EventName:       e.EventName,
			Properties:      documentOrNil(e.Properties),
			ExperimentID:    e.ExperimentID,
			Cohort:          e.Cohort,
			ClientTimestamp: e.TimestampMillis(),
			ServerTimestamp: serverTS,
		}
	}

	inserted, err := p.repo.InsertEvents(ctx, rows)
	if err != nil {
		observability.IngestBatchesTotal.WithLabelValues("storage_failed").Inc()
		return nil, apperror.Wrap(apperror.CodeStorageFailed, "failed to store events", err)
	}

	observability.IngestBatchesTotal.WithLabelValues("accepted").Inc()
	observability.IngestEventsTotal.Add(float64(inserted))
	observability.IngestBatchSize.Observe(float64(len(rows)))

	log := logger.FromContext(ctx)
	log.Info("events collected",
		slog.String("user_id", callerID),
		slog.String("batch_id", batchID),
		slog.Int64("count", inserted),
		slog.Duration("elapsed", time.Since(start)),
	)

	if p.notifier != nil {
		notice := messaging.Notice{
			BatchID:         batchID,
			SessionID:       sessionID,
			UserID:          callerID,
			Count:           inserted,
			ServerTimestamp: serverTS,
		}
		if err := p.notifier.PublishIngested(ctx, notice); err != nil {
			log.Warn("ingest notification failed", slog.String("batch_id", batchID), slog.Any("error", err))
		}
	}

	return &CollectResult{EventsInserted: inserted, BatchID: batchID, SessionID: sessionID}, nil
}

func outcomeFor(err error) string {
	if apperror.CodeOf(validation.AppError(err)) == apperror.CodeMalformedPayload {
		return "malformed"
	}
	return "invalid"
}

// documentOrNil maps absent and JSON null properties to SQL NULL.
func documentOrNil(raw []byte) literal.Document {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return literal.Document(raw)
}
