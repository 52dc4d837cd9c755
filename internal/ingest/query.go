package ingest

import (
	"context"
	"fmt"

	"github.com/rafaeljc/mimir/internal/apperror"
	"github.com/rafaeljc/mimir/internal/store"
	"github.com/rafaeljc/mimir/internal/validation"
)

const (
	DefaultEventsLimit = 100
	MaxEventsLimit     = 500
)

// EventsQuery is the GetUserEvents request.
type EventsQuery struct {
	Limit     *int    `json:"limit,omitempty"`
	Offset    *int    `json:"offset,omitempty"`
	EventName *string `json:"event_name,omitempty"`
}

// filter clamps the paging values and builds a store filter scoped to userID.
func (q EventsQuery) filter(userID string) (store.EventFilter, error) {
	f := store.EventFilter{UserID: userID, Limit: DefaultEventsLimit}

	if q.Limit != nil {
		f.Limit = uint64(min(max(*q.Limit, 1), MaxEventsLimit))
	}
	if q.Offset != nil && *q.Offset > 0 {
		f.Offset = uint64(*q.Offset)
	}
	if q.EventName != nil && *q.EventName != "" {
		if len([]rune(*q.EventName)) > validation.MaxEventNameLength {
			return f, validation.AppError(&validation.Error{
				Err: validation.ErrInvalidPayload, Index: -1, Field: "event_name",
				Reason: fmt.Sprintf("must be at most %d characters", validation.MaxEventNameLength),
			})
		}
		f.EventName = q.EventName
	}
	return f, nil
}

// GetUserEvents returns callerID's own events, newest first. The caller
// identity is the only scope: a query can never reach another user's rows.
func (p *Pipeline) GetUserEvents(ctx context.Context, callerID string, q EventsQuery) ([]store.Event, error) {
	if callerID == "" {
		return nil, apperror.New(apperror.CodeUnauthorized, "caller identity is required")
	}

	f, err := q.filter(callerID)
	if err != nil {
		return nil, err
	}

	events, err := p.repo.ListUserEvents(ctx, f)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeStorageFailed, "failed to read events", err)
	}
	return events, nil
}
