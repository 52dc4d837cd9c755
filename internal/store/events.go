package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/rafaeljc/mimir/internal/literal"
)

const eventsTable = "analytics_events"

var eventColumns = []string{
	"id", "user_id", "session_id", "event_name", "event_properties",
	"experiment_id", "cohort", "client_timestamp", "server_timestamp", "created_at",
}

// NewEvent is one row to insert into analytics_events.
type NewEvent struct {
	UserID          string
	SessionID       string
	EventName       string
	Properties      literal.Document
	ExperimentID    *string
	Cohort          *string
	ClientTimestamp int64
	ServerTimestamp time.Time
}

// Event is a persisted analytics event.
type Event struct {
	ID              int64           `json:"id"`
	UserID          string          `json:"user_id"`
	SessionID       string          `json:"session_id"`
	EventName       string          `json:"event_name"`
	Properties      json.RawMessage `json:"event_properties"`
	ExperimentID    *string         `json:"experiment_id"`
	Cohort          *string         `json:"cohort"`
	ClientTimestamp int64           `json:"client_timestamp"`
	ServerTimestamp time.Time       `json:"server_timestamp"`
	CreatedAt       time.Time       `json:"created_at"`
}

// EventFilter scopes ListUserEvents. UserID is mandatory.
type EventFilter struct {
	UserID    string
	EventName *string
	Limit     uint64
	Offset    uint64
}

// InsertEvents writes all events in a single multi-row INSERT and returns the
// number of rows written. The statement is atomic: either every row lands or none.
func (r *Repository) InsertEvents(ctx context.Context, events []NewEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	qb := r.sb.Insert(eventsTable).Columns(
		"user_id", "session_id", "event_name", "event_properties",
		"experiment_id", "cohort", "client_timestamp", "server_timestamp",
	)
	for _, e := range events {
		qb = qb.Values(
			e.UserID, e.SessionID, e.EventName, e.Properties,
			e.ExperimentID, e.Cohort, e.ClientTimestamp, e.ServerTimestamp,
		)
	}

	res, err := r.exec(ctx, qb)
	if err != nil {
		return 0, fmt.Errorf("insert events: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert events: rows affected: %w", err)
	}
	return n, nil
}

// ListUserEvents returns the user's events, newest server timestamp first.
func (r *Repository) ListUserEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	if f.UserID == "" {
		return nil, fmt.Errorf("list events: user id is required")
	}

	qb := r.sb.Select(eventColumns...).
		From(eventsTable).
		Where(sq.Eq{"user_id": f.UserID})
	if f.EventName != nil {
		qb = qb.Where(sq.Eq{"event_name": *f.EventName})
	}
	qb = qb.OrderBy("server_timestamp DESC", "id DESC").Limit(f.Limit).Offset(f.Offset)

	rows, err := r.query(ctx, qb)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]Event, 0, f.Limit)
	for rows.Next() {
		var (
			e              Event
			props          []byte
			expID, cohortN sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.SessionID, &e.EventName, &props,
			&expID, &cohortN, &e.ClientTimestamp, &e.ServerTimestamp, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if props != nil {
			e.Properties = json.RawMessage(props)
		}
		e.ExperimentID = nullString(expID)
		e.Cohort = nullString(cohortN)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: rows: %w", err)
	}

	return events, nil
}
