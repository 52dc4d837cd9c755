// Package validation checks inbound telemetry payloads and identifiers.
// Validation is pure: it never mutates its input and reports every failure
// as an error value.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxBatchSize is the largest number of events accepted in one batch.
	MaxBatchSize = 100

	// MaxEventNameLength bounds event_name, counted in characters.
	MaxEventNameLength = 255

	// MaxIdentifierLength bounds experiment ids, cohort names and the
	// optional string fields on events.
	MaxIdentifierLength = 255
)

var (
	ErrEmptyBatch        = errors.New("batch contains no events")
	ErrBatchTooLarge     = errors.New("batch exceeds maximum size")
	ErrInvalidEvent      = errors.New("invalid event")
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Error describes a validation failure. Index is the position of the
// offending event in its batch, or -1 when the failure is not per-event.
type Error struct {
	Err    error
	Index  int
	Field  string
	Reason string
}

func (e *Error) Error() string {
	switch {
	case e.Index >= 0 && e.Field != "":
		return fmt.Sprintf("event %d: %s: %s", e.Index, e.Field, e.Reason)
	case e.Index >= 0:
		return fmt.Sprintf("event %d: %s", e.Index, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	default:
		return e.Reason
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Event is one client-emitted analytics event as received on the wire.
type Event struct {
	EventName    string          `json:"event_name"`
	Timestamp    Timestamp       `json:"timestamp"`
	Properties   json.RawMessage `json:"properties,omitempty"`
	ExperimentID *string         `json:"experiment_id,omitempty"`
	Cohort       *string         `json:"cohort,omitempty"`
}

// TimestampMillis returns the client timestamp as milliseconds since epoch.
// It is only meaningful once ValidateEvent has accepted the event.
func (e *Event) TimestampMillis() int64 {
	ms, _ := parseTimestamp(e.Timestamp)
	return ms
}

// Timestamp holds the raw timestamp token. Strings are kept quoted so that
// validation can reject them instead of coercing "1700000000000" to a number.
type Timestamp string

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	token := strings.TrimSpace(string(data))
	if token == "null" {
		token = ""
	}
	*t = Timestamp(token)
	return nil
}

// Batch is the payload of one ingestion call.
type Batch struct {
	Events    []Event `json:"events"`
	SessionID *string `json:"session_id,omitempty"`
}

// ValidateEvent checks the shape and bounds of a single event.
func ValidateEvent(e *Event) error {
	return validateEvent(e, -1)
}

// ValidateBatch checks the batch size, then every event in order, failing
// with the first invalid event annotated with its index.
func ValidateBatch(b *Batch) error {
	switch n := len(b.Events); {
	case n == 0:
		return &Error{Err: ErrEmptyBatch, Index: -1, Field: "events", Reason: "at least one event is required"}
	case n > MaxBatchSize:
		return &Error{Err: ErrBatchTooLarge, Index: -1, Field: "events", Reason: fmt.Sprintf("%d events exceeds the maximum of %d", n, MaxBatchSize)}
	}

	for i := range b.Events {
		if err := validateEvent(&b.Events[i], i); err != nil {
			return err
		}
	}

	if b.SessionID != nil {
		if utf8.RuneCountInString(*b.SessionID) > MaxIdentifierLength {
			return &Error{Err: ErrInvalidEvent, Index: -1, Field: "session_id", Reason: "too long"}
		}
		if hasNUL(*b.SessionID) {
			return &Error{Err: ErrInvalidEvent, Index: -1, Field: "session_id", Reason: reasonNUL}
		}
	}

	return nil
}

// ValidateExperimentID checks an experiment id against the identifier rules:
// non-empty, at most 255 characters, only [a-zA-Z0-9_-].
func ValidateExperimentID(id string) error {
	return ValidateIdentifier("experiment_id", id)
}

// ValidateIdentifier applies the experiment id rules to any named field.
func ValidateIdentifier(field, id string) error {
	switch {
	case id == "":
		return &Error{Err: ErrInvalidIdentifier, Index: -1, Field: field, Reason: "must not be empty"}
	case len(id) > MaxIdentifierLength:
		return &Error{Err: ErrInvalidIdentifier, Index: -1, Field: field, Reason: fmt.Sprintf("must be at most %d characters", MaxIdentifierLength)}
	case !identifierPattern.MatchString(id):
		return &Error{Err: ErrInvalidIdentifier, Index: -1, Field: field, Reason: "may only contain letters, digits, '_' and '-'"}
	}
	return nil
}

func validateEvent(e *Event, index int) error {
	fail := func(field, reason string) error {
		return &Error{Err: ErrInvalidEvent, Index: index, Field: field, Reason: reason}
	}

	if e == nil {
		return fail("", "event is missing")
	}

	switch n := utf8.RuneCountInString(e.EventName); {
	case n == 0:
		return fail("event_name", "is required")
	case n > MaxEventNameLength:
		return fail("event_name", fmt.Sprintf("must be at most %d characters", MaxEventNameLength))
	case hasNUL(e.EventName):
		return fail("event_name", reasonNUL)
	}

	if _, err := parseTimestamp(e.Timestamp); err != nil {
		return fail("timestamp", err.Error())
	}

	if len(e.Properties) > 0 {
		if !isObjectOrNull(e.Properties) {
			return fail("properties", "must be an object")
		}
		if bytes.Contains(e.Properties, escapedNUL) {
			return fail("properties", reasonNUL)
		}
	}

	for _, f := range []struct {
		name  string
		value *string
	}{{"experiment_id", e.ExperimentID}, {"cohort", e.Cohort}} {
		if f.value == nil {
			continue
		}
		if utf8.RuneCountInString(*f.value) > MaxIdentifierLength {
			return fail(f.name, fmt.Sprintf("must be at most %d characters", MaxIdentifierLength))
		}
		if hasNUL(*f.value) {
			return fail(f.name, reasonNUL)
		}
	}

	return nil
}

const reasonNUL = "must not contain NUL characters"

// Postgres text columns cannot store NUL, in plain strings or inside JSONB.
var escapedNUL = []byte(`\u0000`)

func hasNUL(s string) bool {
	return strings.IndexByte(s, 0) >= 0
}

// parseTimestamp accepts integral JSON numbers, including exponent forms
// such as 1.7e12, and rejects strings and anything not strictly positive.
func parseTimestamp(t Timestamp) (int64, error) {
	if t == "" {
		return 0, errors.New("is required")
	}
	if strings.HasPrefix(string(t), `"`) {
		return 0, errors.New("must be a number, not a string")
	}
	n := json.Number(t)
	if ms, err := n.Int64(); err == nil {
		if ms <= 0 {
			return 0, errors.New("must be a positive number")
		}
		return ms, nil
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("must be a number")
	}
	if f <= 0 {
		return 0, errors.New("must be a positive number")
	}
	if f != math.Trunc(f) || f > math.MaxInt64 {
		return 0, errors.New("must be whole milliseconds")
	}
	return int64(f), nil
}

func isObjectOrNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return true
	}
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}
