package validation

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func validEvent() Event {
	return Event{EventName: "level_complete", Timestamp: "1700000000000"}
}

func TestValidateEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(e *Event)
		wantField string
	}{
		{name: "Should accept a minimal event", mutate: func(e *Event) {}},
		{name: "Should accept an event with every optional field", mutate: func(e *Event) {
			e.Properties = json.RawMessage(`{"level": 3, "nested": {"deep": [1, {"x": null}]}}`)
			e.ExperimentID = strPtr("exp_1")
			e.Cohort = strPtr("treatment")
		}},
		{name: "Should accept null properties", mutate: func(e *Event) { e.Properties = json.RawMessage(`null`) }},
		{name: "Should accept exactly 255 characters", mutate: func(e *Event) { e.EventName = strings.Repeat("é", 255) }},
		{name: "Should accept exponent timestamps", mutate: func(e *Event) { e.Timestamp = "1.7e12" }},
		{name: "Should reject an empty event name", mutate: func(e *Event) { e.EventName = "" }, wantField: "event_name"},
		{name: "Should reject a 256 character event name", mutate: func(e *Event) { e.EventName = strings.Repeat("a", 256) }, wantField: "event_name"},
		{name: "Should reject a missing timestamp", mutate: func(e *Event) { e.Timestamp = "" }, wantField: "timestamp"},
		{name: "Should reject a zero timestamp", mutate: func(e *Event) { e.Timestamp = "0" }, wantField: "timestamp"},
		{name: "Should reject a negative timestamp", mutate: func(e *Event) { e.Timestamp = "-5" }, wantField: "timestamp"},
		{name: "Should reject a fractional timestamp", mutate: func(e *Event) { e.Timestamp = "12.5" }, wantField: "timestamp"},
		{name: "Should reject array properties", mutate: func(e *Event) { e.Properties = json.RawMessage(`[1,2]`) }, wantField: "properties"},
		{name: "Should reject scalar properties", mutate: func(e *Event) { e.Properties = json.RawMessage(`"x"`) }, wantField: "properties"},
		{name: "Should reject an oversized experiment id", mutate: func(e *Event) { e.ExperimentID = strPtr(strings.Repeat("x", 256)) }, wantField: "experiment_id"},
		{name: "Should reject an oversized cohort", mutate: func(e *Event) { e.Cohort = strPtr(strings.Repeat("x", 256)) }, wantField: "cohort"},
		{name: "Should reject a string timestamp", mutate: func(e *Event) { e.Timestamp = `"1700000000000"` }, wantField: "timestamp"},
		{name: "Should reject NUL in the event name", mutate: func(e *Event) { e.EventName = "level\x00complete" }, wantField: "event_name"},
		{name: "Should reject NUL in the experiment id", mutate: func(e *Event) { e.ExperimentID = strPtr("exp\x00") }, wantField: "experiment_id"},
		{name: "Should reject NUL in the cohort", mutate: func(e *Event) { e.Cohort = strPtr("\x00") }, wantField: "cohort"},
		{name: "Should reject escaped NUL in properties", mutate: func(e *Event) { e.Properties = json.RawMessage(`{"note":"a\u0000b"}`) }, wantField: "properties"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := validEvent()
			tt.mutate(&e)
			before := e

			err := ValidateEvent(&e)

			assert.Equal(t, before, e, "validation must not mutate its input")
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidEvent)
			var vErr *Error
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.wantField, vErr.Field)
			assert.Equal(t, -1, vErr.Index)
		})
	}
}

func TestValidateBatch(t *testing.T) {
	t.Parallel()

	batchOf := func(n int) *Batch {
		b := &Batch{}
		for range n {
			b.Events = append(b.Events, validEvent())
		}
		return b
	}

	t.Run("Should reject an empty batch", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, ValidateBatch(batchOf(0)), ErrEmptyBatch)
	})

	t.Run("Should reject 101 events", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, ValidateBatch(batchOf(101)), ErrBatchTooLarge)
	})

	t.Run("Should accept 1 and 100 events", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, ValidateBatch(batchOf(1)))
		assert.NoError(t, ValidateBatch(batchOf(100)))
	})

	t.Run("Should report the first invalid event with its index", func(t *testing.T) {
		t.Parallel()

		b := batchOf(5)
		b.Events[2].EventName = ""
		b.Events[4].Timestamp = "0"

		err := ValidateBatch(b)

		var vErr *Error
		require.True(t, errors.As(err, &vErr))
		assert.ErrorIs(t, err, ErrInvalidEvent)
		assert.Equal(t, 2, vErr.Index)
		assert.Equal(t, "event_name", vErr.Field)
		assert.Equal(t, "event 2: event_name: is required", err.Error())
	})

	t.Run("Should reject an oversized session id", func(t *testing.T) {
		t.Parallel()

		b := batchOf(1)
		b.SessionID = strPtr(strings.Repeat("s", 256))

		assert.ErrorIs(t, ValidateBatch(b), ErrInvalidEvent)
	})

	t.Run("Should reject NUL in the session id", func(t *testing.T) {
		t.Parallel()

		b := batchOf(1)
		b.SessionID = strPtr("sess\x00ion")

		err := ValidateBatch(b)
		require.ErrorIs(t, err, ErrInvalidEvent)
		var vErr *Error
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "session_id", vErr.Field)
	})
}

func TestValidateExperimentID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "Should accept letters digits underscore and dash", id: "Exp_2024-q1"},
		{name: "Should accept exactly 255 characters", id: strings.Repeat("a", 255)},
		{name: "Should reject empty", id: "", wantErr: true},
		{name: "Should reject 256 characters", id: strings.Repeat("a", 256), wantErr: true},
		{name: "Should reject spaces", id: "exp 1", wantErr: true},
		{name: "Should reject quotes", id: "exp'1", wantErr: true},
		{name: "Should reject non-ASCII letters", id: "expé", wantErr: true},
		{name: "Should reject trailing newline", id: "exp\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateExperimentID(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidIdentifier)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestEvent_TimestampMillis(t *testing.T) {
	t.Parallel()

	e := Event{Timestamp: "1.7e12"}
	assert.Equal(t, int64(1_700_000_000_000), e.TimestampMillis())
}

func TestAssertNotNil(t *testing.T) {
	t.Parallel()

	var missing *Event
	assert.PanicsWithValue(t, "critical error: event cannot be nil", func() { AssertNotNil(missing, "event") })
	assert.NotPanics(t, func() { AssertNotNil(&Event{}, "event") })
	assert.Panics(t, func() { AssertPresent(nil, "repo") })
}
