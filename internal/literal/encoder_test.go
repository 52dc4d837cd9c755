package literal

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Parallel()

	name := "bob's"
	var nilName *string

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "Should render nil as NULL", value: nil, want: "NULL"},
		{name: "Should quote plain strings", value: "level_up", want: "'level_up'"},
		{name: "Should double embedded single quotes", value: "it's", want: "'it''s'"},
		{name: "Should neutralize a classic injection attempt", value: "x'; DROP TABLE analytics_events; --", want: "'x''; DROP TABLE analytics_events; --'"},
		{name: "Should keep backslashes verbatim", value: `C:\path\'x`, want: `'C:\path\''x'`},
		{name: "Should keep NUL bytes verbatim", value: "a\x00b", want: "'a\x00b'"},
		{name: "Should render an empty string as empty quotes", value: "", want: "''"},
		{name: "Should render true", value: true, want: "TRUE"},
		{name: "Should render false", value: false, want: "FALSE"},
		{name: "Should render int", value: 42, want: "42"},
		{name: "Should render negative int64", value: int64(-7), want: "-7"},
		{name: "Should render uint64", value: uint64(18446744073709551615), want: "18446744073709551615"},
		{name: "Should render floats without exponent noise", value: 0.25, want: "0.25"},
		{name: "Should dereference pointers", value: &name, want: "'bob''s'"},
		{name: "Should render nil pointers as NULL", value: nilName, want: "NULL"},
		{name: "Should cast documents", value: Document(`{"a": 1}`), want: `'{"a":1}'::jsonb`},
		{name: "Should escape quotes inside documents", value: Document(`{"msg":"it's"}`), want: `'{"msg":"it''s"}'::jsonb`},
		{name: "Should accept raw messages as documents", value: json.RawMessage(`[1, 2]`), want: `'[1,2]'::jsonb`},
		{name: "Should render nil documents as NULL", value: Document(nil), want: "NULL"},
		{name: "Should marshal maps as documents", value: map[string]any{"k": "v"}, want: `'{"k":"v"}'::jsonb`},
		{name: "Should render timestamps in UTC", value: time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600)), want: "'2024-01-02T02:04:05Z'::timestamptz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Encode(tt.value)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
	}{
		{name: "Should reject NaN", value: math.NaN()},
		{name: "Should reject +Inf", value: math.Inf(1)},
		{name: "Should reject malformed documents", value: Document(`{"a":`)},
		{name: "Should reject unsupported types", value: struct{}{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Encode(tt.value)
			assert.Error(t, err)
		})
	}
}

func TestEncode_OversizedDocument(t *testing.T) {
	t.Parallel()

	// 1 MiB of quotes: every one must come out doubled, nothing truncated.
	payload := strings.Repeat("'", 1<<20)
	doc, err := json.Marshal(map[string]string{"blob": payload})
	require.NoError(t, err)

	got, err := Encode(Document(doc))

	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got, DocumentCast))
	assert.Equal(t, 2*(1<<20)+2, strings.Count(got, "'"), "inner quotes doubled plus the wrapping pair")
}

func TestDocument_Value(t *testing.T) {
	t.Parallel()

	v, err := Document(`{"a":1}`).Value()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, v)

	v, err = Document(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}
