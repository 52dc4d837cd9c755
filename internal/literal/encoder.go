// Package literal renders Go values as PostgreSQL literals.
//
// It is the escaping seam used when a query is sent without bound parameters
// (store query mode "literal"). Every value that originates from caller input
// must pass through Encode before it becomes part of query text.
package literal

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

const (
	// Null is the store's null literal.
	Null = "NULL"

	// DocumentCast is appended to serialized documents.
	DocumentCast = "::jsonb"

	// TimestampCast is appended to serialized timestamps.
	TimestampCast = "::timestamptz"
)

// ErrUnsupportedType is returned for values that have no literal form.
var ErrUnsupportedType = errors.New("literal: unsupported value type")

// Document marks a JSON text that must be stored as a document.
// In bind mode it is sent as text and PostgreSQL casts it from the column type.
type Document json.RawMessage

// Value implements driver.Valuer.
func (d Document) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return string(d), nil
}

// Encode returns the literal form of v.
func Encode(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return Null, nil
	case string:
		return Quote(val), nil
	case bool:
		if val {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int:
		return strconv.FormatInt(int64(val), 10), nil
	case int8:
		return strconv.FormatInt(int64(val), 10), nil
	case int16:
		return strconv.FormatInt(int64(val), 10), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float32:
		return encodeFloat(float64(val), 32)
	case float64:
		return encodeFloat(val, 64)
	case time.Time:
		return Quote(val.UTC().Format(time.RFC3339Nano)) + TimestampCast, nil
	case Document:
		if val == nil {
			return Null, nil
		}
		return encodeDocument(json.RawMessage(val))
	case json.RawMessage:
		if val == nil {
			return Null, nil
		}
		return encodeDocument(val)
	case map[string]any, []any:
		raw, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("literal: marshal document: %w", err)
		}
		return encodeDocument(raw)
	}

	// Pointers (e.g. *string for optional columns) render their target or NULL.
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Null, nil
		}
		return Encode(rv.Elem().Interface())
	}

	return "", fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

// Quote wraps s in single quotes, doubling embedded quotes.
// Backslashes are left untouched: standard_conforming_strings is on by default
// and the encoder never emits E'' strings.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func encodeFloat(f float64, bitSize int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: non-finite float %v", ErrUnsupportedType, f)
	}
	return strconv.FormatFloat(f, 'g', -1, bitSize), nil
}

// encodeDocument compacts raw into its canonical text before quoting, so the
// literal does not depend on the client's whitespace.
func encodeDocument(raw json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", fmt.Errorf("literal: invalid document: %w", err)
	}
	return Quote(buf.String()) + DocumentCast, nil
}
