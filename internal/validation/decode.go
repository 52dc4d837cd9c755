package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rafaeljc/mimir/internal/apperror"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrInvalidPayload   = errors.New("invalid payload")
)

// DecodeStrict decodes a JSON request into dst in two phases. Text that is
// not JSON fails with ErrMalformedPayload; JSON whose shape does not match dst
// (unknown fields, wrong types, non-object top level) fails with
// ErrInvalidPayload. An empty payload decodes as {}.
func DecodeStrict(payload []byte, dst any) error {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	if !json.Valid(payload) {
		return &Error{Err: ErrMalformedPayload, Index: -1, Reason: "payload is not valid JSON"}
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &Error{Err: ErrInvalidPayload, Index: -1, Field: fieldOf(err), Reason: describeDecodeError(err)}
	}
	return nil
}

func fieldOf(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr.Field
	}
	return ""
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return fmt.Sprintf("expected a JSON object, got %s", typeErr.Value)
		}
		return fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value)
	}
	// encoding/json reports unknown fields only as text.
	if msg := err.Error(); strings.HasPrefix(msg, "json: unknown field") {
		return strings.TrimPrefix(msg, "json: ")
	}
	return err.Error()
}

// AppError maps a validation failure onto the caller-facing taxonomy.
// Errors that are not validation failures are returned unchanged.
func AppError(err error) error {
	var vErr *Error
	if !errors.As(err, &vErr) {
		return err
	}

	switch {
	case errors.Is(err, ErrMalformedPayload):
		return apperror.Wrap(apperror.CodeMalformedPayload, vErr.Error(), err)
	case errors.Is(err, ErrInvalidIdentifier):
		return apperror.Wrap(apperror.CodeInvalidIdentifier, vErr.Error(), err)
	default:
		return apperror.Wrap(apperror.CodeValidationFailed, vErr.Error(), err)
	}
}
