// Package apperror defines the error taxonomy surfaced to callers of the
// public operations. Every failure that crosses the RPC boundary carries one
// of these codes.
package apperror

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure.
type Code string

const (
	CodeMalformedPayload        Code = "MALFORMED_PAYLOAD"
	CodeValidationFailed        Code = "VALIDATION_FAILED"
	CodeInvalidIdentifier       Code = "INVALID_IDENTIFIER"
	CodeExperimentNotFound      Code = "EXPERIMENT_NOT_FOUND"
	CodeExperimentInactive      Code = "EXPERIMENT_INACTIVE"
	CodeAssignmentPersistFailed Code = "ASSIGNMENT_PERSIST_FAILED"
	CodeStorageFailed           Code = "STORAGE_FAILED"
	CodeInternal                Code = "INTERNAL_ERROR"
	CodeUnauthorized            Code = "UNAUTHORIZED"
)

// Error is a coded failure. Message is safe to return to the caller; Err
// holds the underlying cause for logs.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request may succeed later.
func (e *Error) Retryable() bool {
	return e.Code == CodeStorageFailed || e.Code == CodeAssignmentPersistFailed
}

// New returns an Error without an underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap returns an Error with err as the cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// MessageOf returns the caller-facing message for err. Errors outside the
// taxonomy are reduced to a generic message so internals never leak.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

// IsRetryable reports whether err is a coded failure the caller may retry.
// Errors outside the taxonomy are not retryable.
func IsRetryable(err error) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Retryable()
}
