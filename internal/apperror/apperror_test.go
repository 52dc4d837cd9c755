package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")

	tests := []struct {
		name        string
		err         error
		wantCode    Code
		wantMessage string
		wantRetry   bool
	}{
		{
			name:        "Should read the code of a direct error",
			err:         New(CodeExperimentNotFound, "experiment not found"),
			wantCode:    CodeExperimentNotFound,
			wantMessage: "experiment not found",
		},
		{
			name:        "Should read the code through fmt wrapping",
			err:         fmt.Errorf("get assignment: %w", Wrap(CodeStorageFailed, "failed to store events", cause)),
			wantCode:    CodeStorageFailed,
			wantMessage: "failed to store events",
			wantRetry:   true,
		},
		{
			name:        "Should map unknown errors to internal",
			err:         cause,
			wantCode:    CodeInternal,
			wantMessage: "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.wantCode, CodeOf(tt.err))
			assert.Equal(t, tt.wantMessage, MessageOf(tt.err))
			assert.Equal(t, tt.wantRetry, IsRetryable(tt.err))
		})
	}
}

func TestError(t *testing.T) {
	t.Parallel()

	cause := errors.New("duplicate key")
	err := Wrap(CodeAssignmentPersistFailed, "failed to persist assignment", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "ASSIGNMENT_PERSIST_FAILED: failed to persist assignment: duplicate key", err.Error())
	assert.True(t, err.Retryable())
	assert.False(t, New(CodeValidationFailed, "bad").Retryable())
	assert.Equal(t, "VALIDATION_FAILED: bad", New(CodeValidationFailed, "bad").Error())
}
