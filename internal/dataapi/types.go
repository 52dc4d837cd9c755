package dataapi

import (
	"encoding/json"
	"time"

	"github.com/rafaeljc/mimir/internal/store"
)

// ErrorResponse is the body of every failed business call.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	Retryable bool   `json:"retryable,omitempty"`
}

type CollectEventsResponse struct {
	Success        bool   `json:"success"`
	EventsInserted int64  `json:"events_inserted"`
	BatchID        string `json:"batch_id"`
	SessionID      string `json:"session_id"`
}

// CollectEventsFailure is the failed CollectEvents body. A batch is stored
// all or nothing, so events_inserted is always 0.
type CollectEventsFailure struct {
	ErrorResponse
	EventsInserted int64 `json:"events_inserted"`
}

type GetUserEventsResponse struct {
	Success bool          `json:"success"`
	Events  []store.Event `json:"events"`
	Count   int           `json:"count"`
}

// FetchConfigResponse always carries experiment_id and cohort, null when the
// config did not come from an assigned cohort.
type FetchConfigResponse struct {
	Success      bool            `json:"success"`
	ExperimentID *string         `json:"experiment_id"`
	Cohort       *string         `json:"cohort"`
	Config       json.RawMessage `json:"config"`
}

type UpdateConfigResponse struct {
	Success bool `json:"success"`
	Version int  `json:"version"`
}

// GetAssignmentRequest names the experiment. UserID is honoured only when it
// matches the caller or the caller is an admin.
type GetAssignmentRequest struct {
	ExperimentID string `json:"experiment_id"`
	UserID       string `json:"user_id,omitempty"`
}

type GetAssignmentResponse struct {
	Success         bool      `json:"success"`
	UserID          string    `json:"user_id"`
	ExperimentID    string    `json:"experiment_id"`
	Cohort          string    `json:"cohort"`
	IsNewAssignment bool      `json:"is_new_assignment"`
	AssignedAt      time.Time `json:"assigned_at"`
}

type ListActiveExperimentsResponse struct {
	Success     bool               `json:"success"`
	Experiments []store.Experiment `json:"experiments"`
	Count       int                `json:"count"`
}

// emptyRequest accepts {} only.
type emptyRequest struct{}
