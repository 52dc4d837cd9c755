package controlapi

import (
	"encoding/json"
	"time"

	"github.com/rafaeljc/mimir/internal/store"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	// Code is an application error code such as VALIDATION_FAILED.
	Code    string `json:"code"`
	Message string `json:"message"`
	// Retryable is set when the same request may succeed later.
	Retryable bool `json:"retryable,omitempty"`
}

// UpdateConfigResponse reports the stored variant.
type UpdateConfigResponse struct {
	Variant *store.Variant `json:"variant"`
}

// AssignmentRequest asks for (or creates) a user's cohort.
type AssignmentRequest struct {
	UserID       string `json:"user_id"`
	ExperimentID string `json:"experiment_id"`
}

type AssignmentResponse struct {
	UserID          string    `json:"user_id"`
	ExperimentID    string    `json:"experiment_id"`
	Cohort          string    `json:"cohort"`
	IsNewAssignment bool      `json:"is_new_assignment"`
	AssignedAt      time.Time `json:"assigned_at"`
}

type ExperimentsResponse struct {
	Data  []store.Experiment `json:"data"`
	Count int                `json:"count"`
}

type EventsResponse struct {
	Data  []store.Event `json:"data"`
	Count int           `json:"count"`
}

// ConfigResponse previews what a user would receive from FetchConfig.
type ConfigResponse struct {
	UserID       string          `json:"user_id"`
	ExperimentID *string         `json:"experiment_id"`
	Cohort       *string         `json:"cohort"`
	Config       json.RawMessage `json:"config"`
}
