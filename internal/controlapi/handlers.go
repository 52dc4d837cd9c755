package controlapi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/mimir/internal/apperror"
	"github.com/rafaeljc/mimir/internal/health"
	"github.com/rafaeljc/mimir/internal/ingest"
	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/remoteconfig"
	"github.com/rafaeljc/mimir/internal/validation"
)

// handleHealthCheck serves HealthCheck. Unhealthy answers 503 so load
// balancers can act on the status code alone.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	rep := a.svc.Diagnostics.HealthCheck(r.Context())

	status := http.StatusOK
	if rep.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	render.Status(r, status)
	render.JSON(w, r, rep)
}

func (a *API) handleDetailedHealthCheck(w http.ResponseWriter, r *http.Request) {
	rep := a.svc.Diagnostics.DetailedHealthCheck(r.Context())

	status := http.StatusOK
	if rep.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	render.Status(r, status)
	render.JSON(w, r, rep)
}

// handleUpdateConfig processes PUT /api/v1/configs.
func (a *API) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req remoteconfig.UpdateRequest
	if !a.decode(w, r, &req) {
		return
	}

	v, err := a.svc.Config.UpdateConfig(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, UpdateConfigResponse{Variant: v})
}

// handleFlushCache processes POST /api/v1/cache/flush.
func (a *API) handleFlushCache(w http.ResponseWriter, r *http.Request) {
	a.svc.Config.Flush(r.Context())
	logger.FromContext(r.Context()).Info("config cache flushed")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	exps, err := a.svc.Experiments.ListActiveExperiments(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, ExperimentsResponse{Data: exps, Count: len(exps)})
}

// handleGetAssignment processes POST /api/v1/assignments. Admins may
// assign any user, so user_id is required rather than defaulted.
func (a *API) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	var req AssignmentRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := validation.ValidateIdentifier("user_id", req.UserID); err != nil {
		writeError(w, r, apperror.Wrap(apperror.CodeValidationFailed, err.Error(), err))
		return
	}

	res, err := a.svc.Experiments.GetAssignment(r.Context(), req.UserID, req.ExperimentID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.IsNewAssignment {
		status = http.StatusCreated
	}
	render.Status(r, status)
	render.JSON(w, r, AssignmentResponse{
		UserID:          res.UserID,
		ExperimentID:    res.ExperimentID,
		Cohort:          res.Cohort,
		IsNewAssignment: res.IsNewAssignment,
		AssignedAt:      res.AssignedAt,
	})
}

func (a *API) handleFetchConfig(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	res, err := a.svc.Config.FetchConfig(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, ConfigResponse{
		UserID:       userID,
		ExperimentID: res.ExperimentID,
		Cohort:       res.Cohort,
		Config:       res.Config,
	})
}

// handleGetUserEvents processes GET /api/v1/users/{userID}/events with
// optional limit, offset and event_name query parameters.
func (a *API) handleGetUserEvents(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var q ingest.EventsQuery
	var err error
	if q.Limit, err = parseOptionalInt(r, "limit"); err != nil {
		writeError(w, r, apperror.New(apperror.CodeValidationFailed, err.Error()))
		return
	}
	if q.Offset, err = parseOptionalInt(r, "offset"); err != nil {
		writeError(w, r, apperror.New(apperror.CodeValidationFailed, err.Error()))
		return
	}
	if name := r.URL.Query().Get("event_name"); name != "" {
		q.EventName = &name
	}

	events, err := a.svc.Events.GetUserEvents(r.Context(), userID, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, EventsResponse{Data: events, Count: len(events)})
}

// decode reads the body under the size cap and decodes it strictly. It
// writes the error response and returns false on failure.
func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			render.Status(r, http.StatusRequestEntityTooLarge)
			render.JSON(w, r, ErrorResponse{Code: string(apperror.CodeValidationFailed), Message: "request body too large"})
			return false
		}
		writeError(w, r, apperror.Wrap(apperror.CodeMalformedPayload, "failed to read body", err))
		return false
	}

	if err := validation.DecodeStrict(body, dst); err != nil {
		writeError(w, r, validation.AppError(err))
		return false
	}
	return true
}

func parseOptionalInt(r *http.Request, key string) (*int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: must be an integer", key)
	}
	return &v, nil
}

// writeError maps an application error onto an HTTP status and body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperror.CodeOf(err)
	status := statusFor(code)

	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.String("code", string(code)), slog.String("error", err.Error()))
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Code: string(code), Message: apperror.MessageOf(err), Retryable: apperror.IsRetryable(err)})
}

func statusFor(code apperror.Code) int {
	switch code {
	case apperror.CodeMalformedPayload, apperror.CodeValidationFailed, apperror.CodeInvalidIdentifier:
		return http.StatusBadRequest
	case apperror.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperror.CodeExperimentNotFound:
		return http.StatusNotFound
	case apperror.CodeExperimentInactive:
		return http.StatusConflict
	case apperror.CodeStorageFailed, apperror.CodeAssignmentPersistFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
