package dataapi

import (
	"context"

	"github.com/rafaeljc/mimir/internal/apperror"
	"github.com/rafaeljc/mimir/internal/auth"
	"github.com/rafaeljc/mimir/internal/experiment"
	"github.com/rafaeljc/mimir/internal/ingest"
	"github.com/rafaeljc/mimir/internal/remoteconfig"
	"github.com/rafaeljc/mimir/internal/validation"
)

func (a *API) collectEvents(ctx context.Context, id auth.Identity, payload []byte) (any, error) {
	res, err := a.ingest.CollectEvents(ctx, id.Subject, payload)
	if err != nil {
		return nil, err
	}
	return CollectEventsResponse{
		Success:        true,
		EventsInserted: res.EventsInserted,
		BatchID:        res.BatchID,
		SessionID:      res.SessionID,
	}, nil
}

func collectEventsFailure(e ErrorResponse) any {
	return CollectEventsFailure{ErrorResponse: e}
}

func (a *API) getUserEvents(ctx context.Context, id auth.Identity, payload []byte) (any, error) {
	var q ingest.EventsQuery
	if err := validation.DecodeStrict(payload, &q); err != nil {
		return nil, validation.AppError(err)
	}

	events, err := a.ingest.GetUserEvents(ctx, id.Subject, q)
	if err != nil {
		return nil, err
	}
	return GetUserEventsResponse{Success: true, Events: events, Count: len(events)}, nil
}

func (a *API) fetchConfig(ctx context.Context, id auth.Identity, payload []byte) (any, error) {
	if err := validation.DecodeStrict(payload, &emptyRequest{}); err != nil {
		return nil, validation.AppError(err)
	}

	res, err := a.config.FetchConfig(ctx, id.Subject)
	if err != nil {
		return nil, err
	}
	return FetchConfigResponse{
		Success:      true,
		ExperimentID: res.ExperimentID,
		Cohort:       res.Cohort,
		Config:       res.Config,
	}, nil
}

func (a *API) updateConfig(ctx context.Context, id auth.Identity, payload []byte) (any, error) {
	if !id.IsAdmin() {
		return nil, apperror.New(apperror.CodeUnauthorized, "config updates require the admin role")
	}

	var req remoteconfig.UpdateRequest
	if err := validation.DecodeStrict(payload, &req); err != nil {
		return nil, validation.AppError(err)
	}

	v, err := a.config.UpdateConfig(ctx, req)
	if err != nil {
		return nil, err
	}
	return UpdateConfigResponse{Success: true, Version: v.Version}, nil
}

func (a *API) getAssignment(ctx context.Context, id auth.Identity, payload []byte) (any, error) {
	var req GetAssignmentRequest
	if err := validation.DecodeStrict(payload, &req); err != nil {
		return nil, validation.AppError(err)
	}

	subject, err := experiment.SubjectFor(id.Subject, id.IsAdmin(), req.UserID)
	if err != nil {
		return nil, err
	}

	res, err := a.experiments.GetAssignment(ctx, subject, req.ExperimentID)
	if err != nil {
		return nil, err
	}
	return GetAssignmentResponse{
		Success:         true,
		UserID:          res.UserID,
		ExperimentID:    res.ExperimentID,
		Cohort:          res.Cohort,
		IsNewAssignment: res.IsNewAssignment,
		AssignedAt:      res.AssignedAt,
	}, nil
}

func (a *API) listActiveExperiments(ctx context.Context, _ auth.Identity, payload []byte) (any, error) {
	if err := validation.DecodeStrict(payload, &emptyRequest{}); err != nil {
		return nil, validation.AppError(err)
	}

	exps, err := a.experiments.ListActiveExperiments(ctx)
	if err != nil {
		return nil, err
	}
	return ListActiveExperimentsResponse{Success: true, Experiments: exps, Count: len(exps)}, nil
}

func (a *API) healthCheck(ctx context.Context, _ auth.Identity, _ []byte) (any, error) {
	return a.diagnostics.HealthCheck(ctx), nil
}

func (a *API) detailedHealthCheck(ctx context.Context, _ auth.Identity, _ []byte) (any, error) {
	return a.diagnostics.DetailedHealthCheck(ctx), nil
}
