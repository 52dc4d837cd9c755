package dataapi

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rafaeljc/mimir/internal/apperror"
	"github.com/rafaeljc/mimir/internal/auth"
	"github.com/rafaeljc/mimir/internal/logger"
)

type operation struct {
	fn            func(ctx context.Context, id auth.Identity, payload []byte) (any, error)
	authenticated bool
	// failure shapes the error body for operations whose failed response
	// carries more than ErrorResponse. Nil means ErrorResponse as is.
	failure func(ErrorResponse) any
}

type outcomeKey struct{}

// outcome carries the application code of a call back to the metrics
// interceptor, since the gRPC status is OK for business failures.
type outcome struct {
	code string
}

func withOutcome(ctx context.Context) (context.Context, *outcome) {
	o := &outcome{code: "OK"}
	return context.WithValue(ctx, outcomeKey{}, o), o
}

func recordOutcome(ctx context.Context, code string) {
	if o, ok := ctx.Value(outcomeKey{}).(*outcome); ok {
		o.code = code
	}
}

// Invoke runs one operation inside the error boundary: panics and errors
// become {success:false, error, error_code} with status OK. Only a missing
// caller identity on an authenticated operation yields a non-OK status.
func (a *API) Invoke(ctx context.Context, method string, req *wrapperspb.StringValue) (resp *wrapperspb.StringValue, err error) {
	op, ok := a.ops[method]
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "method %s not implemented", method)
	}

	id, hasIdentity := auth.FromContext(ctx)
	if op.authenticated && !hasIdentity {
		recordOutcome(ctx, string(apperror.CodeUnauthorized))
		return nil, status.Error(codes.Unauthenticated, "caller identity is required")
	}

	log := logger.FromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in operation",
				slog.String("method", method),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
			resp, err = a.fail(ctx, op, apperror.New(apperror.CodeInternal, "internal error"))
		}
	}()

	body, opErr := op.fn(ctx, id, []byte(req.GetValue()))
	if opErr != nil {
		return a.fail(ctx, op, opErr)
	}

	resp, err = marshal(body)
	if err != nil {
		return a.fail(ctx, op, apperror.Wrap(apperror.CodeInternal, "failed to encode response", err))
	}
	return resp, nil
}

func (a *API) fail(ctx context.Context, op operation, err error) (*wrapperspb.StringValue, error) {
	code := apperror.CodeOf(err)
	recordOutcome(ctx, string(code))

	log := logger.FromContext(ctx)
	if code == apperror.CodeInternal || code == apperror.CodeStorageFailed || code == apperror.CodeAssignmentPersistFailed {
		log.Error("operation failed", slog.String("code", string(code)), slog.String("error", err.Error()))
	} else {
		log.Debug("operation rejected", slog.String("code", string(code)), slog.String("error", err.Error()))
	}

	body := ErrorResponse{
		Success:   false,
		Error:     apperror.MessageOf(err),
		ErrorCode: string(code),
		Retryable: apperror.IsRetryable(err),
	}
	if op.failure != nil {
		return marshal(op.failure(body))
	}
	return marshal(body)
}
