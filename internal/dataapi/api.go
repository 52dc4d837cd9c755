// Package dataapi implements the gRPC data plane used by game clients.
//
// Every RPC carries a JSON document in a google.protobuf.StringValue and
// answers with one, so the wire contract stays JSON while the transport is
// gRPC. Business failures are reported inside the body; the gRPC status is
// non-OK only for authentication and transport problems.
package dataapi

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rafaeljc/mimir/internal/experiment"
	"github.com/rafaeljc/mimir/internal/health"
	"github.com/rafaeljc/mimir/internal/ingest"
	"github.com/rafaeljc/mimir/internal/remoteconfig"
	"github.com/rafaeljc/mimir/internal/store"
	"github.com/rafaeljc/mimir/internal/validation"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mimir.v1.TelemetryService"

// RPC method names.
const (
	MethodCollectEvents         = "CollectEvents"
	MethodGetUserEvents         = "GetUserEvents"
	MethodFetchConfig           = "FetchConfig"
	MethodUpdateConfig          = "UpdateConfig"
	MethodGetAssignment         = "GetAssignment"
	MethodListActiveExperiments = "ListActiveExperiments"
	MethodHealthCheck           = "HealthCheck"
	MethodDetailedHealthCheck   = "DetailedHealthCheck"
)

// FullMethod returns the "/service/method" path of an RPC.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// Ingestor is the event ingestion surface.
type Ingestor interface {
	CollectEvents(ctx context.Context, callerID string, payload []byte) (*ingest.CollectResult, error)
	GetUserEvents(ctx context.Context, callerID string, q ingest.EventsQuery) ([]store.Event, error)
}

// ConfigService resolves and updates remote configuration.
type ConfigService interface {
	FetchConfig(ctx context.Context, callerID string) (*remoteconfig.Resolved, error)
	UpdateConfig(ctx context.Context, req remoteconfig.UpdateRequest) (*store.Variant, error)
}

// Assigner is the experiment assignment surface.
type Assigner interface {
	GetAssignment(ctx context.Context, userID, experimentID string) (*experiment.Result, error)
	ListActiveExperiments(ctx context.Context) ([]store.Experiment, error)
}

// Diagnostics reports service health.
type Diagnostics interface {
	HealthCheck(ctx context.Context) *health.Report
	DetailedHealthCheck(ctx context.Context) *health.DetailedReport
}

// TelemetryServer is the handler type registered for ServiceName.
type TelemetryServer interface {
	Invoke(ctx context.Context, method string, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

// API implements TelemetryServer over the domain services.
type API struct {
	ingest      Ingestor
	config      ConfigService
	experiments Assigner
	diagnostics Diagnostics
	ops         map[string]operation
}

// NewAPI creates the data plane API. Every service is required.
func NewAPI(ing Ingestor, cfg ConfigService, exp Assigner, diag Diagnostics) *API {
	validation.AssertPresent(ing, "ingestor")
	validation.AssertPresent(cfg, "config service")
	validation.AssertPresent(exp, "assigner")
	validation.AssertPresent(diag, "diagnostics")

	a := &API{ingest: ing, config: cfg, experiments: exp, diagnostics: diag}
	a.ops = map[string]operation{
		MethodCollectEvents:         {fn: a.collectEvents, authenticated: true, failure: collectEventsFailure},
		MethodGetUserEvents:         {fn: a.getUserEvents, authenticated: true},
		MethodFetchConfig:           {fn: a.fetchConfig, authenticated: true},
		MethodUpdateConfig:          {fn: a.updateConfig, authenticated: true},
		MethodGetAssignment:         {fn: a.getAssignment, authenticated: true},
		MethodListActiveExperiments: {fn: a.listActiveExperiments, authenticated: true},
		MethodHealthCheck:           {fn: a.healthCheck},
		MethodDetailedHealthCheck:   {fn: a.detailedHealthCheck},
	}
	return a
}

// Register attaches the API to a gRPC server.
func (a *API) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&ServiceDesc, a)
}

// ServiceDesc describes mimir.v1.TelemetryService. Every method takes and
// returns a google.protobuf.StringValue holding JSON text.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TelemetryServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodCollectEvents),
		unaryMethod(MethodGetUserEvents),
		unaryMethod(MethodFetchConfig),
		unaryMethod(MethodUpdateConfig),
		unaryMethod(MethodGetAssignment),
		unaryMethod(MethodListActiveExperiments),
		unaryMethod(MethodHealthCheck),
		unaryMethod(MethodDetailedHealthCheck),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mimir/v1/telemetry.proto",
}

func unaryMethod(name string) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(wrapperspb.StringValue)
			if err := dec(in); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, req any) (any, error) {
				return srv.(TelemetryServer).Invoke(ctx, name, req.(*wrapperspb.StringValue))
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, call)
		},
	}
}

func marshal(v any) (*wrapperspb.StringValue, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return wrapperspb.String(string(b)), nil
}
