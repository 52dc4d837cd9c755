package dataapi

import (
	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/rafaeljc/mimir/internal/auth"
	"github.com/rafaeljc/mimir/internal/config"
)

// NewServer builds the gRPC server with the interceptor chain, tracing,
// grpc.health.v1 and reflection. The returned health server starts in
// SERVING for ServiceName; callers flip it to NOT_SERVING on shutdown.
func NewServer(log *slog.Logger, cfg *config.DataPlaneConfig, api *API, authn auth.Authenticator) (*grpc.Server, *grpchealth.Server) {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.MaxConcurrentStreams(cfg.MaxConcurrentStreams),
		grpc.MaxRecvMsgSize(cfg.MaxRecvMsgBytes),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:             cfg.KeepaliveTime,
			Timeout:          cfg.KeepaliveTimeout,
			MaxConnectionAge: cfg.MaxConnectionAge,
		}),
		grpc.ChainUnaryInterceptor(
			RequestLoggerInterceptor(log),
			MetricsInterceptor(),
			AuthInterceptor(authn),
		),
	)

	api.Register(s)

	hs := grpchealth.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	reflection.Register(s)

	return s, hs
}
