package dataapi

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/rafaeljc/mimir/internal/auth"
	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/observability"
)

// RequestLoggerInterceptor derives a request logger carrying request_id and
// rpc_method, stores it in the context, and logs one line per call.
// The request id comes from x-request-id or is generated.
func RequestLoggerInterceptor(base *slog.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = slog.Default()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		reqID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get("x-request-id"); len(ids) > 0 {
				reqID = ids[0]
			}
		}
		if reqID == "" {
			reqID = uuid.NewString()
		}

		rpcLogger := base.With(
			slog.String("request_id", reqID),
			slog.String("rpc_method", info.FullMethod),
		)
		ctx = logger.WithContext(ctx, rpcLogger)

		resp, err := handler(ctx, req)

		code := status.Code(err)
		level := slog.LevelInfo
		switch code {
		case codes.Internal, codes.Unavailable, codes.DataLoss, codes.Unknown:
			level = slog.LevelError
		case codes.DeadlineExceeded, codes.Unimplemented, codes.Unauthenticated:
			level = slog.LevelWarn
		}

		rpcLogger.Log(ctx, level, "grpc request completed",
			slog.String("code", code.String()),
			slog.Duration("duration", time.Since(start)),
			slog.String("peer_addr", peerAddr(ctx)),
		)

		return resp, err
	}
}

// MetricsInterceptor records latency and totals per method. The code label
// is the application error code for business failures, the gRPC code for
// transport failures, and OK otherwise.
func MetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		ctx, o := withOutcome(ctx)

		resp, err := handler(ctx, req)

		code := o.code
		if err != nil {
			code = status.Code(err).String()
		}

		observability.DataPlaneGrpcDuration.WithLabelValues(info.FullMethod, code).Observe(time.Since(start).Seconds())
		observability.DataPlaneGrpcTotal.WithLabelValues(info.FullMethod, code).Inc()

		return resp, err
	}
}

// AuthInterceptor attaches the caller identity to TelemetryService calls.
// Calls without credentials proceed anonymously and are refused by
// operations that need an identity; invalid credentials are refused here.
func AuthInterceptor(a auth.Authenticator) grpc.UnaryServerInterceptor {
	prefix := "/" + ServiceName + "/"

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		id, err := a.Authenticate(md)
		switch {
		case err == nil:
			ctx = auth.WithIdentity(ctx, id)
		case errors.Is(err, auth.ErrMissingCredentials):
			// anonymous
		default:
			logger.FromContext(ctx).Warn("rejected credentials", slog.String("error", err.Error()))
			return nil, status.Error(codes.Unauthenticated, "invalid credentials")
		}

		return handler(ctx, req)
	}
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok {
		return p.Addr.String()
	}
	return "unknown"
}
