// Package main runs the Mimir data plane: the gRPC API game clients call for
// event ingestion, remote config and experiment assignment.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rafaeljc/mimir/internal/auth"
	"github.com/rafaeljc/mimir/internal/cache"
	"github.com/rafaeljc/mimir/internal/cohort"
	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/dataapi"
	"github.com/rafaeljc/mimir/internal/database"
	"github.com/rafaeljc/mimir/internal/experiment"
	"github.com/rafaeljc/mimir/internal/health"
	"github.com/rafaeljc/mimir/internal/ingest"
	"github.com/rafaeljc/mimir/internal/invalidation"
	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/messaging"
	"github.com/rafaeljc/mimir/internal/observability"
	"github.com/rafaeljc/mimir/internal/remoteconfig"
	"github.com/rafaeljc/mimir/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// -------------------------------------------------------------------------
	// 1. Configuration & logging
	// -------------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(&cfg.App).With(slog.String("component", "data-plane"))
	slog.SetDefault(log)
	cfg.LogConfig(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, &cfg.Tracing, &cfg.App)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	// -------------------------------------------------------------------------
	// 2. Infrastructure
	// -------------------------------------------------------------------------
	pool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	go database.RunPoolMonitor(ctx, pool, 15*time.Second)

	db := database.OpenDB(pool)
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(db, log); err != nil {
			return err
		}
	}

	repo, err := store.New(db, cfg.Database.QueryMode)
	if err != nil {
		return err
	}
	log.Info("repository ready", slog.String("query_mode", repo.Mode()))

	redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	checkers := []observability.Checker{
		database.NewHealthChecker(pool),
		cache.NewHealthChecker(redisClient),
	}

	// -------------------------------------------------------------------------
	// 3. Domain services
	// -------------------------------------------------------------------------
	configCache, err := cache.NewTTLCache[*remoteconfig.Resolved](cfg.Cache.Capacity, cfg.Cache.TTL, nil)
	if err != nil {
		return err
	}
	defer configCache.Close()
	log.Info("config cache ready", slog.Int("capacity", cfg.Cache.Capacity), slog.Duration("ttl", configCache.TTL()))
	go configCache.RunMetricsCollector(ctx, 15*time.Second)

	broadcaster, err := cache.NewRedisBroadcaster(redisClient, cfg.Redis.InvalidationChannel)
	if err != nil {
		return err
	}

	resolver := remoteconfig.NewResolver(repo, configCache, broadcaster)

	listener := invalidation.New(log, invalidation.Config{
		Channel: cfg.Redis.InvalidationChannel,
		Origin:  broadcaster.Origin(),
	}, redisClient, configCache)

	var pipelineOpts []ingest.Option
	if cfg.Messaging.Enabled {
		publisher, err := messaging.Connect(&cfg.Messaging, &cfg.App, log)
		if err != nil {
			return err
		}
		defer publisher.Close()
		pipelineOpts = append(pipelineOpts, ingest.WithNotifier(publisher))
		checkers = append(checkers, publisher)
	}
	pipeline := ingest.NewPipeline(repo, pipelineOpts...)

	hasher, err := cohort.NewHasher(cfg.Assignment.HashStrategy)
	if err != nil {
		return err
	}
	assignments := experiment.NewService(repo, cohort.NewEngine(hasher))

	reporter := health.NewReporter(repo)

	// -------------------------------------------------------------------------
	// 4. Servers
	// -------------------------------------------------------------------------
	authn, err := auth.New(&cfg.Server.Data)
	if err != nil {
		return fmt.Errorf("failed to configure caller authentication: %w", err)
	}

	api := dataapi.NewAPI(pipeline, resolver, assignments, reporter)
	grpcServer, grpcHealth := dataapi.NewServer(log, &cfg.Server.Data, api, authn)

	lis, err := net.Listen("tcp", cfg.Server.Data.Address())
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", cfg.Server.Data.Address(), err)
	}

	sidecar := observability.NewServer(log, &cfg.Observability, checkers...)
	sidecar.Start()

	errCh := make(chan error, 2)
	go func() {
		if err := listener.Run(ctx); err != nil {
			errCh <- fmt.Errorf("invalidation listener stopped: %w", err)
		}
	}()
	go func() {
		log.Info("grpc server listening", slog.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server failed: %w", err)
		}
	}()

	// -------------------------------------------------------------------------
	// 5. Graceful shutdown
	// -------------------------------------------------------------------------
	select {
	case err = <-errCh:
		log.Error("shutting down after failure", slog.String("error", err.Error()))
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	grpcHealth.SetServingStatus(dataapi.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		log.Warn("graceful stop timed out, forcing")
		grpcServer.Stop()
	}

	if shutdownErr := sidecar.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("observability server shutdown failed", slog.String("error", shutdownErr.Error()))
	}
	if shutdownErr := shutdownTracing(shutdownCtx); shutdownErr != nil {
		log.Warn("tracing shutdown failed", slog.String("error", shutdownErr.Error()))
	}

	log.Info("data plane stopped")
	return err
}
