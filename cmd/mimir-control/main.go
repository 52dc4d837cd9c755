// Package main runs the Mimir control plane: the REST API operators use to
// publish config variants, inspect users and check service health.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rafaeljc/mimir/internal/cache"
	"github.com/rafaeljc/mimir/internal/cohort"
	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/controlapi"
	"github.com/rafaeljc/mimir/internal/database"
	"github.com/rafaeljc/mimir/internal/experiment"
	"github.com/rafaeljc/mimir/internal/health"
	"github.com/rafaeljc/mimir/internal/ingest"
	"github.com/rafaeljc/mimir/internal/invalidation"
	"github.com/rafaeljc/mimir/internal/logger"
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

	log := logger.New(&cfg.App).With(slog.String("component", "control-plane"))
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

	// -------------------------------------------------------------------------
	// 3. Domain services
	// -------------------------------------------------------------------------
	// The control plane keeps its own cache so user previews match what the
	// data plane serves; updates published here flush every replica.
	configCache, err := cache.NewTTLCache[*remoteconfig.Resolved](cfg.Cache.Capacity, cfg.Cache.TTL, nil)
	if err != nil {
		return err
	}
	defer configCache.Close()
	log.Info("config cache ready", slog.Int("capacity", cfg.Cache.Capacity), slog.Duration("ttl", configCache.TTL()))

	broadcaster, err := cache.NewRedisBroadcaster(redisClient, cfg.Redis.InvalidationChannel)
	if err != nil {
		return err
	}

	resolver := remoteconfig.NewResolver(repo, configCache, broadcaster)
	listener := invalidation.New(log, invalidation.Config{
		Channel: cfg.Redis.InvalidationChannel,
		Origin:  broadcaster.Origin(),
	}, redisClient, configCache)

	hasher, err := cohort.NewHasher(cfg.Assignment.HashStrategy)
	if err != nil {
		return err
	}

	api := controlapi.NewAPI(controlapi.Services{
		Config:      resolver,
		Experiments: experiment.NewService(repo, cohort.NewEngine(hasher)),
		Events:      ingest.NewPipeline(repo),
		Diagnostics: health.NewReporter(repo),
	}, cfg.Server.Control.APIKeyHash,
		controlapi.WithLogger(log),
		controlapi.WithMaxBodyBytes(cfg.Server.Control.MaxBodyBytes),
	)

	// -------------------------------------------------------------------------
	// 4. Servers
	// -------------------------------------------------------------------------
	srv := &http.Server{
		Addr:              cfg.Server.Control.Address(),
		Handler:           api,
		ReadTimeout:       cfg.Server.Control.ReadTimeout,
		WriteTimeout:      cfg.Server.Control.WriteTimeout,
		ReadHeaderTimeout: cfg.Server.Control.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.Control.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.Control.MaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelError),
	}

	sidecar := observability.NewServer(log, &cfg.Observability,
		database.NewHealthChecker(pool),
		cache.NewHealthChecker(redisClient),
	)
	sidecar.Start()

	errCh := make(chan error, 2)
	go func() {
		if err := listener.Run(ctx); err != nil {
			errCh <- fmt.Errorf("invalidation listener stopped: %w", err)
		}
	}()
	go func() {
		log.Info("http server listening",
			slog.String("addr", srv.Addr),
			slog.Bool("tls", cfg.Server.Control.TLSEnabled),
		)
		var err error
		if cfg.Server.Control.TLSEnabled {
			err = srv.ListenAndServeTLS(cfg.Server.Control.TLSCert, cfg.Server.Control.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("http server shutdown failed", slog.String("error", shutdownErr.Error()))
	}
	if shutdownErr := sidecar.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("observability server shutdown failed", slog.String("error", shutdownErr.Error()))
	}
	if shutdownErr := shutdownTracing(shutdownCtx); shutdownErr != nil {
		log.Warn("tracing shutdown failed", slog.String("error", shutdownErr.Error()))
	}

	log.Info("control plane stopped")
	return err
}
