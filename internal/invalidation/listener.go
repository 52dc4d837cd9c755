// Package invalidation keeps a replica's config cache in step with config
// updates made by other replicas.
package invalidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/mimir/internal/cache"
	"github.com/rafaeljc/mimir/internal/observability"
)

// Invalidator is the cache surface the listener flushes.
type Invalidator interface {
	InvalidateAll()
}

// Config configures a Listener.
type Config struct {
	Channel string
	// Origin is this process's broadcaster origin; its own messages are skipped.
	Origin string
}

// Listener subscribes to the invalidation channel and flushes the local cache
// on every message from another origin.
type Listener struct {
	logger *slog.Logger
	config Config
	client redis.UniversalClient
	cache  Invalidator

	readyOnce sync.Once
	ready     chan struct{}
}

// New creates a listener. It panics on missing dependencies.
func New(logger *slog.Logger, cfg Config, client redis.UniversalClient, c Invalidator) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		panic("invalidation: redis client cannot be nil")
	}
	if c == nil {
		panic("invalidation: cache cannot be nil")
	}
	if cfg.Channel == "" {
		panic("invalidation: channel cannot be empty")
	}

	return &Listener{
		logger: logger.With(slog.String("component", "invalidation_listener")),
		config: cfg,
		client: client,
		cache:  c,
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the subscription is confirmed by Redis.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Run blocks until ctx is cancelled. go-redis re-subscribes after connection
// loss; messages published while disconnected are lost and the affected
// entries age out within the cache TTL.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("starting invalidation listener", slog.String("channel", l.config.Channel))

	sub := l.client.Subscribe(ctx, l.config.Channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe to %s: %w", l.config.Channel, err)
	}
	l.readyOnce.Do(func() { close(l.ready) })

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("invalidation listener stopping")
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("invalidation subscription closed")
			}
			l.handle(msg.Payload)
		}
	}
}

func (l *Listener) handle(payload string) {
	inv, err := cache.DecodeInvalidation(payload)
	if err != nil {
		// An unreadable message still means someone changed config.
		l.logger.Warn("malformed invalidation message, flushing anyway", slog.Any("error", err))
	} else if inv.Origin != "" && inv.Origin == l.config.Origin {
		return
	}

	l.cache.InvalidateAll()
	observability.ConfigCacheInvalidations.WithLabelValues("broadcast").Inc()
	l.logger.Debug("config cache invalidated", slog.String("origin", inv.Origin), slog.String("reason", inv.Reason))
}
