// Package cache holds the per-process config cache and the Redis plumbing
// that keeps replicas' caches coherent.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"

	"github.com/rafaeljc/mimir/internal/observability"
)

// Clock supplies the current time. Tests inject a fake to drive expiry.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

type entry[V any] struct {
	value      V
	capturedAt time.Time
}

// TTLCache is a bounded, per-key cache with a fixed time-to-live.
//
// An entry is fresh while clock.Now() - capturedAt < ttl. Freshness is judged
// against the injected Clock; otter's own expiry only reclaims memory.
// Concurrent readers may see an entry invalidated a moment ago by another
// goroutine: the worst case is one extra store round trip.
type TTLCache[V any] struct {
	store otter.Cache[string, entry[V]]
	ttl   time.Duration
	clock Clock
}

// NewTTLCache builds a cache holding at most capacity entries. A nil clock
// means SystemClock.
func NewTTLCache[V any](capacity int, ttl time.Duration, clock Clock) (*TTLCache[V], error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache: ttl must be positive, got %s", ttl)
	}
	if clock == nil {
		clock = SystemClock{}
	}

	builder, err := otter.NewBuilder[string, entry[V]](capacity)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	store, err := builder.WithTTL(ttl).Build()
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	return &TTLCache[V]{store: store, ttl: ttl, clock: clock}, nil
}

// TTL returns the configured time-to-live.
func (c *TTLCache[V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached value for key if it is still fresh.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	e, ok := c.store.Get(key)
	if ok && c.clock.Now().Sub(e.capturedAt) < c.ttl {
		observability.ConfigCacheHits.Inc()
		return e.value, true
	}
	if ok {
		c.store.Delete(key)
	}

	observability.ConfigCacheMisses.Inc()
	var zero V
	return zero, false
}

// Set stores v under key, stamped with the current clock time.
func (c *TTLCache[V]) Set(key string, v V) {
	c.store.Set(key, entry[V]{value: v, capturedAt: c.clock.Now()})
}

// InvalidateAll drops every entry.
func (c *TTLCache[V]) InvalidateAll() {
	c.store.Clear()
	observability.ConfigCacheItems.Set(0)
}

// Len returns the number of stored entries, expired or not.
func (c *TTLCache[V]) Len() int {
	return c.store.Size()
}

// Close stops otter's background goroutines.
func (c *TTLCache[V]) Close() {
	c.store.Close()
}

// RunMetricsCollector samples the entry count until ctx is done.
func (c *TTLCache[V]) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.ConfigCacheItems.Set(float64(c.store.Size()))
		}
	}
}
