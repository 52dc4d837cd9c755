package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Invalidation is the message published when any config variant changes.
type Invalidation struct {
	Origin string    `json:"origin"`
	Reason string    `json:"reason,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

// DecodeInvalidation parses a pub/sub payload.
func DecodeInvalidation(payload string) (Invalidation, error) {
	var msg Invalidation
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return Invalidation{}, fmt.Errorf("decode invalidation: %w", err)
	}
	return msg, nil
}

// RedisBroadcaster announces cache invalidations to every replica listening
// on the channel. Each broadcaster has a random origin id so a replica can
// skip its own messages.
type RedisBroadcaster struct {
	client  redis.UniversalClient
	channel string
	origin  string
}

// NewRedisBroadcaster creates a broadcaster publishing to channel.
func NewRedisBroadcaster(client redis.UniversalClient, channel string) (*RedisBroadcaster, error) {
	if client == nil {
		return nil, errors.New("cache: redis client cannot be nil")
	}
	if channel == "" {
		return nil, errors.New("cache: invalidation channel cannot be empty")
	}
	return &RedisBroadcaster{client: client, channel: channel, origin: uuid.NewString()}, nil
}

// Origin returns this process's origin id.
func (b *RedisBroadcaster) Origin() string {
	return b.origin
}

// Channel returns the pub/sub channel name.
func (b *RedisBroadcaster) Channel() string {
	return b.channel
}

// Publish sends one invalidation message.
func (b *RedisBroadcaster) Publish(ctx context.Context, reason string) error {
	payload, err := json.Marshal(Invalidation{Origin: b.origin, Reason: reason, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode invalidation: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation on %s: %w", b.channel, err)
	}
	return nil
}
