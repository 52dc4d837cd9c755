package config

import (
	"fmt"
	"time"
)

// Cohort hashing strategies.
const (
	HashStrategyRolling = "rolling"
	HashStrategyMurmur3 = "murmur3"
)

// CacheConfig sizes the per-process config cache.
type CacheConfig struct {
	TTL      time.Duration `envconfig:"TTL" default:"60s" validate:"gt=0"`
	Capacity int           `envconfig:"CAPACITY" default:"100000" validate:"min=1"`
}

// AssignmentConfig selects how caller identities are bucketed into cohorts.
type AssignmentConfig struct {
	// HashStrategy other than rolling re-buckets every caller without a
	// persisted assignment.
	HashStrategy string `envconfig:"HASH_STRATEGY" default:"rolling" validate:"oneof=rolling murmur3"`
}

// MessagingConfig configures the optional NATS ingest notifications.
type MessagingConfig struct {
	Enabled       bool          `envconfig:"ENABLED" default:"false"`
	URL           string        `envconfig:"URL" default:"nats://localhost:4222"`
	Subject       string        `envconfig:"SUBJECT" default:"mimir.events.ingested"`
	ConnectWait   time.Duration `envconfig:"CONNECT_WAIT" default:"2s"`
	MaxReconnects int           `envconfig:"MAX_RECONNECTS" default:"60"`
}

// Validate checks MessagingConfig fields when NATS is enabled.
func (m *MessagingConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	if _, err := parseURL(m.URL, "nats", "tls"); err != nil {
		return fmt.Errorf("invalid NATS URL: %w", err)
	}
	if err := bare(m.Subject, "NATS subject"); err != nil {
		return err
	}
	return nil
}
