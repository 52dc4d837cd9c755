package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// maxRedisDB is the highest logical database index a default Redis accepts.
const maxRedisDB = 15

// RedisConfig contains Redis connection, pool and pub/sub settings. Either
// URL or Host/Port must be set.
type RedisConfig struct {
	URL        string `envconfig:"URL"`
	Host       string `envconfig:"HOST"`
	Port       string `envconfig:"PORT"`
	Password   string `envconfig:"PASSWORD"`
	DB         int    `envconfig:"DB" default:"0" validate:"min=0,max=15"`
	TLSEnabled bool   `envconfig:"TLS_ENABLED" default:"false"`

	PoolSize        int           `envconfig:"POOL_SIZE" default:"50" validate:"min=1"`
	MinIdleConns    int           `envconfig:"MIN_IDLE_CONNS" default:"10" validate:"min=0,ltefield=PoolSize"`
	DialTimeout     time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
	PoolTimeout     time.Duration `envconfig:"POOL_TIMEOUT" default:"4s"`
	MaxRetries      int           `envconfig:"MAX_RETRIES" default:"3" validate:"min=0"`
	MinRetryBackoff time.Duration `envconfig:"MIN_RETRY_BACKOFF" default:"8ms"`
	MaxRetryBackoff time.Duration `envconfig:"MAX_RETRY_BACKOFF" default:"512ms"`

	// PingMaxRetries and PingBackoff bound the startup wait for Redis.
	PingMaxRetries int           `envconfig:"PING_MAX_RETRIES" default:"5" validate:"min=1"`
	PingBackoff    time.Duration `envconfig:"PING_BACKOFF" default:"2s"`

	// InvalidationChannel carries config cache invalidations between replicas.
	InvalidationChannel string `envconfig:"INVALIDATION_CHANNEL" default:"mimir:config:invalidate" validate:"required"`
}

// Address returns host:port.
func (c *RedisConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Validate checks the connection target. In production, component
// configuration must carry a password and enable TLS.
func (c *RedisConfig) Validate(environment string) error {
	if c.URL != "" {
		if err := checkRedisURL(c.URL); err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
		return nil
	}

	return firstFailure(
		listener(c.Host, c.Port, "redis"),
		func() error { return productionSecret(environment, c.Password, "redis password") },
		func() error {
			if environment == EnvironmentProduction && !c.TLSEnabled {
				return fmt.Errorf("redis TLS must be enabled in production environment")
			}
			return nil
		},
	)
}

// IsConfigured reports whether enough is set to attempt a connection.
func (c *RedisConfig) IsConfigured() bool {
	return c.URL != "" || (c.Host != "" && c.Port != "")
}

func checkRedisURL(raw string) error {
	u, err := parseURL(raw, "redis", "rediss")
	if err != nil {
		return err
	}

	db := strings.Trim(u.Path, "/")
	if db == "" {
		return nil
	}
	n, err := strconv.Atoi(db)
	if err != nil {
		return fmt.Errorf("database number must be a valid integer: %s", db)
	}
	if n < 0 || n > maxRedisDB {
		return fmt.Errorf("database number must be between 0 and %d, got %d", maxRedisDB, n)
	}
	return nil
}
