package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
	"time"
)

// DatabaseConfig contains PostgreSQL connection settings. Either URL or the
// Host/Port/Name/User components must be set.
type DatabaseConfig struct {
	URL      string `envconfig:"URL"`
	Host     string `envconfig:"HOST"`
	Port     string `envconfig:"PORT"`
	Name     string `envconfig:"NAME"`
	User     string `envconfig:"USER"`
	Password string `envconfig:"PASSWORD"`
	SSLMode  string `envconfig:"SSL_MODE" default:"prefer" validate:"oneof=disable allow prefer require verify-ca verify-full"`

	MaxConns        int           `envconfig:"MAX_CONNS" default:"25" validate:"min=1"`
	MinConns        int           `envconfig:"MIN_CONNS" default:"2" validate:"min=0,ltefield=MaxConns"`
	MaxConnLifetime time.Duration `envconfig:"MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `envconfig:"MAX_CONN_IDLE_TIME" default:"30m"`
	ConnectTimeout  time.Duration `envconfig:"CONNECT_TIMEOUT" default:"5s"`

	// PingMaxRetries and PingBackoff bound the startup wait for Postgres.
	PingMaxRetries int           `envconfig:"PING_MAX_RETRIES" default:"5" validate:"min=1"`
	PingBackoff    time.Duration `envconfig:"PING_BACKOFF" default:"2s"`

	// QueryMode selects how repository queries carry values: bound parameters
	// or inline literals rendered by the literal encoder.
	QueryMode string `envconfig:"QUERY_MODE" default:"bind" validate:"oneof=bind literal"`

	// MigrateOnStart applies pending schema migrations before serving.
	MigrateOnStart bool `envconfig:"MIGRATE_ON_START" default:"false"`
}

// Query modes.
const (
	QueryModeBind    = "bind"
	QueryModeLiteral = "literal"
)

// maxIdentifierLen is Postgres NAMEDATALEN - 1.
const maxIdentifierLen = 63

var secureSSLModes = []string{"require", "verify-ca", "verify-full"}

// ConnectionString returns URL when set, otherwise a DSN built from the
// components.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}

	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return dsn.String()
}

// Validate checks the connection target. Production hardening (password and
// TLS) applies only to component configuration; a URL is taken as given.
func (c *DatabaseConfig) Validate(environment string) error {
	if c.URL != "" {
		if err := checkPostgresURL(c.URL); err != nil {
			return fmt.Errorf("invalid database URL: %w", err)
		}
		return nil
	}

	return firstFailure(
		listener(c.Host, c.Port, "database"),
		func() error {
			if err := bare(c.Name, "database name"); err != nil {
				return err
			}
			if len(c.Name) > maxIdentifierLen {
				return fmt.Errorf("database name cannot exceed %d characters", maxIdentifierLen)
			}
			return nil
		},
		func() error { return bare(c.User, "database user") },
		func() error { return productionSecret(environment, c.Password, "database password") },
		func() error {
			if environment == EnvironmentProduction && !slices.Contains(secureSSLModes, c.SSLMode) {
				return fmt.Errorf("database SSL mode must be one of %s in production environment", strings.Join(secureSSLModes, ", "))
			}
			return nil
		},
	)
}

// IsConfigured reports whether enough is set to attempt a connection.
func (c *DatabaseConfig) IsConfigured() bool {
	return c.URL != "" || (c.Host != "" && c.Port != "" && c.Name != "" && c.User != "")
}

func checkPostgresURL(raw string) error {
	u, err := parseURL(raw, "postgres", "postgresql")
	if err != nil {
		return err
	}
	if u.User.Username() == "" {
		return fmt.Errorf("user is required in URL")
	}
	if strings.TrimPrefix(u.Path, "/") == "" {
		return fmt.Errorf("database name is required in URL path")
	}
	return nil
}
