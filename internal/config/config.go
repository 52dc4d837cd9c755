// Package config provides centralized configuration management for Mimir services.
// It uses envconfig for environment variable loading and validator for validation.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvironmentProduction is the production environment identifier
	EnvironmentProduction = "production"

	// EnvPrefix is the prefix every Mimir environment variable carries.
	EnvPrefix = "MIMIR"
)

// Config holds the complete application configuration.
type Config struct {
	App           AppConfig           `envconfig:"APP"`
	Server        ServerConfig        `envconfig:"SERVER"`
	Database      DatabaseConfig      `envconfig:"DB"`
	Redis         RedisConfig         `envconfig:"REDIS"`
	Cache         CacheConfig         `envconfig:"CACHE"`
	Assignment    AssignmentConfig    `envconfig:"ASSIGNMENT"`
	Messaging     MessagingConfig     `envconfig:"NATS"`
	Observability ObservabilityConfig `envconfig:"OBSERVABILITY"`
	Tracing       TracingConfig       `envconfig:"TRACING"`
}

// AppConfig contains core application settings.
type AppConfig struct {
	Name            string        `envconfig:"NAME" default:"mimir"`
	Version         string        `envconfig:"VERSION" default:"dev"`
	Environment     string        `envconfig:"ENV" default:"development" validate:"oneof=development staging production"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Control ControlPlaneConfig `envconfig:"CONTROL"`
	Data    DataPlaneConfig    `envconfig:"DATA"`
}

// Load reads configuration from environment variables with the MIMIR prefix.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate runs the struct tag rules, then each section's own checks.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	env := c.App.Environment
	sections := []func() error{
		func() error { return c.Database.Validate(env) },
		func() error { return c.Redis.Validate(env) },
		func() error { return c.Server.Control.Validate(env) },
		func() error { return c.Server.Data.Validate(env) },
		c.Messaging.Validate,
		c.Observability.Validate,
		c.Tracing.Validate,
	}
	for _, validate := range sections {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

// LogConfig logs the current configuration (without sensitive data).
func (c *Config) LogConfig(log *slog.Logger) {
	log.Info("configuration loaded",
		slog.String("app_name", c.App.Name),
		slog.String("version", c.App.Version),
		slog.String("environment", c.App.Environment),
		slog.String("log_level", c.App.LogLevel),
		slog.String("log_format", c.App.LogFormat),
		slog.Duration("shutdown_timeout", c.App.ShutdownTimeout),
		slog.String("control_port", c.Server.Control.Port),
		slog.String("data_port", c.Server.Data.Port),
		slog.String("data_auth_mode", c.Server.Data.AuthMode),
		slog.Bool("tls_enabled", c.Server.Control.TLSEnabled),
		slog.String("query_mode", c.Database.QueryMode),
		slog.Bool("migrate_on_start", c.Database.MigrateOnStart),
		slog.Bool("db_configured", c.Database.IsConfigured()),
		slog.Bool("redis_configured", c.Redis.IsConfigured()),
		slog.Duration("cache_ttl", c.Cache.TTL),
		slog.Int("cache_capacity", c.Cache.Capacity),
		slog.String("hash_strategy", c.Assignment.HashStrategy),
		slog.Bool("nats_enabled", c.Messaging.Enabled),
		slog.Bool("tracing_enabled", c.Tracing.Enabled),
	)
}
