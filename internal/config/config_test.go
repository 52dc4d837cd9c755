package config

import (
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadCase drives Load() through a set of environment variables.
type loadCase struct {
	name    string
	envVars map[string]string
	want    func(t *testing.T, cfg *Config)
	wantErr bool
}

func runLoadCases(t *testing.T, tests []loadCase) {
	t.Helper()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// t.Setenv forbids t.Parallel and restores the env afterwards.
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load()

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want != nil {
				tt.want(t, cfg)
			}
		})
	}
}

// minimalRequiredConfig provides the database and Redis settings every process needs.
func minimalRequiredConfig() map[string]string {
	return map[string]string{
		"MIMIR_DB_HOST":        "localhost",
		"MIMIR_DB_PORT":        "5432",
		"MIMIR_DB_NAME":        "mimir_test",
		"MIMIR_DB_USER":        "test_user",
		"MIMIR_DB_PASSWORD":    "test_pass",
		"MIMIR_REDIS_HOST":     "localhost",
		"MIMIR_REDIS_PORT":     "6379",
		"MIMIR_REDIS_PASSWORD": "redis_password_123",
	}
}

// mergeEnvVars overlays additional on top of the minimal config.
func mergeEnvVars(additional map[string]string) map[string]string {
	result := minimalRequiredConfig()
	maps.Copy(result, additional)
	return result
}

// validProductionConfig returns a production configuration that passes every hardening rule.
func validProductionConfig() map[string]string {
	return map[string]string{
		"MIMIR_APP_ENV": "production",

		"MIMIR_DB_HOST":     "prod-db.example.com",
		"MIMIR_DB_PORT":     "5432",
		"MIMIR_DB_NAME":     "mimir_prod",
		"MIMIR_DB_USER":     "prod_user",
		"MIMIR_DB_PASSWORD": "SuperSecure123!",
		"MIMIR_DB_SSL_MODE": "require",

		"MIMIR_REDIS_HOST":        "prod-redis.example.com",
		"MIMIR_REDIS_PORT":        "6379",
		"MIMIR_REDIS_PASSWORD":    "RedisSecure123!",
		"MIMIR_REDIS_TLS_ENABLED": "true",

		"MIMIR_SERVER_DATA_JWT_SECRET": "DataPlaneSecret123!",

		"MIMIR_SERVER_CONTROL_API_KEY_HASH":  "5dec7e1c36e8ec7f526cfa8ff6dc788daad76f6dd34467662eb47990dca6b55d",
		"MIMIR_SERVER_CONTROL_TLS_ENABLED":   "true",
		"MIMIR_SERVER_CONTROL_TLS_CERT_FILE": "/certs/control-cert.pem",
		"MIMIR_SERVER_CONTROL_TLS_KEY_FILE":  "/certs/control-key.pem",
	}
}

// production returns validProductionConfig with overrides applied and keys removed.
func production(overrides map[string]string, remove ...string) map[string]string {
	cfg := validProductionConfig()
	for _, key := range remove {
		delete(cfg, key)
	}
	maps.Copy(cfg, overrides)
	return cfg
}

var (
	databaseComponentKeys = []string{"MIMIR_DB_HOST", "MIMIR_DB_PORT", "MIMIR_DB_NAME", "MIMIR_DB_USER", "MIMIR_DB_PASSWORD", "MIMIR_DB_SSL_MODE"}
	redisComponentKeys    = []string{"MIMIR_REDIS_HOST", "MIMIR_REDIS_PORT", "MIMIR_REDIS_PASSWORD", "MIMIR_REDIS_TLS_ENABLED"}
)

func TestLoad(t *testing.T) {
	runLoadCases(t, []loadCase{
		{
			name:    "Should use defaults when no env vars are set",
			envVars: minimalRequiredConfig(),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "mimir", cfg.App.Name)
				assert.Equal(t, "dev", cfg.App.Version)
				assert.Equal(t, "development", cfg.App.Environment)
				assert.Equal(t, "info", cfg.App.LogLevel)
				assert.Equal(t, "text", cfg.App.LogFormat)
				assert.Equal(t, 30*time.Second, cfg.App.ShutdownTimeout)
				assert.Equal(t, "8080", cfg.Server.Control.Port)
				assert.Equal(t, "50051", cfg.Server.Data.Port)
				assert.Equal(t, "bind", cfg.Database.QueryMode)
				assert.Equal(t, 60*time.Second, cfg.Cache.TTL)
				assert.Equal(t, "rolling", cfg.Assignment.HashStrategy)
				assert.Equal(t, "mimir:config:invalidate", cfg.Redis.InvalidationChannel)
				assert.Equal(t, "9090", cfg.Observability.Port)
				assert.Equal(t, "/readyz", cfg.Observability.ReadinessPath)
				assert.False(t, cfg.Messaging.Enabled)
				assert.False(t, cfg.Tracing.Enabled)
			},
		},
		{
			name: "Should load all custom environment variables correctly",
			envVars: mergeEnvVars(map[string]string{
				"MIMIR_APP_NAME":             "test-app",
				"MIMIR_APP_VERSION":          "1.0.0",
				"MIMIR_APP_ENV":              "staging",
				"MIMIR_APP_LOG_LEVEL":        "debug",
				"MIMIR_APP_LOG_FORMAT":       "json",
				"MIMIR_APP_SHUTDOWN_TIMEOUT": "60s",
				"MIMIR_SERVER_CONTROL_PORT":  "9091",
				"MIMIR_SERVER_DATA_PORT":     "50052",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "test-app", cfg.App.Name)
				assert.Equal(t, "1.0.0", cfg.App.Version)
				assert.Equal(t, "staging", cfg.App.Environment)
				assert.Equal(t, "debug", cfg.App.LogLevel)
				assert.Equal(t, "json", cfg.App.LogFormat)
				assert.Equal(t, 60*time.Second, cfg.App.ShutdownTimeout)
				assert.Equal(t, "9091", cfg.Server.Control.Port)
				assert.Equal(t, "50052", cfg.Server.Data.Port)
			},
		},
		{
			name:    "Should fail validation on invalid environment value",
			envVars: mergeEnvVars(map[string]string{"MIMIR_APP_ENV": "invalid"}),
			wantErr: true,
		},
		{
			name:    "Should fail validation on invalid log level",
			envVars: mergeEnvVars(map[string]string{"MIMIR_APP_LOG_LEVEL": "trace"}),
			wantErr: true,
		},
		{
			name:    "Should fail validation on invalid log format",
			envVars: mergeEnvVars(map[string]string{"MIMIR_APP_LOG_FORMAT": "xml"}),
			wantErr: true,
		},
		{
			name: "Should allow missing passwords in non-production environments",
			envVars: mergeEnvVars(map[string]string{
				"MIMIR_DB_PASSWORD":    "",
				"MIMIR_REDIS_PASSWORD": "",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Empty(t, cfg.Database.Password)
				assert.Empty(t, cfg.Redis.Password)
			},
		},
		{
			name:    "Should pass with a complete production configuration",
			envVars: validProductionConfig(),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, EnvironmentProduction, cfg.App.Environment)
			},
		},
		{
			name: "Should pass with exactly 12 character secrets in production",
			envVars: production(map[string]string{
				"MIMIR_DB_PASSWORD":            "exactly12chr",
				"MIMIR_REDIS_PASSWORD":         "redis_pass12",
				"MIMIR_SERVER_DATA_JWT_SECRET": "jwt_secret12",
			}),
		},
		{
			name:    "Should load observability port and timeout",
			envVars: mergeEnvVars(map[string]string{"MIMIR_OBSERVABILITY_PORT": "9191", "MIMIR_OBSERVABILITY_TIMEOUT": "1s"}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "9191", cfg.Observability.Port)
				assert.Equal(t, time.Second, cfg.Observability.Timeout)
			},
		},
		{
			name:    "Should fail validation on observability port out of range",
			envVars: mergeEnvVars(map[string]string{"MIMIR_OBSERVABILITY_PORT": "65536"}),
			wantErr: true,
		},
		{
			name:    "Should fail validation on observability timeout too short",
			envVars: mergeEnvVars(map[string]string{"MIMIR_OBSERVABILITY_TIMEOUT": "999ms"}),
			wantErr: true,
		},
	})
}

func TestFeatureConfig_Validation(t *testing.T) {
	runLoadCases(t, []loadCase{
		{
			name: "Should load literal query mode and murmur3 hashing",
			envVars: mergeEnvVars(map[string]string{
				"MIMIR_DB_QUERY_MODE":            "literal",
				"MIMIR_ASSIGNMENT_HASH_STRATEGY": "murmur3",
				"MIMIR_CACHE_TTL":                "15s",
				"MIMIR_CACHE_CAPACITY":           "10",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, QueryModeLiteral, cfg.Database.QueryMode)
				assert.Equal(t, HashStrategyMurmur3, cfg.Assignment.HashStrategy)
				assert.Equal(t, 15*time.Second, cfg.Cache.TTL)
				assert.Equal(t, 10, cfg.Cache.Capacity)
			},
		},
		{
			name:    "Should fail on unknown query mode",
			envVars: mergeEnvVars(map[string]string{"MIMIR_DB_QUERY_MODE": "raw"}),
			wantErr: true,
		},
		{
			name:    "Should fail on unknown hash strategy",
			envVars: mergeEnvVars(map[string]string{"MIMIR_ASSIGNMENT_HASH_STRATEGY": "md5"}),
			wantErr: true,
		},
		{
			name:    "Should fail on zero cache TTL",
			envVars: mergeEnvVars(map[string]string{"MIMIR_CACHE_TTL": "0s"}),
			wantErr: true,
		},
		{
			name:    "Should fail on zero cache capacity",
			envVars: mergeEnvVars(map[string]string{"MIMIR_CACHE_CAPACITY": "0"}),
			wantErr: true,
		},
		{
			name: "Should accept a valid NATS configuration",
			envVars: mergeEnvVars(map[string]string{
				"MIMIR_NATS_ENABLED": "true",
				"MIMIR_NATS_URL":     "nats://nats.internal:4222",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Messaging.Enabled)
				assert.Equal(t, "mimir.events.ingested", cfg.Messaging.Subject)
			},
		},
		{
			name: "Should reject a NATS URL with the wrong scheme",
			envVars: mergeEnvVars(map[string]string{
				"MIMIR_NATS_ENABLED": "true",
				"MIMIR_NATS_URL":     "http://nats.internal:4222",
			}),
			wantErr: true,
		},
		{
			name:    "Should ignore an invalid NATS URL while disabled",
			envVars: mergeEnvVars(map[string]string{"MIMIR_NATS_URL": "http://nats.internal:4222"}),
		},
		{
			name: "Should reject an empty tracing endpoint when enabled",
			envVars: mergeEnvVars(map[string]string{
				"MIMIR_TRACING_ENABLED":  "true",
				"MIMIR_TRACING_ENDPOINT": "",
			}),
			wantErr: true,
		},
		{
			name:    "Should reject a sample rate above one",
			envVars: mergeEnvVars(map[string]string{"MIMIR_TRACING_SAMPLE_RATE": "1.5"}),
			wantErr: true,
		},
	})
}
