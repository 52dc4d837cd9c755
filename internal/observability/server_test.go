package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/logger"
)

func testConfig() *config.ObservabilityConfig {
	// Non-default paths prove the router honours configuration.
	return &config.ObservabilityConfig{
		Port:          "0",
		Timeout:       200 * time.Millisecond,
		LivenessPath:  "/alive",
		ReadinessPath: "/check-deps",
		MetricsPath:   "/telemetry",
	}
}

func up(name string) Checker {
	return CheckFunc{Component: name, Fn: func(context.Context) error { return nil }}
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		path       string
		wantStatus int
		check      func(t *testing.T, body []byte)
	}{
		{
			name:       "Should answer liveness on the configured path",
			path:       "/alive",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				assert.Equal(t, "ok", string(body))
			},
		},
		{
			name:       "Should be ready when every dependency is up",
			checkers:   []Checker{up("postgres"), up("redis")},
			path:       "/check-deps",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var got map[string]map[string]string
				require.NoError(t, json.Unmarshal(body, &got))
				assert.Equal(t, map[string]string{"postgres": "up", "redis": "up"}, got["status"])
			},
		},
		{
			name: "Should be unavailable when one dependency is down",
			checkers: []Checker{
				up("postgres"),
				CheckFunc{Component: "redis", Fn: func(context.Context) error { return errors.New("connection refused") }},
			},
			path:       "/check-deps",
			wantStatus: http.StatusServiceUnavailable,
			check: func(t *testing.T, body []byte) {
				assert.Contains(t, string(body), "down: connection refused")
				assert.Contains(t, string(body), `"postgres":"up"`)
			},
		},
		{
			name: "Should enforce the probe timeout on slow dependencies",
			checkers: []Checker{
				CheckFunc{Component: "postgres", Fn: func(ctx context.Context) error {
					<-ctx.Done()
					return ctx.Err()
				}},
			},
			path:       "/check-deps",
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "Should expose prometheus metrics on the configured path",
			path:       "/telemetry",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				assert.Contains(t, string(body), "mimir_config_cache_items_count")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := NewServer(logger.Discard(), testConfig(), tt.checkers...)
			rec := httptest.NewRecorder()

			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.check != nil {
				body, err := io.ReadAll(rec.Body)
				require.NoError(t, err)
				tt.check(t, body)
			}
		})
	}
}

func TestServer_ShutdownWithoutStart(t *testing.T) {
	t.Parallel()

	srv := NewServer(logger.Discard(), testConfig())
	assert.NoError(t, srv.Shutdown(context.Background()))
}

func TestSetupTracing_Disabled(t *testing.T) {
	t.Parallel()

	shutdown, err := SetupTracing(context.Background(), &config.TracingConfig{Enabled: false}, &config.AppConfig{Name: "mimir"})

	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
