package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/mimir/internal/config"
)

func TestNewWithWriter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cfg   config.AppConfig
		check func(t *testing.T, out string)
	}{
		{
			name: "Should emit JSON with identity attributes",
			cfg:  config.AppConfig{Name: "mimir-data", Version: "1.2.3", Environment: "staging", LogLevel: "info", LogFormat: "json"},
			check: func(t *testing.T, out string) {
				var line map[string]any
				require.NoError(t, json.Unmarshal([]byte(out), &line))
				assert.Equal(t, "mimir-data", line["service"])
				assert.Equal(t, "1.2.3", line["version"])
				assert.Equal(t, "staging", line["env"])
				assert.Equal(t, "hello", line["msg"])
			},
		},
		{
			name: "Should emit text when requested",
			cfg:  config.AppConfig{Name: "mimir", LogLevel: "info", LogFormat: "text"},
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "msg=hello")
				assert.Contains(t, out, "service=mimir")
			},
		},
		{
			name: "Should drop records below the configured level",
			cfg:  config.AppConfig{Name: "mimir", LogLevel: "error", LogFormat: "json"},
			check: func(t *testing.T, out string) {
				assert.Empty(t, out)
			},
		},
		{
			name: "Should fall back to info on unknown levels",
			cfg:  config.AppConfig{Name: "mimir", LogLevel: "super-critical", LogFormat: "json"},
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, `"msg":"hello"`)
			},
		},
		{
			name: "Should omit source location in production",
			cfg:  config.AppConfig{Name: "mimir", Environment: config.EnvironmentProduction, LogLevel: "info", LogFormat: "json"},
			check: func(t *testing.T, out string) {
				assert.NotContains(t, out, `"source"`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			log := NewWithWriter(&tt.cfg, &buf)
			log.Info("hello")

			tt.check(t, strings.TrimSpace(buf.String()))
		})
	}
}

func TestNewWithWriter_Redaction(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(&config.AppConfig{Name: "mimir", LogLevel: "info", LogFormat: "json"}, &buf)

	log.Info("auth", slog.String("jwt_token", "eyJhbGciOi"), slog.String("DB_PASSWORD", "hunter2"), slog.String("user_id", "u1"))

	out := buf.String()
	assert.NotContains(t, out, "eyJhbGciOi")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, `"user_id":"u1"`)
	assert.Equal(t, 2, strings.Count(out, redacted))
}

func TestNewWithWriter_NilConfig(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { NewWithWriter(nil, &bytes.Buffer{}) })
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}
