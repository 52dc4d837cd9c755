// Package logger provides a configured structured logger for Mimir services.
// It wraps "log/slog" so every process formats records the same way (JSON in
// production, text in development) and never leaks credentials.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rafaeljc/mimir/internal/config"
)

// redacted replaces the value of any attribute whose key names a credential.
const redacted = "[REDACTED]"

var sensitiveKeys = []string{"password", "secret", "token", "authorization", "api_key"}

// New creates a logger for cfg writing to os.Stdout.
func New(cfg *config.AppConfig) *slog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter creates a logger for cfg writing to w.
// Every record carries the service, version and env attributes.
func NewWithWriter(cfg *config.AppConfig, w io.Writer) *slog.Logger {
	if cfg == nil {
		panic("logger: config cannot be nil")
	}

	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.LogLevel),
		AddSource:   cfg.Environment != config.EnvironmentProduction,
		ReplaceAttr: redact,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(
		slog.String("service", cfg.Name),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Environment),
	)
}

// Discard returns a logger that drops every record. Meant for tests and
// for components constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// parseLevel converts a string to slog.Level. Defaults to INFO.
func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}
