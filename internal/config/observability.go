package config

import (
	"fmt"
	"time"
)

// ObservabilityConfig holds configuration for the observability server (metrics, probes).
type ObservabilityConfig struct {
	// Port defines where the observability server listens.
	Port string `envconfig:"PORT" default:"9090"`

	// Timeout is the unified safety valve for Read/Write/Idle operations.
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s" validate:"min=1s"`

	LivenessPath  string `envconfig:"LIVENESS_PATH" default:"/healthz"`
	ReadinessPath string `envconfig:"READINESS_PATH" default:"/readyz"`
	MetricsPath   string `envconfig:"METRICS_PATH" default:"/metrics"`
}

// Validate checks ObservabilityConfig fields for correctness.
func (o *ObservabilityConfig) Validate() error {
	return portCheck(o.Port, "observability")()
}

// TracingConfig configures OpenTelemetry trace export over OTLP/HTTP.
type TracingConfig struct {
	Enabled bool `envconfig:"ENABLED" default:"false"`

	// Endpoint is host:port of the OTLP/HTTP collector.
	Endpoint   string  `envconfig:"ENDPOINT" default:"localhost:4318"`
	Insecure   bool    `envconfig:"INSECURE" default:"true"`
	SampleRate float64 `envconfig:"SAMPLE_RATE" default:"1" validate:"min=0,max=1"`
}

// Validate checks TracingConfig fields for correctness.
func (t *TracingConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	if err := bare(t.Endpoint, "tracing endpoint"); err != nil {
		return fmt.Errorf("invalid tracing config: %w", err)
	}
	return nil
}
