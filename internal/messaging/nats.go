// Package messaging publishes ingest notifications to NATS so downstream
// consumers (aggregators, exporters) learn about new batches without polling.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/observability"
)

// Notice announces one persisted event batch.
type Notice struct {
	BatchID         string    `json:"batch_id"`
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	Count           int64     `json:"count"`
	ServerTimestamp time.Time `json:"server_timestamp"`
}

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
	Close()
}

// NATSPublisher publishes Notices on a single subject.
type NATSPublisher struct {
	conn    Conn
	subject string
}

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(conn Conn, subject string) (*NATSPublisher, error) {
	if conn == nil {
		return nil, errors.New("messaging: connection cannot be nil")
	}
	if subject == "" {
		return nil, errors.New("messaging: subject cannot be empty")
	}
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

// Connect dials NATS with reconnect settings from cfg and logs connection
// state changes through log.
func Connect(cfg *config.MessagingConfig, app *config.AppConfig, log *slog.Logger) (*NATSPublisher, error) {
	if log == nil {
		log = slog.Default()
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(fmt.Sprintf("%s-%s", app.Name, app.Environment)),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ConnectWait),
		nats.Timeout(cfg.ConnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", slog.String("url", c.ConnectedUrlRedacted()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	log.Info("nats connected", slog.String("subject", cfg.Subject))
	return NewNATSPublisher(conn, cfg.Subject)
}

// PublishIngested sends n. Core NATS publish is fire-and-forget: a nil error
// means the message was buffered, not that anyone received it.
func (p *NATSPublisher) PublishIngested(ctx context.Context, n Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		observability.IngestNotificationsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	observability.IngestNotificationsTotal.WithLabelValues("published").Inc()
	return nil
}

// Name returns the component name for readiness checks.
func (p *NATSPublisher) Name() string {
	return "nats"
}

// Check reports whether the connection is currently up.
func (p *NATSPublisher) Check(_ context.Context) error {
	if !p.conn.IsConnected() {
		return errors.New("nats connection is down")
	}
	return nil
}

// Close closes the connection.
func (p *NATSPublisher) Close() {
	p.conn.Close()
}
