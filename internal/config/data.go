package config

import (
	"fmt"
	"time"
)

// Caller identity sources for the data plane.
const (
	AuthModeJWT    = "jwt"
	AuthModeHeader = "header"
)

// DataPlaneConfig configures the gRPC API server.
type DataPlaneConfig struct {
	Port string `envconfig:"PORT" default:"50051"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// gRPC specific
	MaxConcurrentStreams uint32        `envconfig:"MAX_CONCURRENT_STREAMS" default:"100"`
	KeepaliveTime        time.Duration `envconfig:"KEEPALIVE_TIME" default:"120s"`
	KeepaliveTimeout     time.Duration `envconfig:"KEEPALIVE_TIMEOUT" default:"20s"`
	MaxConnectionAge     time.Duration `envconfig:"MAX_CONNECTION_AGE" default:"300s"`
	MaxRecvMsgBytes      int           `envconfig:"MAX_RECV_MSG_BYTES" default:"4194304" validate:"min=1"`

	// Caller identity
	AuthMode  string `envconfig:"AUTH_MODE" default:"jwt" validate:"oneof=jwt header"`
	JWTSecret string `envconfig:"JWT_SECRET"`
	JWTIssuer string `envconfig:"JWT_ISSUER"`
}

// Address returns host:port for the gRPC listener.
func (c *DataPlaneConfig) Address() string {
	return c.Host + ":" + c.Port
}

// Validate performs validation on the DataPlaneConfig.
func (c *DataPlaneConfig) Validate(environment string) error {
	if err := listener(c.Host, c.Port, "data plane")(); err != nil {
		return err
	}

	switch c.AuthMode {
	case AuthModeJWT:
		if err := productionSecret(environment, c.JWTSecret, "data plane JWT secret"); err != nil {
			return err
		}
	case AuthModeHeader:
		// Identity is trusted from metadata set by a fronting proxy.
		if environment == EnvironmentProduction {
			return fmt.Errorf("header auth mode is not allowed in production environment")
		}
	}

	return nil
}
