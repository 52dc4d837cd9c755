// Package auth establishes the caller identity of a data plane request.
//
// Identity never comes from the JSON payload. In jwt mode it is the token's
// subject; in header mode it is trusted from metadata set by a fronting proxy.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"

	"github.com/rafaeljc/mimir/internal/config"
)

// Metadata keys read from incoming requests.
const (
	HeaderAuthorization = "authorization"
	HeaderUserID        = "x-mimir-user-id"
	HeaderRole          = "x-mimir-role"
)

// RoleAdmin grants administrative overrides such as reading another user's
// assignment.
const RoleAdmin = "admin"

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Identity is the authenticated caller.
type Identity struct {
	Subject string
	Role    string
}

// IsAdmin reports whether the caller carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.Subject != ""
}

// Authenticator extracts an Identity from request metadata.
type Authenticator interface {
	Authenticate(md metadata.MD) (Identity, error)
}

// New returns the authenticator selected by cfg.AuthMode.
func New(cfg *config.DataPlaneConfig) (Authenticator, error) {
	switch cfg.AuthMode {
	case config.AuthModeHeader:
		return HeaderAuthenticator{}, nil
	case config.AuthModeJWT, "":
		return NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}
}

// HeaderAuthenticator trusts x-mimir-user-id and x-mimir-role.
type HeaderAuthenticator struct{}

// Authenticate implements Authenticator.
func (HeaderAuthenticator) Authenticate(md metadata.MD) (Identity, error) {
	subject := strings.TrimSpace(first(md, HeaderUserID))
	if subject == "" {
		return Identity{}, ErrMissingCredentials
	}
	return Identity{Subject: subject, Role: first(md, HeaderRole)}, nil
}

// Claims are the token claims understood by JWTVerifier.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 bearer tokens.
type JWTVerifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier. An empty issuer accepts any issuer.
func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	return &JWTVerifier{secret: []byte(secret), issuer: issuer, parser: jwt.NewParser(opts...)}, nil
}

// Authenticate implements Authenticator using the bearer token in md.
func (v *JWTVerifier) Authenticate(md metadata.MD) (Identity, error) {
	header := first(md, HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return Identity{}, ErrMissingCredentials
	}
	return v.Verify(token)
}

// Verify parses token and returns its identity.
func (v *JWTVerifier) Verify(token string) (Identity, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Identity{Subject: claims.Subject, Role: claims.Role}, nil
}

// Issue signs a token for subject. It backs the mimirctl token command and tests.
func Issue(secret, issuer, subject, role string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is required")
	}
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
