package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// minProductionSecret is the shortest password or signing secret accepted
// when running in production.
const minProductionSecret = 12

// check is one validation step. firstFailure runs steps in order and stops
// at the first error.
type check func() error

func firstFailure(checks ...check) error {
	for _, c := range checks {
		if err := c(); err != nil {
			return err
		}
	}
	return nil
}

// listener checks the host and port a component binds or dials.
func listener(host, port, component string) check {
	return func() error {
		return firstFailure(hostCheck(host, component), portCheck(port, component))
	}
}

func portCheck(port, component string) check {
	return func() error {
		if port == "" {
			return fmt.Errorf("%s port cannot be empty", component)
		}
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%s port must be a number: %w", component, err)
		}
		if n < 1 || n > 65535 {
			return fmt.Errorf("%s port must be between 1 and 65535, got %d", component, n)
		}
		return nil
	}
}

func hostCheck(host, component string) check {
	return func() error {
		return bare(host, component+" host")
	}
}

// bare rejects empty values and values with surrounding whitespace.
func bare(value, field string) error {
	switch {
	case value == "":
		return fmt.Errorf("%s cannot be empty", field)
	case strings.TrimSpace(value) != value:
		return fmt.Errorf("%s cannot contain whitespace", field)
	}
	return nil
}

// productionSecret requires secret to be set and long enough in production.
// Other environments accept anything, including an empty secret.
func productionSecret(environment, secret, field string) error {
	if environment != EnvironmentProduction {
		return nil
	}
	if secret == "" {
		return fmt.Errorf("%s is required in production environment", field)
	}
	if len(secret) < minProductionSecret {
		return fmt.Errorf("%s must be at least %d characters in production", field, minProductionSecret)
	}
	return nil
}

var errMissingURLHost = errors.New("host is required in URL")

// parseURL parses raw and requires one of schemes and a host.
func parseURL(raw string, schemes ...string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if !slices.Contains(schemes, u.Scheme) {
		return nil, fmt.Errorf("invalid scheme %q, must be one of: %s", u.Scheme, strings.Join(schemes, ", "))
	}
	if u.Host == "" {
		return nil, errMissingURLHost
	}
	return u, nil
}
