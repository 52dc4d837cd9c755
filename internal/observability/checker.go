package observability

import "context"

// Checker is a dependency verified by the readiness probe.
// Check must honour ctx and be safe for concurrent use.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function into a Checker.
type CheckFunc struct {
	Component string
	Fn        func(ctx context.Context) error
}

// Name returns the component name.
func (c CheckFunc) Name() string { return c.Component }

// Check runs Fn.
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }
