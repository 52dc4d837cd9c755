package validation

import "fmt"

// AssertNotNil panics if ptr is nil. Use it in constructors for mandatory
// dependencies, where a nil value is a wiring bug rather than a runtime
// condition.
//
//	validation.AssertNotNil(repo, "event repository")
func AssertNotNil[T any](ptr *T, name string) {
	if ptr == nil {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
}

// AssertPresent is AssertNotNil for interface-typed dependencies.
func AssertPresent(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
}
