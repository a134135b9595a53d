package models

import "fmt"

// ValidationError rejects malformed input before anything is applied.
// Surfaced as a 400-equivalent at the API layer.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidStateError rejects a transition the lifecycle does not allow.
// The request or quote is left unchanged. Surfaced as a 409-equivalent.
type InvalidStateError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: illegal transition %s -> %s", e.Entity, e.From, e.To)
}
