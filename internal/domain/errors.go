package domain

import "fmt"

// ValidationError reports bad input: a non-positive amount, an unknown
// enum value, or a missing required field. It is always surfaced to the
// caller and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown reference code or template ID.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// InvalidStateError reports a transition that is illegal from the
// entity's current state. It usually signals a caller race (two
// approvers) or a stale client view.
type InvalidStateError struct {
	Entity string
	Key    string
	State  string
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %q in state %s", e.Op, e.Entity, e.Key, e.State)
}

// ForbiddenError reports an authorization denial.
type ForbiddenError struct {
	ActorID string
	Op      string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("actor %q is not allowed to %s", e.ActorID, e.Op)
}

// AllocationError is the fatal form of a reference-code collision: every
// bounded retry hit the uniqueness constraint.
type AllocationError struct {
	Attempts int
	Err      error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("reference code allocation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }
