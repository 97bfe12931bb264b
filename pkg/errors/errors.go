// Package errors defines the engine error taxonomy shared by the scheduler,
// the registry and the workers.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable marks a transient origin failure after retry
	// exhaustion. Never fatal to the engine; the source manager keeps the
	// other sources running.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrVersionConflict marks a stale concurrent update to function
	// metadata. Surfaced to the caller, not retried automatically.
	ErrVersionConflict = errors.New("version conflict")

	// ErrFilterEvaluation marks a malformed filter script or a field access
	// beyond the missing-field tolerance. The matcher treats it as non-match.
	ErrFilterEvaluation = errors.New("filter evaluation error")

	// ErrLeaseExpired marks a task lease that timed out without an ack.
	// The task returns to the unclaimed pool (at-least-once delivery).
	ErrLeaseExpired = errors.New("lease expired")

	// ErrResourceExceeded marks a sandbox resource-cap violation. Terminal
	// for the lease.
	ErrResourceExceeded = errors.New("resource limit exceeded")

	// ErrTimedOut marks a sandbox wall-clock deadline hit. Terminal for the
	// lease and distinguishable from a plain failure.
	ErrTimedOut = errors.New("execution timed out")

	// ErrRegistrationInvalid marks a schema validation failure at function
	// register or update time. Rejected synchronously.
	ErrRegistrationInvalid = errors.New("registration invalid")

	// ErrNotFound marks a lookup for a function or event that does not exist.
	ErrNotFound = errors.New("not found")
)

// Invalid wraps a validation failure detail into ErrRegistrationInvalid.
func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrRegistrationInvalid, fmt.Sprintf(format, args...))
}

// FilterError wraps a filter evaluation failure detail.
func FilterError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrFilterEvaluation, fmt.Sprintf(format, args...))
}
