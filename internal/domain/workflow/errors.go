package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when a guard condition fails
	ErrGuardFailed = errors.New("guard condition failed")

	// ErrUnauthorized is returned when the actor lacks the required role or relationship
	ErrUnauthorized = errors.New("actor not authorized")

	// ErrNoRouteConfigured is returned when a document type has no approval steps
	ErrNoRouteConfigured = errors.New("no approval route configured")

	// ErrAmbiguousApprover is returned when several principals qualify for a single step
	ErrAmbiguousApprover = errors.New("ambiguous approver")

	// ErrDuplicateStepOrder is returned when a step order already exists for a document type
	ErrDuplicateStepOrder = errors.New("duplicate step order")

	// ErrNotFound is returned when an entity id is unknown
	ErrNotFound = errors.New("not found")

	// ErrValidationFailed is returned when a required field is missing or malformed
	ErrValidationFailed = errors.New("validation failed")

	// ErrConcurrentModification is returned when an optimistic lock check fails
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrDependencyUnavailable is returned when storage or another collaborator times out
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrNoApprover is returned when no principal holds the role a step requires
	ErrNoApprover = fmt.Errorf("%w: no principal holds the required role", ErrNotFound)

	// ErrStepInUse is returned when a route step is referenced by a pending document
	ErrStepInUse = fmt.Errorf("%w: step is referenced by a pending document", ErrValidationFailed)
)

// Code is a stable, caller-facing error code
type Code string

const (
	CodeInvalidTransition      Code = "INVALID_TRANSITION"
	CodeUnauthorized           Code = "UNAUTHORIZED"
	CodeNoRouteConfigured      Code = "NO_ROUTE_CONFIGURED"
	CodeAmbiguousApprover      Code = "AMBIGUOUS_APPROVER"
	CodeNoApprover             Code = "NO_APPROVER"
	CodeDuplicateStepOrder     Code = "DUPLICATE_STEP_ORDER"
	CodeNotFound               Code = "NOT_FOUND"
	CodeValidationFailed       Code = "VALIDATION_FAILED"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeDependencyUnavailable  Code = "DEPENDENCY_UNAVAILABLE"
	CodeInternal               Code = "INTERNAL"
)

// Checked in order; more specific sentinels come before the ones they wrap.
var codeTable = []struct {
	err  error
	code Code
}{
	{ErrNoApprover, CodeNoApprover},
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrGuardFailed, CodeInvalidTransition},
	{ErrInvalidState, CodeInvalidTransition},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrNoRouteConfigured, CodeNoRouteConfigured},
	{ErrAmbiguousApprover, CodeAmbiguousApprover},
	{ErrDuplicateStepOrder, CodeDuplicateStepOrder},
	{ErrNotFound, CodeNotFound},
	{ErrValidationFailed, CodeValidationFailed},
	{ErrConcurrentModification, CodeConcurrentModification},
	{ErrDependencyUnavailable, CodeDependencyUnavailable},
}

// CodeOf returns the error code for err, CodeInternal when err matches no known kind.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	for _, entry := range codeTable {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeInternal
}

// IsRetryable reports whether the caller may retry the same intent.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrDependencyUnavailable)
}

// Validation wraps ErrValidationFailed with a field-specific message.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, fmt.Sprintf(format, args...))
}
