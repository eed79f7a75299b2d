package types

import (
	"errors"
	"fmt"
)

// Engine error kinds. Callers match with errors.Is; the concrete error may
// wrap one of these sentinels with additional context.
var (
	// ErrValidation indicates a malformed or out-of-range interaction event.
	// No state is mutated.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates an unknown concept id.
	ErrNotFound = errors.New("concept not found")

	// ErrCycleDetected indicates the prerequisite relation of a catalog is
	// not a DAG. Fatal to the catalog load; a prior catalog stays in effect.
	ErrCycleDetected = errors.New("prerequisite cycle detected")

	// ErrCancelled indicates the caller cancelled before the update entered
	// the learner's critical section.
	ErrCancelled = errors.New("update cancelled")

	// ErrTimeBudget indicates the per-update wall budget expired before
	// write-back; no state was mutated.
	ErrTimeBudget = errors.New("update time budget exceeded")

	// ErrInternal indicates an unexpected numerical state after fallbacks.
	ErrInternal = errors.New("internal engine error")
)

// ErrorKind maps an error to its stable kind label for the UpdateResult
// schema. Unrecognized errors report as "internal".
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCycleDetected):
		return "cycle_detected"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrTimeBudget):
		return "time_budget_exceeded"
	default:
		return "internal"
	}
}

// Validationf wraps ErrValidation with a formatted reason.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrValidation}, args...)...)
}
