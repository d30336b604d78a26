package core

import (
	"errors"
	"fmt"
)

// Typed, recoverable error kinds returned to the request layer. Callers
// discriminate with errors.Is; none of these should crash the process.
var (
	ErrValidation             = errors.New("validation failed")
	ErrOverlap                = errors.New("semester date range overlaps an existing semester")
	ErrPermission             = errors.New("caller lacks the required role")
	ErrForeignKeyConflict     = errors.New("record still has dependent rows")
	ErrNotFound               = errors.New("record not found")
	ErrConcurrentModification = errors.New("record changed by a concurrent operation")
)

// ErrDateRange marks a start date after an end date. It unwraps to
// ErrValidation so generic validation handling still applies.
var ErrDateRange = fmt.Errorf("%w: start date is after end date", ErrValidation)

func wrapValidation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
