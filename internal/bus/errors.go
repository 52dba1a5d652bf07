package bus

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks a malformed subscribe request. Wrapped errors
// carry the specific field problem.
var ErrInvalidInput = errors.New("invalid subscription input")

// ErrLimitExceeded is the base error for both quota failures.
var ErrLimitExceeded = errors.New("subscription limit exceeded")

// ErrSessionLimit is returned when the subscriber session has reached
// its per-session cap.
var ErrSessionLimit = fmt.Errorf("%w: subscriber session at capacity", ErrLimitExceeded)

// ErrGlobalLimit is returned when the bus-wide cap is reached.
var ErrGlobalLimit = fmt.Errorf("%w: bus at capacity", ErrLimitExceeded)

// ErrBusClosed is returned by Subscribe after Cleanup.
var ErrBusClosed = errors.New("bus closed")

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
