// Package invariant defines the unrecoverable error type used when a
// core correctness invariant is violated. Violations are not retried or
// swallowed anywhere below the top-level supervisor; the supervisor
// decides process termination.
package invariant

import (
	"errors"
	"fmt"
)

// Error marks a violated invariant. Any code path observing one must
// propagate it unchanged; recovery would risk corrupting correlation
// state.
type Error struct {
	msg string
}

func (e *Error) Error() string {
	return "invariant violation: " + e.msg
}

// Errorf creates a new invariant violation.
func Errorf(format string, args ...any) error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Is reports whether err is, or wraps, an invariant violation.
func Is(err error) bool {
	var ie *Error
	return errors.As(err, &ie)
}
