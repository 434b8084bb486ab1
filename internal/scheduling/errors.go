package scheduling

import (
	"errors"
	"fmt"
)

var (
	ErrScheduleConflict = errors.New("proposed interval conflicts with existing appointments")
	ErrScheduleBusy     = errors.New("schedule is being modified, please retry")
)

// ValidationError rejects malformed input before any conflict check runs.
// It is terminal for the operation and never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalidf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TransitionError rejects an illegal status transition, carrying the
// current state and the requested action.
type TransitionError struct {
	From   Status
	Action Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s appointment in status %q", e.Action, e.From)
}

// IsTransition reports whether err is (or wraps) a TransitionError.
func IsTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
