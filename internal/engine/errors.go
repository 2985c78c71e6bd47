package engine

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by providers and stores when an entity does not
// exist. For user-supplied identifiers it is converted to an input error.
var ErrNotFound = errors.New("not found")

// ErrCancelled marks deliberate cancellation surfaced through the result
// stream. It is joined with the context's error, so errors.Is matches
// both it and context.Canceled.
var ErrCancelled = errors.New("search cancelled")

// InputError marks a malformed or unresolvable user-supplied identifier or
// option. Input errors are shown to the user verbatim and never retried.
type InputError struct {
	msg string
	err error
}

func (e *InputError) Error() string { return e.msg }
func (e *InputError) Unwrap() error { return e.err }

// Inputf builds an input error with a human-readable message.
func Inputf(format string, args ...any) error {
	return &InputError{msg: fmt.Sprintf(format, args...)}
}

// InputWrap builds an input error that keeps its cause for errors.Is/As.
func InputWrap(err error, format string, args ...any) error {
	return &InputError{msg: fmt.Sprintf(format, args...) + ": " + err.Error(), err: err}
}

// IsInput reports whether err (or anything it wraps) is an input error.
func IsInput(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
