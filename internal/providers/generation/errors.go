package generation

import "errors"

// ErrTransient marks provider errors that may clear up on a later attempt:
// transport failures, throttling and 5xx responses.
var ErrTransient = errors.New("transient provider error")

type transientError struct{ err error }

func (e transientError) Error() string   { return e.err.Error() }
func (e transientError) Unwrap() []error { return []error{e.err, ErrTransient} }

// Transient wraps err so IsTransient reports true. The message is unchanged.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether err, or anything it wraps, was marked transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
