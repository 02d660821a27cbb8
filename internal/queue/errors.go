package queue

import (
	"errors"
	"time"
)

// errHardLimit marks a task whose body outlived the hard time limit. The
// slot stops waiting and resolves the claim itself rather than leaving it
// to lease recovery.
var errHardLimit = errors.New("hard time limit exceeded")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The pool moves the task
// straight to the failure triage table regardless of remaining attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err carries a Permanent mark.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

type delayedError struct {
	err   error
	delay time.Duration
}

func (e *delayedError) Error() string { return e.err.Error() }

func (e *delayedError) Unwrap() error { return e.err }

// RetryIn wraps a transient err with an explicit retry delay, overriding
// the policy backoff. Task bodies use it when they already know the right
// wait, such as a retailer limiter sitting in a backoff window.
func RetryIn(err error, delay time.Duration) error {
	if err == nil {
		return nil
	}
	return &delayedError{err: err, delay: delay}
}

// RetryDelay extracts an explicit delay attached with RetryIn.
func RetryDelay(err error) (time.Duration, bool) {
	var de *delayedError
	if errors.As(err, &de) {
		return de.delay, true
	}
	return 0, false
}
