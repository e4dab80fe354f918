package ingest

import "errors"

// UnretriableError marks a fault that must not be retried: malformed input,
// a malformed success from the video host, or an exhausted retry budget.
type UnretriableError struct{ error }

func (e UnretriableError) Error() string { return e.error.Error() }

func (e UnretriableError) Unwrap() error { return e.error }

func IsUnretriable(err error) bool {
	return errors.As(err, &UnretriableError{})
}
