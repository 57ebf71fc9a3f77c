package worker

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by Apply when Stop wins a race with its restart.
var ErrStopped = errors.New("worker pool stopped")

// NoRetry marks an executor failure as permanent.
//
//	return worker.NoRetry(fmt.Errorf("bad payload: %w", err))
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

func IsNoRetry(err error) bool {
	var e noRetryError
	return errors.As(err, &e)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }
