package jobqueue

import "errors"

var (
	ErrInvalidConfiguration = errors.New("jobqueue: invalid configuration")
	ErrEmptyQueue           = errors.New("jobqueue: no jobs in the queue")
	ErrDuplicateJob         = errors.New("jobqueue: order-equal job already queued")
)
