// Package jobqueue implements the scheduling core: a splay tree of pending
// jobs ordered by (priority, remaining virtual runtime, enqueue time) and the
// time-sliced select-and-consume discipline built on it.
//
// The queue is safe for concurrent use. Every public method holds a single
// mutex for its full duration; none of them block waiting for work and none
// of them execute jobs. Callers run the granted slice outside the queue.
package jobqueue
