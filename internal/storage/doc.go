// Package storage keeps an append-only audit trail of queue and worker
// events. The trail is for operators; it is never replayed into the queue.
package storage
