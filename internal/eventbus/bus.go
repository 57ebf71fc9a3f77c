package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the queue and the worker pool.
const (
	JobInserted  = "job.inserted"
	JobDuplicate = "job.duplicate"
	JobSliced    = "job.sliced"
	JobFinished  = "job.finished"
	JobRemoved   = "job.removed"

	WorkerExecuted = "worker.executed"
	WorkerFailed   = "worker.failed"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking (the queue publishes under its lock).
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// JobEvent is the payload of every job.* and worker.* event.
type JobEvent struct {
	Name     string        `json:"name"`
	Priority uint          `json:"priority"`
	VRT      uint          `json:"vrt"`
	Granted  uint          `json:"granted,omitempty"`
	Finished bool          `json:"finished,omitempty"`
	Worker   int           `json:"worker,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Delivery happens under the read lock so Unsubscribe cannot close a
	// channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}
