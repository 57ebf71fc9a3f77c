package jobqueue

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"vrtq/internal/eventbus"
	logx "vrtq/pkg/logx"
)

// Queue is the concurrent scheduling queue. The zero value is not usable;
// construct with New.
type Queue struct {
	mu    sync.Mutex
	tree  tree
	slice uint

	log logx.Logger
	bus eventbus.Bus
}

type Option func(*Queue)

func WithLogger(log logx.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// WithBus publishes job lifecycle events. Publish never blocks, so events are
// emitted while the queue lock is held and arrive in operation order.
func WithBus(bus eventbus.Bus) Option {
	return func(q *Queue) { q.bus = bus }
}

// New creates a queue granting at most n time units per selection.
func New(n uint, opts ...Option) (*Queue, error) {
	if n == 0 {
		return nil, fmt.Errorf("%w: time slice must be > 0", ErrInvalidConfiguration)
	}
	q := &Queue{tree: newTree(), slice: n}
	for _, o := range opts {
		if o != nil {
			o(q)
		}
	}
	return q, nil
}

// TimeSlice returns N.
func (q *Queue) TimeSlice() uint { return q.slice }

// Insert queues job. An order-equal job already in the queue causes the
// insert to be skipped with ErrDuplicateJob; the queue is left unchanged.
func (q *Queue) Insert(job Descriptor) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.tree.insert(job); !ok {
		q.log.Warn("duplicate job rejected",
			logx.String("job", job.Name),
			logx.Uint("priority", job.Priority),
			logx.Uint("vrt", job.VRT),
		)
		q.publish(eventbus.JobDuplicate, eventbus.JobEvent{Name: job.Name, Priority: job.Priority, VRT: job.VRT})
		return fmt.Errorf("%w: %q", ErrDuplicateJob, job.Name)
	}

	q.log.Info("job inserted",
		logx.String("job", job.Name),
		logx.Uint("priority", job.Priority),
		logx.Uint("vrt", job.VRT),
		logx.Int("pending", q.tree.size),
	)
	q.publish(eventbus.JobInserted, eventbus.JobEvent{Name: job.Name, Priority: job.Priority, VRT: job.VRT})
	return nil
}

// HasPendingJobs reports whether at least one job is queued.
func (q *Queue) HasPendingJobs() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tree.root != nilHandle
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tree.size
}

// SelectAndConsume detaches the most eligible job and grants it one slice.
// A job with more than N units left is re-queued with N units subtracted and
// its original timestamp; otherwise it finishes this round.
func (q *Queue) SelectAndConsume() (Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.tree.root == nilHandle {
		return Result{}, ErrEmptyQueue
	}

	job := q.tree.remove(q.tree.subtreeMax(q.tree.root))
	before := job.VRT
	res := Result{Name: job.Name, Priority: job.Priority, EnqueuedAt: job.EnqueuedAt}

	if before <= q.slice {
		res.VRT = before
		res.Granted = before
		res.Finished = true
		q.log.Info("job finishing",
			logx.String("job", job.Name),
			logx.Uint("granted", res.Granted),
			logx.Int("pending", q.tree.size),
		)
		q.publish(eventbus.JobFinished, eventbus.JobEvent{Name: job.Name, Priority: job.Priority, VRT: before, Granted: res.Granted, Finished: true})
		return res, nil
	}

	job.VRT = before - q.slice
	res.VRT = job.VRT
	res.Granted = q.slice
	if _, ok := q.tree.insert(job); !ok {
		// Another queued job already holds (priority, VRT, timestamp).
		q.log.Warn("re-queue rejected: order-equal job already queued",
			logx.String("job", job.Name),
			logx.Uint("vrt", job.VRT),
		)
		q.publish(eventbus.JobDuplicate, eventbus.JobEvent{Name: job.Name, Priority: job.Priority, VRT: job.VRT})
	}
	q.log.Info("job sliced",
		logx.String("job", job.Name),
		logx.Uint("granted", res.Granted),
		logx.Uint("vrt_left", res.VRT),
		logx.Int("pending", q.tree.size),
	)
	q.publish(eventbus.JobSliced, eventbus.JobEvent{Name: job.Name, Priority: job.Priority, VRT: res.VRT, Granted: res.Granted})
	return res, nil
}

// RemoveByName removes the first job named name in breadth-first order
// (right before left). With duplicate names the choice depends on tree shape.
func (q *Queue) RemoveByName(name string) RemoveStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.tree.root == nilHandle {
		q.log.Debug("remove on empty queue", logx.String("job", name))
		return RemoveEmpty
	}
	h := q.tree.findByName(name)
	if h == nilHandle {
		q.log.Debug("remove: job not found", logx.String("job", name))
		return RemoveNotFound
	}
	job := q.tree.remove(h)
	q.log.Info("job removed", logx.String("job", job.Name), logx.Int("pending", q.tree.size))
	q.publish(eventbus.JobRemoved, eventbus.JobEvent{Name: job.Name, Priority: job.Priority, VRT: job.VRT})
	return Removed
}

// Snapshot returns the queued jobs in scheduling order, next to run first.
func (q *Queue) Snapshot() []Descriptor {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Descriptor, 0, q.tree.size)
	q.tree.descend(func(h handle, _ int) {
		out = append(out, q.tree.at(h).job)
	})
	return out
}

// RenderTree draws the tree sideways: right subtree above its parent, left
// below, four spaces per level. Diagnostic only.
func (q *Queue) RenderTree() string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.tree.root == nilHandle {
		return "<empty>\n"
	}
	var b strings.Builder
	q.tree.descend(func(h handle, depth int) {
		job := q.tree.at(h).job
		b.WriteString(strings.Repeat("    ", depth))
		b.WriteString(job.Name)
		b.WriteString(" [p=")
		b.WriteString(strconv.FormatUint(uint64(job.Priority), 10))
		b.WriteString(" vrt=")
		b.WriteString(strconv.FormatUint(uint64(job.VRT), 10))
		b.WriteString("]\n")
	})
	return b.String()
}

// Clear drops every queued job and returns how many were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.tree.clear()
	if n > 0 {
		q.log.Info("queue cleared", logx.Int("dropped", n))
	}
	return n
}

func (q *Queue) publish(typ string, ev eventbus.JobEvent) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}
