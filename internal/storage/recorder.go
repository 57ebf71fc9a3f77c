package storage

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"vrtq/internal/eventbus"
	logx "vrtq/pkg/logx"
)

// Recorder appends every job event published on the bus to a Store.
// Events that arrive while the subscriber buffer is full are lost.
type Recorder struct {
	store Store
	bus   eventbus.Bus
	log   logx.Logger

	written atomic.Uint64
	failed  atomic.Uint64
}

func NewRecorder(store Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	return &Recorder{store: store, bus: bus, log: log.With(logx.String("comp", "recorder"))}
}

// Run consumes events until ctx is done. It is meant to run under a supervisor.
func (r *Recorder) Run(ctx context.Context) error {
	ch, unsub := r.bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, e)
		}
	}
}

func (r *Recorder) handle(ctx context.Context, e eventbus.Event) {
	rec, ok := RecordFromEvent(e)
	if !ok {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.store.AppendEvent(wctx, rec); err != nil {
		if r.failed.Add(1) == 1 {
			r.log.Warn("audit append failed", logx.String("type", rec.Type), logx.Err(err))
		} else {
			r.log.Debug("audit append failed", logx.String("type", rec.Type), logx.Err(err))
		}
		return
	}
	r.written.Add(1)
}

// Counts reports how many records were written and how many appends failed.
func (r *Recorder) Counts() (written, failed uint64) {
	return r.written.Load(), r.failed.Load()
}

// RecordFromEvent converts a job or worker event into a Record with a fresh ID.
func RecordFromEvent(e eventbus.Event) (Record, bool) {
	je, ok := e.Data.(eventbus.JobEvent)
	if !ok {
		return Record{}, false
	}
	at := e.Time
	if at.IsZero() {
		at = time.Now()
	}
	return Record{
		ID:       uuid.NewString(),
		At:       at,
		Type:     e.Type,
		Job:      je.Name,
		Priority: je.Priority,
		VRT:      je.VRT,
		Granted:  je.Granted,
		Finished: je.Finished,
		Worker:   je.Worker,
		Duration: je.Duration,
		Error:    je.Error,
	}, true
}
