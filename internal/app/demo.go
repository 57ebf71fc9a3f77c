package app

import (
	"context"
	"errors"
	"time"

	"vrtq/internal/eventbus"
	"vrtq/internal/jobqueue"
	"vrtq/internal/producer"
	"vrtq/internal/worker"
	logx "vrtq/pkg/logx"
)

// DemoStep inserts one job after waiting Wait time units since the
// previous step.
type DemoStep struct {
	Wait     uint
	Name     string
	Priority uint
	VRT      uint
}

// DefaultDemoScript is the classic giver scenario: two jobs up front,
// then a trickle of arrivals while the worker is busy.
var DefaultDemoScript = []DemoStep{
	{Wait: 0, Name: "Job1", Priority: 1, VRT: 6},
	{Wait: 0, Name: "Job2", Priority: 100, VRT: 1},
	{Wait: 2, Name: "Job3", Priority: 5, VRT: 2},
	{Wait: 2, Name: "Job4", Priority: 3, VRT: 3},
	{Wait: 1, Name: "Job5", Priority: 1, VRT: 10},
	{Wait: 0, Name: "Job6", Priority: 2, VRT: 1},
}

type DemoOptions struct {
	TimeSlice uint
	TimeUnit  time.Duration
	// Duration bounds the whole run; 0 runs until the script is done and
	// the queue drains.
	Duration time.Duration
	Script   []DemoStep
	Executor worker.Executor
	Log      logx.Logger
}

// DemoResult lists executed slices in order.
type DemoResult struct {
	Slices  []eventbus.JobEvent
	Pending int
}

// RunDemo drives one producer and one worker over a fresh queue.
func RunDemo(ctx context.Context, opt DemoOptions) (DemoResult, error) {
	if opt.TimeUnit <= 0 {
		opt.TimeUnit = time.Second
	}
	if opt.Script == nil {
		opt.Script = DefaultDemoScript
	}
	log := opt.Log
	if opt.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opt.Duration)
		defer cancel()
	}

	bus := eventbus.New()
	q, err := jobqueue.New(opt.TimeSlice, jobqueue.WithLogger(log.With(logx.String("comp", "queue"))), jobqueue.WithBus(bus))
	if err != nil {
		return DemoResult{}, err
	}
	prod, err := producer.New(producer.Config{}, q, log)
	if err != nil {
		return DemoResult{}, err
	}
	pollEvery := opt.TimeUnit / 2
	pool := worker.New(worker.Config{Workers: 1, TimeUnit: opt.TimeUnit, PollInterval: pollEvery, IdleLogEvery: opt.TimeUnit}, q, opt.Executor, log, bus)

	events, unsub := bus.Subscribe(256)
	defer unsub()

	pool.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pool.Stop(stopCtx)
	}()

	var (
		res      DemoResult
		consumed int
		done     int
	)
	handle := func(e eventbus.Event) {
		switch e.Type {
		case eventbus.JobSliced, eventbus.JobFinished:
			consumed++
		case eventbus.WorkerFailed:
			done++
		case eventbus.WorkerExecuted:
			done++
			if ev, ok := e.Data.(eventbus.JobEvent); ok {
				res.Slices = append(res.Slices, ev)
			}
		}
	}
	wait := func(d time.Duration) bool {
		t := time.NewTimer(d)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return false
			case <-t.C:
				return true
			case e := <-events:
				handle(e)
			}
		}
	}

	for _, step := range opt.Script {
		if step.Wait > 0 && !wait(time.Duration(step.Wait)*opt.TimeUnit) {
			break
		}
		if err := prod.Submit(step.Name, step.Priority, step.VRT); err != nil {
			log.Warn("demo submit failed", logx.String("job", step.Name), logx.Err(err))
		}
	}

	// Drain until the queue is empty and every consumed slice has run. The
	// queue publishes under its lock, so once it reports empty every
	// consume event is already buffered.
	for ctx.Err() == nil {
		pending := q.HasPendingJobs()
		drain(events, handle)
		if !pending && done >= consumed {
			break
		}
		if !wait(pollEvery) {
			break
		}
	}
	drain(events, handle)

	res.Pending = q.Len()
	log.Info("demo finished", logx.Int("slices", len(res.Slices)), logx.Int("pending", res.Pending))
	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return res, err
	}
	return res, nil
}

func drain(ch <-chan eventbus.Event, fn func(eventbus.Event)) {
	for {
		select {
		case e := <-ch:
			fn(e)
		default:
			return
		}
	}
}
