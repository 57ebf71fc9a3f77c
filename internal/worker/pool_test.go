package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vrtq/internal/eventbus"
	"vrtq/internal/jobqueue"
	logx "vrtq/pkg/logx"
)

func newQueue(t *testing.T, n uint) *jobqueue.Queue {
	t.Helper()
	q, err := jobqueue.New(n)
	if err != nil {
		t.Fatalf("jobqueue.New: %v", err)
	}
	return q
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type recorder struct {
	mu     sync.Mutex
	slices []Slice
}

func (r *recorder) Execute(_ context.Context, s Slice) error {
	r.mu.Lock()
	r.slices = append(r.slices, s)
	r.mu.Unlock()
	return nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.slices))
	for i, s := range r.slices {
		out[i] = s.Job.Name
	}
	return out
}

func TestPoolDrainsQueueInOrder(t *testing.T) {
	t.Parallel()
	q := newQueue(t, 3)
	base := time.Now()
	_ = q.Insert(jobqueue.Descriptor{Priority: 1, VRT: 5, EnqueuedAt: base, Name: "j1"})
	_ = q.Insert(jobqueue.Descriptor{Priority: 1, VRT: 4, EnqueuedAt: base.Add(-time.Millisecond), Name: "j2"})

	rec := &recorder{}
	p := New(Config{Workers: 1, PollInterval: time.Millisecond, TimeUnit: time.Millisecond}, q, rec, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	waitFor(t, func() bool { return p.Snapshot().Finished == 2 })
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	got := rec.names()
	want := []string{"j2", "j2", "j1", "j1"}
	if len(got) != len(want) {
		t.Fatalf("slices = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slices = %v, want %v", got, want)
		}
	}
	snap := p.Snapshot()
	if snap.Slices != 4 || snap.Running {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(snap.History) != 4 || snap.History[1].Granted != 1 || !snap.History[1].Finished {
		t.Fatalf("history = %+v", snap.History)
	}
}

func TestPoolIdlePollsEmptyQueue(t *testing.T) {
	t.Parallel()
	q := newQueue(t, 1)
	p := New(Config{Workers: 2, PollInterval: time.Millisecond}, q, &recorder{}, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	waitFor(t, func() bool { return p.Snapshot().IdlePolls >= 4 })
	_ = p.Stop(context.Background())
	if p.Snapshot().Slices != 0 {
		t.Fatal("executed slices on an empty queue")
	}
}

func TestPoolRetriesUntilNoRetry(t *testing.T) {
	t.Parallel()
	q := newQueue(t, 5)
	_ = q.Insert(jobqueue.NewDescriptor("flaky", 1, 1))
	_ = q.Insert(jobqueue.NewDescriptor("bad", 0, 1))

	var calls sync.Map
	exec := ExecutorFunc(func(_ context.Context, s Slice) error {
		v, _ := calls.LoadOrStore(s.Job.Name, new(atomic.Int32))
		n := v.(*atomic.Int32).Add(1)
		switch s.Job.Name {
		case "flaky":
			if n < 2 {
				return errors.New("transient")
			}
			return nil
		default:
			return NoRetry(errors.New("permanent"))
		}
	})

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	p := New(Config{Workers: 1, PollInterval: time.Millisecond, RetryMax: 3, RetryBase: time.Millisecond}, q, exec, logx.Nop(), bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	waitFor(t, func() bool { return p.Snapshot().Slices == 2 })
	_ = p.Stop(context.Background())

	snap := p.Snapshot()
	if snap.Failures != 1 || snap.Finished != 1 {
		t.Fatalf("failures=%d finished=%d, want 1/1", snap.Failures, snap.Finished)
	}
	if snap.History[0].Job != "flaky" || snap.History[0].Attempts != 2 {
		t.Fatalf("history[0] = %+v, want flaky after 2 attempts", snap.History[0])
	}
	if snap.History[1].Attempts != 1 || snap.History[1].Error == "" {
		t.Fatalf("history[1] = %+v, want one failed attempt", snap.History[1])
	}

	want := []string{eventbus.WorkerExecuted, eventbus.WorkerFailed}
	for _, w := range want {
		select {
		case e := <-events:
			if e.Type != w {
				t.Fatalf("event = %s, want %s", e.Type, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing %s event", w)
		}
	}
}

func TestPoolRecoversExecutorPanic(t *testing.T) {
	t.Parallel()
	q := newQueue(t, 1)
	_ = q.Insert(jobqueue.NewDescriptor("boom", 1, 1))
	_ = q.Insert(jobqueue.NewDescriptor("ok", 0, 1))

	rec := &recorder{}
	exec := ExecutorFunc(func(ctx context.Context, s Slice) error {
		if s.Job.Name == "boom" {
			panic("executor bug")
		}
		return rec.Execute(ctx, s)
	})
	p := New(Config{Workers: 1, PollInterval: time.Millisecond}, q, exec, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	waitFor(t, func() bool { return p.Snapshot().Slices == 2 })
	_ = p.Stop(context.Background())

	if names := rec.names(); len(names) != 1 || names[0] != "ok" {
		t.Fatalf("executed = %v, want [ok]", names)
	}
	if f := p.Snapshot().Failures; f != 1 {
		t.Fatalf("failures = %d, want 1", f)
	}
}

func TestPoolApplyRestartsWorkers(t *testing.T) {
	t.Parallel()
	q := newQueue(t, 1)
	p := New(Config{Workers: 1, PollInterval: time.Millisecond}, q, &recorder{}, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	if err := p.Apply(context.Background(), Config{Workers: 3, PollInterval: time.Millisecond}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	snap := p.Snapshot()
	if !snap.Running || snap.Workers != 3 {
		t.Fatalf("snapshot = %+v, want 3 running workers", snap)
	}
	_ = q.Insert(jobqueue.NewDescriptor("after", 1, 1))
	waitFor(t, func() bool { return p.Snapshot().Finished == 1 })
	_ = p.Stop(context.Background())
}

func TestSleepExecutorHonoursContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := Slice{Job: jobqueue.Result{Granted: 10}, Unit: time.Hour}
	if err := (SleepExecutor{}).Execute(ctx, s); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if d := s.Duration(); d != 10*time.Hour {
		t.Fatalf("Duration() = %v, want 10h", d)
	}
	if err := (SleepExecutor{}).Execute(context.Background(), Slice{Unit: time.Hour}); err != nil {
		t.Fatalf("zero slice: %v", err)
	}
}

func TestNoRetry(t *testing.T) {
	t.Parallel()
	base := errors.New("x")
	err := NoRetry(base)
	if !IsNoRetry(err) || !errors.Is(err, base) {
		t.Fatalf("NoRetry(%v) = %v", base, err)
	}
	if NoRetry(nil) != nil {
		t.Fatal("NoRetry(nil) != nil")
	}
	if IsNoRetry(base) {
		t.Fatal("plain error reported as no-retry")
	}
}

// blockingExecutor ignores ctx and holds the slice until release is closed.
type blockingExecutor struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingExecutor) Execute(context.Context, Slice) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return nil
}

func TestPoolStopDuringApplyKeepsPoolStopped(t *testing.T) {
	t.Parallel()
	q := newQueue(t, 1)
	_ = q.Insert(jobqueue.NewDescriptor("held", 1, 1))

	exec := &blockingExecutor{started: make(chan struct{}), release: make(chan struct{})}
	p := New(Config{Workers: 1, PollInterval: time.Millisecond, TimeUnit: time.Millisecond}, q, exec, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	<-exec.started

	applied := make(chan error, 1)
	go func() {
		applied <- p.Apply(context.Background(), Config{Workers: 2, PollInterval: time.Millisecond, TimeUnit: time.Millisecond})
	}()
	// Apply has detached the old workers and is waiting for the held slice.
	waitFor(t, func() bool { return !p.Snapshot().Running })

	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	close(exec.release)

	select {
	case err := <-applied:
		if !errors.Is(err, ErrStopped) {
			t.Fatalf("Apply err = %v, want ErrStopped", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Apply did not return")
	}
	if snap := p.Snapshot(); snap.Running {
		t.Fatalf("pool running after Stop, snapshot = %+v", snap)
	}

	// A later Start works normally again.
	p.Start(ctx)
	if !p.Snapshot().Running {
		t.Fatal("Start after stopped Apply did not start the pool")
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
