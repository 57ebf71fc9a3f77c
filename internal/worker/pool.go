// Package worker runs consumers that poll a job queue, take one slice at a
// time and execute it outside the queue lock.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"vrtq/internal/eventbus"
	"vrtq/internal/jobqueue"
	"vrtq/internal/runtime/supervisor"
	logx "vrtq/pkg/logx"
)

type Pool struct {
	mu   sync.Mutex
	cfg  Config
	src  Source
	exec Executor
	log  logx.Logger
	bus  eventbus.Bus

	sup  *supervisor.Supervisor
	base context.Context

	restarting bool
	stopReq    bool

	slices    atomic.Uint64
	finished  atomic.Uint64
	failures  atomic.Uint64
	idlePolls atomic.Uint64

	hmu     sync.Mutex
	history []HistoryItem
}

// New returns a stopped pool. A nil exec means SleepExecutor.
func New(cfg Config, src Source, exec Executor, log logx.Logger, bus eventbus.Bus) *Pool {
	if exec == nil {
		exec = SleepExecutor{}
	}
	return &Pool{
		cfg:  cfg.withDefaults(),
		src:  src,
		exec: exec,
		log:  log.With(logx.String("comp", "worker")),
		bus:  bus,
	}
}

// Start launches the workers. It is idempotent.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sup != nil {
		return
	}
	p.stopReq = false
	p.startLocked(ctx)
}

func (p *Pool) startLocked(ctx context.Context) {
	cfg := p.cfg
	p.base = ctx
	p.sup = supervisor.New(ctx, supervisor.WithLogger(p.log))
	for i := 0; i < cfg.Workers; i++ {
		idx := i
		p.sup.GoRestart(fmt.Sprintf("worker.%d", idx), func(ctx context.Context) error {
			return p.run(ctx, idx, cfg)
		})
	}
	p.log.Info("worker pool started",
		logx.Int("workers", cfg.Workers),
		logx.Duration("poll_interval", cfg.PollInterval),
		logx.Duration("time_unit", cfg.TimeUnit),
	)
}

// Stop cancels the workers and waits for in-flight slices until ctx is done.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	sup := p.sup
	p.sup = nil
	if p.restarting {
		// Apply is between its stop and start; keep it from starting again.
		p.stopReq = true
	}
	p.mu.Unlock()
	if sup == nil {
		return nil
	}
	err := sup.Stop(ctx)
	p.log.Info("worker pool stopped")
	return err
}

// Apply swaps the configuration, restarting running workers under the
// context they were started with. ctx bounds the wait for the old workers.
// It returns ErrStopped if Stop was called while the restart was under way;
// the pool then stays stopped.
func (p *Pool) Apply(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()
	p.mu.Lock()
	prev := p.cfg
	p.cfg = cfg
	sup := p.sup
	if sup == nil || prev == cfg {
		p.mu.Unlock()
		return nil
	}
	p.sup = nil
	p.restarting = true
	base := p.base
	p.mu.Unlock()

	err := sup.Stop(ctx)
	p.log.Info("worker pool stopped for reconfigure")

	p.mu.Lock()
	defer p.mu.Unlock()
	p.restarting = false
	if p.stopReq {
		p.stopReq = false
		return ErrStopped
	}
	if err != nil {
		return err
	}
	if p.sup == nil {
		p.startLocked(base)
	}
	return nil
}

func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	cfg := p.cfg
	sup := p.sup
	p.mu.Unlock()

	snap := Snapshot{
		Running:      sup != nil,
		Workers:      cfg.Workers,
		PollInterval: cfg.PollInterval,
		TimeUnit:     cfg.TimeUnit,
		Slices:       p.slices.Load(),
		Finished:     p.finished.Load(),
		Failures:     p.failures.Load(),
		IdlePolls:    p.idlePolls.Load(),
	}
	if sup != nil {
		snap.Goroutines = sup.Snapshot()
	}
	p.hmu.Lock()
	snap.History = append([]HistoryItem(nil), p.history...)
	p.hmu.Unlock()
	return snap
}

func (p *Pool) run(ctx context.Context, idx int, cfg Config) error {
	lim := rate.NewLimiter(rate.Every(cfg.PollInterval), 1)
	idleLog := rate.Sometimes{Interval: cfg.IdleLogEvery}
	log := p.log.With(logx.Int("worker", idx))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.src.HasPendingJobs() {
			if err := p.idle(ctx, lim, &idleLog, log); err != nil {
				return err
			}
			continue
		}
		res, err := p.src.SelectAndConsume()
		if errors.Is(err, jobqueue.ErrEmptyQueue) {
			// Another worker drained the queue between the check and the consume.
			if err := p.idle(ctx, lim, &idleLog, log); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		p.execute(ctx, Slice{Worker: idx, Job: res, Unit: cfg.TimeUnit}, cfg, log)
	}
}

func (p *Pool) idle(ctx context.Context, lim *rate.Limiter, every *rate.Sometimes, log logx.Logger) error {
	p.idlePolls.Add(1)
	every.Do(func() { log.Debug("queue idle") })
	return lim.Wait(ctx)
}

func (p *Pool) execute(ctx context.Context, s Slice, cfg Config, log logx.Logger) {
	start := time.Now()
	var err error
	attempts := 0
	backoff := cfg.RetryBase

retry:
	for attempts <= cfg.RetryMax {
		attempts++
		if err = p.safeExecute(ctx, s, log); err == nil || IsNoRetry(err) || ctx.Err() != nil {
			break
		}
		if attempts > cfg.RetryMax {
			break
		}
		log.Debug("slice retry scheduled", logx.String("job", s.Job.Name), logx.Int("attempt", attempts+1), logx.Duration("delay", backoff), logx.Err(err))
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			err = ctx.Err()
			break retry
		case <-t.C:
		}
		backoff *= 2
	}

	dur := time.Since(start)
	p.slices.Add(1)
	item := HistoryItem{
		Worker:   s.Worker,
		Job:      s.Job.Name,
		Granted:  s.Job.Granted,
		VRTLeft:  s.Job.VRT,
		Finished: s.Job.Finished,
		Started:  start,
		Duration: dur,
		Attempts: attempts,
	}
	ev := eventbus.JobEvent{
		Name:     s.Job.Name,
		Priority: s.Job.Priority,
		VRT:      s.Job.VRT,
		Granted:  s.Job.Granted,
		Finished: s.Job.Finished,
		Worker:   s.Worker,
		Duration: dur,
	}

	if err != nil {
		p.failures.Add(1)
		item.Error = err.Error()
		ev.Error = item.Error
		log.Warn("slice failed", logx.String("job", s.Job.Name), logx.Int("attempts", attempts), logx.Duration("dur", dur), logx.Err(err))
		p.publish(eventbus.WorkerFailed, ev)
	} else {
		if s.Job.Finished {
			p.finished.Add(1)
		}
		log.Info("slice executed",
			logx.String("job", s.Job.Name),
			logx.Uint("granted", s.Job.Granted),
			logx.Bool("finished", s.Job.Finished),
			logx.Duration("dur", dur),
		)
		p.publish(eventbus.WorkerExecuted, ev)
	}
	p.record(item, cfg.HistorySize)
}

// safeExecute converts an executor panic into an error so a bad job cannot
// take a worker down.
func (p *Pool) safeExecute(ctx context.Context, s Slice, log logx.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			log.Error("executor panicked", logx.String("job", s.Job.Name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	return p.exec.Execute(ctx, s)
}

func (p *Pool) record(item HistoryItem, size int) {
	p.hmu.Lock()
	defer p.hmu.Unlock()
	p.history = append(p.history, item)
	if len(p.history) > size {
		p.history = p.history[len(p.history)-size:]
	}
}

func (p *Pool) publish(typ string, ev eventbus.JobEvent) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}
