package worker

import (
	"context"
	"time"

	"vrtq/internal/jobqueue"
	"vrtq/internal/runtime/supervisor"
)

// Config controls the consumer pool.
type Config struct {
	Workers int
	// PollInterval is the minimum gap between idle polls of an empty queue.
	PollInterval time.Duration
	// TimeUnit is the wall-clock length of one VRT unit.
	TimeUnit    time.Duration
	HistorySize int
	// IdleLogEvery throttles the "queue idle" debug line per worker.
	IdleLogEvery time.Duration

	// RetryMax is how many times a failed slice is re-executed.
	RetryMax  int
	RetryBase time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.TimeUnit <= 0 {
		c.TimeUnit = time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	if c.IdleLogEvery <= 0 {
		c.IdleLogEvery = 10 * time.Second
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 250 * time.Millisecond
	}
	return c
}

// Source is the part of the queue a worker consumes from.
type Source interface {
	HasPendingJobs() bool
	SelectAndConsume() (jobqueue.Result, error)
}

// Slice is one granted execution window.
type Slice struct {
	Worker int
	Job    jobqueue.Result
	Unit   time.Duration
}

// Duration is Granted time units in wall-clock time.
func (s Slice) Duration() time.Duration {
	return time.Duration(s.Job.Granted) * s.Unit
}

// Executor runs one slice. It is called without the queue lock held.
type Executor interface {
	Execute(ctx context.Context, s Slice) error
}

type ExecutorFunc func(ctx context.Context, s Slice) error

func (f ExecutorFunc) Execute(ctx context.Context, s Slice) error { return f(ctx, s) }

// SleepExecutor simulates work by sleeping for the slice duration.
type SleepExecutor struct{}

func (SleepExecutor) Execute(ctx context.Context, s Slice) error {
	d := s.Duration()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type HistoryItem struct {
	Worker   int
	Job      string
	Granted  uint
	VRTLeft  uint
	Finished bool
	Started  time.Time
	Duration time.Duration
	Attempts int
	Error    string
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Running      bool
	Workers      int
	PollInterval time.Duration
	TimeUnit     time.Duration

	Slices    uint64
	Finished  uint64
	Failures  uint64
	IdlePolls uint64

	History    []HistoryItem
	Goroutines []supervisor.Stats
}
