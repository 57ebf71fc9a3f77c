// Package app wires the queue, producers, workers, audit trail and config
// hot reload into one service.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"vrtq/internal/config"
	"vrtq/internal/eventbus"
	"vrtq/internal/jobqueue"
	"vrtq/internal/producer"
	"vrtq/internal/runtime/supervisor"
	"vrtq/internal/storage"
	"vrtq/internal/worker"
	logx "vrtq/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	queue *jobqueue.Queue
	prod  *producer.Service
	pool  *worker.Pool

	store storage.Store
	rec   *storage.Recorder
}

// Options override pieces of the default wiring. Zero values keep defaults.
type Options struct {
	// Executor runs granted slices; nil means worker.SleepExecutor.
	Executor worker.Executor
}

// Status is a point-in-time view over every component.
type Status struct {
	Pending     int
	Producer    producer.Snapshot
	Workers     worker.Snapshot
	Recorded    uint64
	RecordFails uint64
	Goroutines  []supervisor.Stats
}

func New(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	pcfg, err := mapProducerConfig(cfg)
	if err != nil {
		return nil, err
	}
	wcfg, err := mapWorkerConfig(cfg)
	if err != nil {
		return nil, err
	}
	scfg, storageOn, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	bus := eventbus.New()

	q, err := jobqueue.New(cfg.Queue.TimeSlice,
		jobqueue.WithLogger(log.With(logx.String("comp", "queue"))),
		jobqueue.WithBus(bus),
	)
	if err != nil {
		return nil, err
	}
	prod, err := producer.New(pcfg, q, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:  cfgm,
		log:   log.With(logx.String("comp", "app")),
		logs:  logSvc,
		bus:   bus,
		queue: q,
		prod:  prod,
		pool:  worker.New(wcfg, q, opts.Executor, log, bus),
	}

	if storageOn {
		st, err := storage.Open(scfg, log)
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		a.store = st
		a.rec = storage.NewRecorder(st, bus, log)
	}
	return a, nil
}

func (a *App) Queue() *jobqueue.Queue      { return a.queue }
func (a *App) Producer() *producer.Service { return a.prod }
func (a *App) Store() storage.Store        { return a.store }
func (a *App) Config() *config.Config      { return a.cfgm.Get() }
func (a *App) Pool() *worker.Pool          { return a.pool }
func (a *App) Bus() eventbus.Bus           { return a.bus }
func (a *App) Logger() logx.Logger         { return a.log }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Status() Status {
	st := Status{
		Pending:  a.queue.Len(),
		Producer: a.prod.Snapshot(),
		Workers:  a.pool.Snapshot(),
	}
	if a.rec != nil {
		st.Recorded, st.RecordFails = a.rec.Counts()
	}
	if a.sup != nil {
		st.Goroutines = a.sup.Snapshot()
	}
	return st
}

// validate rejects a reloaded config that cannot be applied live.
func (a *App) validate(_ context.Context, cfg *config.Config) error {
	if err := config.CheckImmutable(a.cfgm.Get(), cfg); err != nil {
		return err
	}
	if _, err := mapWorkerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapProducerConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return fmt.Errorf("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)

	run := a.sup.Context()

	// The recorder subscribes first so the earliest job events are kept.
	if a.rec != nil {
		a.sup.GoRestart("storage.recorder", a.rec.Run, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.pool.Start(run)
	a.prod.Start(run)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.Uint("time_slice", a.queue.TimeSlice()),
		logx.Int("workers", a.pool.Snapshot().Workers),
		logx.Int("feeds", len(a.prod.Feeds())),
		logx.Bool("audit", a.store != nil),
	)
	return nil
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.log.Debug("config change summary", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)

	a.logs.Apply(mapLogConfig(newCfg))

	if slices.Contains(sections, "workers") {
		if wcfg, err := mapWorkerConfig(newCfg); err != nil {
			a.log.Warn("invalid workers config; keeping previous", logx.Err(err))
		} else if err := a.pool.Apply(ctx, wcfg); errors.Is(err, worker.ErrStopped) {
			a.log.Debug("workers stopped during reconfigure")
		} else if err != nil {
			a.log.Warn("workers apply failed", logx.Err(err))
		}
	}

	if slices.Contains(sections, "producer") {
		if pcfg, err := mapProducerConfig(newCfg); err != nil {
			a.log.Warn("invalid producer config; keeping previous", logx.Err(err))
		} else if err := a.prod.Apply(pcfg); err != nil {
			a.log.Warn("producer apply failed", logx.Err(err))
		}
	}

	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.log.Info("stopping", logx.Int("pending", a.queue.Len()))

	// Producers stop first so nothing new lands while workers drain out.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		c, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		if err := fn(c); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}
	step("producer", 2*time.Second, func(c context.Context) error { a.prod.Stop(c); return nil })
	step("workers", 3*time.Second, a.pool.Stop)
	step("supervisor", 2*time.Second, a.sup.Stop)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped", logx.Int("pending", a.queue.Len()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
