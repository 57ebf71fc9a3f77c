package app

import (
	"fmt"
	"strings"
	"time"

	"vrtq/internal/config"
	"vrtq/internal/producer"
	"vrtq/internal/storage"
	"vrtq/internal/worker"
	logx "vrtq/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapWorkerConfig(cfg *config.Config) (worker.Config, error) {
	w := cfg.Workers
	poll, err := config.ParseDurationOrDefault("workers.poll_interval", w.PollInterval, 500*time.Millisecond)
	if err != nil {
		return worker.Config{}, err
	}
	unit, err := config.ParseDurationOrDefault("workers.time_unit", w.TimeUnit, time.Second)
	if err != nil {
		return worker.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("workers.idle_log_every", w.IdleLogEvery, 10*time.Second)
	if err != nil {
		return worker.Config{}, err
	}
	retryBase, err := config.ParseDurationOrDefault("workers.retry_base", w.RetryBase, 250*time.Millisecond)
	if err != nil {
		return worker.Config{}, err
	}
	return worker.Config{
		Workers:      w.Count,
		PollInterval: poll,
		TimeUnit:     unit,
		HistorySize:  w.HistorySize,
		IdleLogEvery: idle,
		RetryMax:     w.RetryMax,
		RetryBase:    retryBase,
	}, nil
}

// mapProducerConfig also checks every schedule and the timezone, so a bad
// reload is rejected before it is committed.
func mapProducerConfig(cfg *config.Config) (producer.Config, error) {
	p := cfg.Producer
	if tz := strings.TrimSpace(p.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return producer.Config{}, fmt.Errorf("producer.timezone: invalid %q: %w", tz, err)
		}
	}
	out := producer.Config{Timezone: p.Timezone, Feeds: make([]producer.Feed, 0, len(p.Feeds))}
	for _, f := range p.Feeds {
		out.Feeds = append(out.Feeds, producer.Feed{Name: f.Name, Schedule: f.Schedule, Priority: f.Priority, VRT: f.VRT})
	}
	if err := producer.Validate(out); err != nil {
		return producer.Config{}, fmt.Errorf("producer: %w", err)
	}
	return out, nil
}

// mapStorageConfig returns enabled=false when the section is absent or the
// driver is "none".
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	sc := cfg.Storage
	if sc == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, true, nil
}
