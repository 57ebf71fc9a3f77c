package config

import (
	"errors"
	"fmt"
	"strings"

	logx "vrtq/pkg/logx"
)

// Validate checks a decoded config for values that would fail at startup.
// It does not check anything that depends on the running process.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if c.Queue.TimeSlice == 0 {
		errs = append(errs, errors.New("queue.time_slice must be > 0"))
	}
	if c.Workers.Count < 0 {
		errs = append(errs, errors.New("workers.count must be >= 0"))
	}
	if c.Workers.RetryMax < 0 {
		errs = append(errs, errors.New("workers.retry_max must be >= 0"))
	}
	for path, raw := range map[string]string{
		"workers.poll_interval":  c.Workers.PollInterval,
		"workers.time_unit":      c.Workers.TimeUnit,
		"workers.idle_log_every": c.Workers.IdleLogEvery,
		"workers.retry_base":     c.Workers.RetryBase,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if !logx.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		errs = append(errs, errors.New("logging.file.path is required when file logging is enabled"))
	}

	seen := map[string]bool{}
	for i, f := range c.Producer.Feeds {
		name := strings.TrimSpace(f.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("producer.feeds[%d]: name required", i))
		case seen[name]:
			errs = append(errs, fmt.Errorf("producer.feeds[%d]: duplicate name %q", i, name))
		}
		seen[name] = true
		if strings.TrimSpace(f.Schedule) == "" {
			errs = append(errs, fmt.Errorf("producer.feeds[%d]: schedule required", i))
		}
	}

	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				errs = append(errs, errors.New("storage.path is required"))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CheckImmutable rejects reloads that change settings only read at startup.
func CheckImmutable(oldCfg, newCfg *Config) error {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	if oldCfg.Queue.TimeSlice != newCfg.Queue.TimeSlice {
		return fmt.Errorf("queue.time_slice cannot change at runtime (%d -> %d); restart to apply",
			oldCfg.Queue.TimeSlice, newCfg.Queue.TimeSlice)
	}
	if !storageEqual(oldCfg.Storage, newCfg.Storage) {
		return errors.New("storage cannot change at runtime; restart to apply")
	}
	return nil
}

func storageEqual(a, b *StorageConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
