package config

import (
	"reflect"
	"sort"
	"strings"

	logx "vrtq/pkg/logx"
)

// SummarizeChange lists the top-level sections that differ and returns
// fields suitable for a single log line.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		fields  []logx.Field
	)

	if oldCfg.Queue != newCfg.Queue {
		changed = append(changed, "queue")
		fields = append(fields, logx.Uint("queue.time_slice", newCfg.Queue.TimeSlice))
	}
	if oldCfg.Workers != newCfg.Workers {
		changed = append(changed, "workers")
		fields = append(fields,
			logx.Int("workers.count", newCfg.Workers.Count),
			logx.String("workers.poll_interval", strings.TrimSpace(newCfg.Workers.PollInterval)),
			logx.String("workers.time_unit", strings.TrimSpace(newCfg.Workers.TimeUnit)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Producer, newCfg.Producer) {
		changed = append(changed, "producer")
		fields = append(fields,
			logx.String("producer.timezone", strings.TrimSpace(newCfg.Producer.Timezone)),
			logx.Int("producer.feeds", len(newCfg.Producer.Feeds)),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !storageEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		driver := ""
		if newCfg.Storage != nil {
			driver = newCfg.Storage.Driver
		}
		fields = append(fields, logx.String("storage.driver", driver))
	}

	sort.Strings(changed)
	return changed, fields
}
