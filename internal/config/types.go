package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	Queue    QueueConfig    `json:"queue"`
	Workers  WorkersConfig  `json:"workers"`
	Producer ProducerConfig `json:"producer"`
	Logging  LoggingConfig  `json:"logging"`

	// Storage is optional; nil disables the audit trail.
	Storage *StorageConfig `json:"storage,omitempty"`
}

// QueueConfig is read once at startup. A reload that changes it is rejected.
type QueueConfig struct {
	TimeSlice uint `json:"time_slice"`
}

// WorkersConfig controls the consumer pool.
//
// Defaults (when fields are omitted/zero):
//   - count: 1
//   - poll_interval: "500ms"
//   - time_unit: "1s"
//   - history_size: 200
//   - idle_log_every: "10s"
//   - retry_max: 0
//   - retry_base: "250ms"
type WorkersConfig struct {
	Count        int    `json:"count,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"`
	TimeUnit     string `json:"time_unit,omitempty"`
	HistorySize  int    `json:"history_size,omitempty"`
	IdleLogEvery string `json:"idle_log_every,omitempty"`
	RetryMax     int    `json:"retry_max,omitempty"`
	RetryBase    string `json:"retry_base,omitempty"`
}

type ProducerConfig struct {
	Timezone string       `json:"timezone,omitempty"` // IANA TZ, e.g. "Europe/Berlin"
	Feeds    []FeedConfig `json:"feeds,omitempty"`
}

type FeedConfig struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Priority uint   `json:"priority"`
	VRT      uint   `json:"vrt"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Driver      string `json:"driver"` // "file" | "sqlite" | "none"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}
