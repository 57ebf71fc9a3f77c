package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file at Path
//   - "sqlite": SQLite database at Path (WAL mode)
//
// An empty Driver or "none" disables storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
}

// Record is one audited event. Keep it compact and schema-stable.
type Record struct {
	ID       string        `json:"id"`
	At       time.Time     `json:"at"`
	Type     string        `json:"type"`
	Job      string        `json:"job"`
	Priority uint          `json:"priority"`
	VRT      uint          `json:"vrt"`
	Granted  uint          `json:"granted,omitempty"`
	Finished bool          `json:"finished,omitempty"`
	Worker   int           `json:"worker,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}
