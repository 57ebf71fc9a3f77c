package storage

import (
	"context"
	"errors"
	"strings"

	logx "vrtq/pkg/logx"
)

// Store is the persistence API used by the recorder and the console.
type Store interface {
	AppendEvent(ctx context.Context, r Record) error
	// Recent returns up to n of the latest records, oldest first.
	Recent(ctx context.Context, n int) ([]Record, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
