package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "ruletimer/pkg/logx"
)

// Store is the minimal persistence API used by the item registry.
type Store interface {
	PutState(ctx context.Context, item, value string, at time.Time) error
	GetState(ctx context.Context, item string) (rec StateRecord, ok bool, err error)
	ListStates(ctx context.Context) ([]StateRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
