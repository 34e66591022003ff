package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (snapshot + journal)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// StateRecord is the persisted form of one item state.
// Keep it compact and schema-stable.
type StateRecord struct {
	Item      string    `json:"item"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
