package storage

import (
	"errors"
	"time"
)

var (
	ErrClosed     = errors.New("storage closed")
	ErrInvalidKey = errors.New("storage key is invalid")
)

// Config configures storage.
//
// Driver values:
//   - "file": directory of record files (Path is the directory)
//   - "sqlite": SQLite database file (Path is the db file)
//   - "memory" (or empty): in-process only
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is a stored value plus its last write time.
type Record struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}
