// Package alertstore persists the alert feed as a single JSON record.
package alertstore

import (
	"context"
	"encoding/json"
	"fmt"

	"blazealert/internal/alert"
	"blazealert/internal/storage"
	logx "blazealert/pkg/logx"
)

// FeedKey is the fixed record key holding the serialized feed.
const FeedKey = "blazeAlertNotifications"

// PersistenceError reports a failed read or write of the feed record.
type PersistenceError struct {
	Op  string // "load" or "save"
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("alertstore %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store reads and writes the feed through a storage.Store.
type Store struct {
	st  storage.Store
	log logx.Logger
	key string
}

func New(st storage.Store, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{st: st, log: log, key: FeedKey}
}

// Load never fails: a missing record is an empty feed, and an unreadable or
// corrupt one is logged and also treated as empty. Invalid entries are dropped.
func (s *Store) Load(ctx context.Context) alert.Feed {
	feed, _ := s.Fetch(ctx)
	return feed
}

// Fetch is Load that also reports whether a readable record existed. An
// explicitly stored empty feed is found; a missing or corrupt one is not.
func (s *Store) Fetch(ctx context.Context) (alert.Feed, bool) {
	feed, found, err := s.load(ctx)
	if err != nil {
		s.log.Warn("feed load failed; starting empty", logx.Err(err))
		return alert.Feed{}, false
	}
	return feed, found
}

func (s *Store) load(ctx context.Context) (alert.Feed, bool, error) {
	if s == nil || s.st == nil {
		return alert.Feed{}, false, nil
	}
	rec, ok, err := s.st.Get(ctx, s.key)
	if err != nil {
		return nil, false, &PersistenceError{Op: "load", Key: s.key, Err: err}
	}
	if !ok || len(rec.Value) == 0 {
		return alert.Feed{}, false, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(rec.Value, &raw); err != nil {
		return nil, false, &PersistenceError{Op: "load", Key: s.key, Err: err}
	}
	alerts := make([]alert.Alert, 0, len(raw))
	undecodable := 0
	for _, r := range raw {
		var a alert.Alert
		if err := json.Unmarshal(r, &a); err != nil {
			undecodable++
			continue
		}
		alerts = append(alerts, a)
	}
	feed, dropped := alert.Sanitize(alerts)
	if dropped+undecodable > 0 {
		s.log.Warn("dropped corrupt feed entries",
			logx.Int("dropped", dropped+undecodable),
			logx.Int("kept", feed.Len()),
		)
	}
	return feed, true, nil
}

// Save replaces the stored feed with f.
func (s *Store) Save(ctx context.Context, f alert.Feed) error {
	if s == nil || s.st == nil {
		return &PersistenceError{Op: "save", Key: FeedKey, Err: storage.ErrClosed}
	}
	if f == nil {
		f = alert.Feed{}
	}
	b, err := json.Marshal([]alert.Alert(f))
	if err != nil {
		return &PersistenceError{Op: "save", Key: s.key, Err: err}
	}
	if err := s.st.Put(ctx, s.key, b); err != nil {
		return &PersistenceError{Op: "save", Key: s.key, Err: err}
	}
	s.log.Trace("feed saved", logx.Int("alerts", f.Len()), logx.Int("bytes", len(b)))
	return nil
}
