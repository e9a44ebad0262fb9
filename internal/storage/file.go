package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "blazealert/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Layout: <dir>/<key>.json, each holding a fileRecord. Writes go to
// <key>.json.tmp, are fsynced, then renamed over the live file so a crash
// never leaves a half-written record behind.
type fileStore struct {
	log logx.Logger
	dir string

	mu     sync.Mutex
	closed bool
}

type fileRecord struct {
	Key       string          `json:"key"`
	UpdatedAt int64           `json:"updated_at"` // unix milli
	Encoding  string          `json:"encoding,omitempty"`
	Value     json.RawMessage `json:"value"`
}

// JSON payloads are embedded verbatim; anything else is stored as base64.
const encodingBase64 = "base64"

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, dir: dir}, nil
}

func (s *fileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *fileStore) Get(ctx context.Context, key string) (Record, bool, error) {
	_ = ctx
	if !validKey(key) {
		return Record{}, false, ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Record{}, false, ErrClosed
	}

	b, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var fr fileRecord
	if err := json.Unmarshal(b, &fr); err != nil {
		return Record{}, false, err
	}
	value := []byte(fr.Value)
	if fr.Encoding == encodingBase64 {
		var raw []byte
		if err := json.Unmarshal(fr.Value, &raw); err != nil {
			return Record{}, false, err
		}
		value = raw
	}
	return Record{Key: key, Value: value, UpdatedAt: time.UnixMilli(fr.UpdatedAt)}, true, nil
}

func (s *fileStore) Put(ctx context.Context, key string, value []byte) error {
	_ = ctx
	if !validKey(key) {
		return ErrInvalidKey
	}
	fr := fileRecord{Key: key, UpdatedAt: time.Now().UnixMilli(), Value: value}
	if len(value) == 0 || !json.Valid(value) {
		enc, err := json.Marshal(value) // []byte marshals as base64
		if err != nil {
			return err
		}
		fr.Encoding = encodingBase64
		fr.Value = enc
	}
	b, err := json.Marshal(fr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	final := s.path(key)
	tmp := final + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	s.log.Trace("record written", logx.String("key", key), logx.Int("bytes", len(b)))
	return nil
}

func (s *fileStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	if !validKey(key) {
		return ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
