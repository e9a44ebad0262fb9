package storage

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Store. Values are copied on the way in and out.
type Memory struct {
	mu      sync.RWMutex
	recs    map[string]Record
	closed  bool
	failPut error
}

func NewMemory() *Memory {
	return &Memory{recs: map[string]Record{}}
}

// FailPuts makes every later Put fail with err (nil restores normal behaviour).
func (m *Memory) FailPuts(err error) {
	m.mu.Lock()
	m.failPut = err
	m.mu.Unlock()
}

func (m *Memory) Get(ctx context.Context, key string) (Record, bool, error) {
	_ = ctx
	if !validKey(key) {
		return Record{}, false, ErrInvalidKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Record{}, false, ErrClosed
	}
	r, ok := m.recs[key]
	if !ok {
		return Record{}, false, nil
	}
	r.Value = append([]byte(nil), r.Value...)
	return r, true, nil
}

func (m *Memory) Put(ctx context.Context, key string, value []byte) error {
	_ = ctx
	if !validKey(key) {
		return ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.failPut != nil {
		return m.failPut
	}
	m.recs[key] = Record{Key: key, Value: append([]byte(nil), value...), UpdatedAt: time.Now()}
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.recs, key)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
