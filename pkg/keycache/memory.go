package keycache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Cache. It survives controller restarts within
// one process, which is what the tests and the native host need.
type Memory struct {
	mu      sync.Mutex
	key     []byte
	expires time.Time
	now     func() time.Time
}

// NewMemory returns an empty cache. A nil now defaults to time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{now: now}
}

func (m *Memory) Put(_ context.Context, key []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wipe()
	m.key = append([]byte(nil), key...)
	m.expires = m.now().Add(ttl)
	return nil
}

func (m *Memory) Get(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.key == nil {
		return nil, ErrNotFound
	}
	if !m.now().Before(m.expires) {
		m.wipe()
		return nil, ErrNotFound
	}
	return append([]byte(nil), m.key...), nil
}

func (m *Memory) Touch(_ context.Context, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.key != nil && m.now().Before(m.expires) {
		m.expires = m.now().Add(ttl)
	}
	return nil
}

func (m *Memory) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wipe()
	return nil
}

func (m *Memory) wipe() {
	for i := range m.key {
		m.key[i] = 0
	}
	m.key = nil
}
