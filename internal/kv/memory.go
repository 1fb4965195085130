package kv

import (
	"context"
	"slices"
	"sync"
)

// Memory is an in-process Backend, for tests and ephemeral runs.
type Memory struct {
	mu       sync.RWMutex
	values   map[string][]byte
	watchers map[string][]chan struct{}
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{
		values:   make(map[string][]byte),
		watchers: make(map[string][]chan struct{}),
	}
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

// Put implements Backend.
func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = slices.Clone(value)
	m.notifyLocked(key)
	return nil
}

// Delete implements Backend.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; !ok {
		return nil
	}
	delete(m.values, key)
	m.notifyLocked(key)
	return nil
}

// Close implements Backend.
func (m *Memory) Close() error {
	return nil
}

// Watch implements Watcher. Notifications are coalesced: several writes in
// quick succession may produce a single call to fn.
func (m *Memory) Watch(ctx context.Context, key string, fn func()) error {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.watchers[key] = append(m.watchers[key], ch)
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.watchers[key] = slices.DeleteFunc(m.watchers[key], func(c chan struct{}) bool { return c == ch })
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
			fn()
		}
	}
}

func (m *Memory) notifyLocked(key string) {
	for _, ch := range m.watchers[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
