package datastore

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend keeps everything in process memory.
type MemoryBackend struct {
	mu     sync.RWMutex
	stores map[string]map[string][]byte
	closed bool
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{stores: make(map[string]map[string][]byte)}
}

// Set implements Backend. The value is copied.
func (m *MemoryBackend) Set(_ context.Context, store, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	s := m.stores[store]
	if s == nil {
		s = make(map[string][]byte)
		m.stores[store] = s
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s[key] = cp
	return nil
}

// Get implements Backend. The returned slice is a copy.
func (m *MemoryBackend) Get(_ context.Context, store, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	v, ok := m.stores[store][key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, store, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.stores[store], key)
	return nil
}

// Clear implements Backend.
func (m *MemoryBackend) Clear(_ context.Context, store string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.stores, store)
	return nil
}

// Keys implements Backend.
func (m *MemoryBackend) Keys(_ context.Context, store string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(m.stores[store]))
	for k := range m.stores[store] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.stores = nil
	return nil
}
