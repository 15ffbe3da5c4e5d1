package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps values in process memory. It is used when no database is
// configured and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	scopes map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scopes: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, scope, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.scopes[scope][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryStore) PutAll(_ context.Context, scope string, values map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.scopes[scope]
	if !ok {
		entries = make(map[string][]byte, len(values))
		m.scopes[scope] = entries
	}
	for k, v := range values {
		entries[k] = append([]byte(nil), v...)
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, scope string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.scopes[scope]
	if !ok {
		return nil
	}
	for _, k := range keys {
		delete(entries, k)
	}
	if len(entries) == 0 {
		delete(m.scopes, scope)
	}
	return nil
}
