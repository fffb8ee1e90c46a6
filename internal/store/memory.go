package store

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

// MemoryStore is a map-backed Store. Nothing survives the process.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// GetErr and SetErr inject failures for tests.
	GetErr error
	SetErr error
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetErr != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStore, key, m.GetErr)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(v), nil
}

// Set implements Store.
func (m *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	if m.SetErr != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStore, key, m.SetErr)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = bytes.Clone(value)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
