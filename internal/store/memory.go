package store

import (
	"context"
	"sync"
)

// MemoryStore lives for the process lifetime; nothing expires.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string]string)}
}

func (m *MemoryStore) GetThread(_ context.Context, conversationID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.threads[conversationID]
	return id, ok, nil
}

func (m *MemoryStore) SetThread(_ context.Context, conversationID, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[conversationID] = threadID
	return nil
}

func (m *MemoryStore) DeleteThread(_ context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, conversationID)
	return nil
}

// Len reports how many conversations are mapped.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.threads)
}
