package credstore

import (
	"context"
	"sync"
)

// MemoryStore keeps credentials in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[Kind]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[Kind]string)}
}

func (m *MemoryStore) Get(_ context.Context, kind Kind) (string, bool, error) {
	if err := validKind(kind); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.tokens[kind]
	return token, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, kind Kind, token string) error {
	if err := validKind(kind); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if token == "" {
		delete(m.tokens, kind)
		return nil
	}
	m.tokens[kind] = token
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.tokens)
	return nil
}
