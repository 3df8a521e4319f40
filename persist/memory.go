package persist

import (
	"context"
	"slices"
	"sync"
)

type memoryKey struct {
	token string
	kind  string
}

// MemoryStore is an in-process Store, mainly for tests.
type MemoryStore struct {
	values map[memoryKey][]byte
	mu     sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[memoryKey][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, token, kind string) ([]byte, error) {
	if err := validateKey(token, kind); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.values[memoryKey{token, kind}]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(data), nil
}

func (s *MemoryStore) Save(_ context.Context, token, kind string, data []byte) error {
	if err := validateKey(token, kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[memoryKey{token, kind}] = slices.Clone(data)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, token, kind string) error {
	if err := validateKey(token, kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey{token, kind}
	if _, ok := s.values[key]; !ok {
		return ErrNotFound
	}
	delete(s.values, key)
	return nil
}

// Len returns the number of stored values.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
