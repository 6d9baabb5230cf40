package storage

import "sync"

// InMemoryStore is an in-memory implementation of Store. It does not survive
// a restart and exists for tests and ephemeral sessions.
type InMemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewInMemoryStore creates a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{values: make(map[string]string)}
}

func (s *InMemoryStore) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return "", NotFoundErr
	}
	return value, nil
}

func (s *InMemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

func (s *InMemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}
