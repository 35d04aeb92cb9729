package registry

import (
	"context"
	"sync"
)

// MemoryStore is the default registry backend. It lives and dies with the
// process: configurations do not survive a restart, which is an accepted
// limitation of the in-memory mode.
type MemoryStore struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{handles: make(map[string]Handle)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (Handle, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[key]
	return h, ok, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, handle Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[key] = handle
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, key)
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.handles))
	for k := range s.handles {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
