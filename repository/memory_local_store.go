package repository

import (
	"context"
	"sync"

	"coinflip/service"
)

var _ service.LocalStore = (*MemoryLocalStore)(nil)

// MemoryLocalStore keeps local state in process memory. Nothing survives a
// restart; it backs STORAGE_TYPE=memory and tests.
type MemoryLocalStore struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

// NewMemoryLocalStore creates an empty in-memory store
func NewMemoryLocalStore() *MemoryLocalStore {
	return &MemoryLocalStore{data: make(map[string]map[string]string)}
}

// Get returns the value of key in the account namespace
func (s *MemoryLocalStore) Get(ctx context.Context, account, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.data[account][key]
	return value, ok, nil
}

// Put sets key in the account namespace
func (s *MemoryLocalStore) Put(ctx context.Context, account, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(account, key, value)
	return nil
}

func (s *MemoryLocalStore) set(account, key, value string) {
	ns, ok := s.data[account]
	if !ok {
		ns = make(map[string]string)
		s.data[account] = ns
	}
	ns[key] = value
}

// Delete removes key from the account namespace
func (s *MemoryLocalStore) Delete(ctx context.Context, account, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[account], key)
	return nil
}

// Update applies fn to the current value under the store lock
func (s *MemoryLocalStore) Update(ctx context.Context, account, key string, fn updateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.data[account][key]
	next, err := fn(current, ok)
	if err != nil {
		return err
	}
	s.set(account, key, next)
	return nil
}
