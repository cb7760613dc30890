package kv

import (
	"sort"
	"sync"
)

// Store is the shared in-memory map behind a key-value pool. Every
// connection and transaction of the pool sees the same Store.
type Store struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string]any)}
}

// NewStoreFrom returns a store seeded with a copy of data.
func NewStoreFrom(data map[string]any) *Store {
	s := NewStore()
	for k, v := range data {
		s.data[k] = v
	}
	return s
}

func (s *Store) get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *Store) set(key string, value any) {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
}

func (s *Store) delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	delete(s.data, key)
	return ok
}

func (s *Store) keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// apply replays ops under a single write lock.
func (s *Store) apply(ops []op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range ops {
		switch o.kind {
		case opSet:
			s.data[o.key] = o.value
		case opDelete:
			delete(s.data, o.key)
		}
	}
}

// Len returns the number of keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Snapshot returns a copy of the store contents.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}
