package stack

import "sync"

// Store is the shared in-memory stack behind a stack pool.
type Store struct {
	mu    sync.RWMutex
	items []any
}

// NewStore returns a stack holding items, bottom first.
func NewStore(items ...any) *Store {
	s := &Store{items: make([]any, len(items))}
	copy(s.items, items)
	return s
}

func (s *Store) push(v any) {
	s.mu.Lock()
	s.items = append(s.items, v)
	s.mu.Unlock()
}

func (s *Store) pop() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.items)
	if n == 0 {
		return nil, false
	}
	v := s.items[n-1]
	s.items[n-1] = nil
	s.items = s.items[:n-1]
	return v, true
}

// at returns the item depth positions below the top.
func (s *Store) at(depth int) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := len(s.items) - 1 - depth
	if i < 0 {
		return nil, false
	}
	return s.items[i], true
}

// apply replays ops under a single write lock. A pop that finds the
// stack already emptied by a concurrent writer is skipped.
func (s *Store) apply(ops []op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range ops {
		switch o.kind {
		case opPush:
			s.items = append(s.items, o.value)
		case opPop:
			if n := len(s.items); n > 0 {
				s.items[n-1] = nil
				s.items = s.items[:n-1]
			}
		}
	}
}

// Len returns the number of items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Items returns a copy of the stack, bottom first.
func (s *Store) Items() []any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]any, len(s.items))
	copy(out, s.items)
	return out
}
