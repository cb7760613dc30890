package kv

import "sort"

type opKind uint8

const (
	opSet opKind = iota + 1
	opDelete
)

type op struct {
	kind  opKind
	key   string
	value any
}

type entry struct {
	value   any
	deleted bool
}

// stage is a transaction's private overlay on the shared store.
type stage struct {
	store *Store
	ops   []op
	view  map[string]entry
}

func newStage(store *Store) *stage {
	return &stage{store: store, view: make(map[string]entry)}
}

func (s *stage) get(key string) (any, bool) {
	if e, ok := s.view[key]; ok {
		if e.deleted {
			return nil, false
		}
		return e.value, true
	}
	return s.store.get(key)
}

func (s *stage) set(key string, value any) {
	s.ops = append(s.ops, op{kind: opSet, key: key, value: value})
	s.view[key] = entry{value: value}
}

func (s *stage) delete(key string) bool {
	_, existed := s.get(key)
	s.ops = append(s.ops, op{kind: opDelete, key: key})
	s.view[key] = entry{deleted: true}
	return existed
}

func (s *stage) keys() []string {
	seen := make(map[string]struct{})
	for _, k := range s.store.keys() {
		if e, ok := s.view[k]; ok && e.deleted {
			continue
		}
		seen[k] = struct{}{}
	}
	for k, e := range s.view {
		if !e.deleted {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Apply implements pool.Stage.
func (s *stage) Apply() {
	s.store.apply(s.ops)
	s.ops = nil
	s.view = nil
}

// Discard implements pool.Stage.
func (s *stage) Discard() {
	s.ops = nil
	s.view = nil
}
