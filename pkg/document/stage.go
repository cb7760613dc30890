package document

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type op struct {
	key     key
	raw     bson.Raw
	deleted bool
}

type entry struct {
	raw     bson.Raw
	deleted bool
}

// stage is a transaction's private overlay. Untouched documents are read
// from the store.
type stage struct {
	store *Store
	ops   []op
	view  map[key]entry
}

func newStage(store *Store) *stage {
	return &stage{store: store, view: make(map[key]entry)}
}

func (s *stage) find(k key) (bson.Raw, bool) {
	if e, ok := s.view[k]; ok {
		if e.deleted {
			return nil, false
		}
		return e.raw, true
	}
	return s.store.find(k)
}

func (s *stage) write(k key, raw bson.Raw, deleted bool) {
	s.ops = append(s.ops, op{key: k, raw: raw, deleted: deleted})
	s.view[k] = entry{raw: raw, deleted: deleted}
}

func (s *stage) insert(k key, raw bson.Raw) error {
	if _, ok := s.find(k); ok {
		return duplicateError(k)
	}
	s.write(k, raw, false)
	return nil
}

func (s *stage) replace(k key, raw bson.Raw) error {
	if _, ok := s.find(k); !ok {
		return notFoundError(k)
	}
	s.write(k, raw, false)
	return nil
}

func (s *stage) remove(k key) error {
	if _, ok := s.find(k); !ok {
		return notFoundError(k)
	}
	s.write(k, nil, true)
	return nil
}

func (s *stage) ids(coll string) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{})
	for _, id := range s.store.ids(coll) {
		if e, ok := s.view[key{coll: coll, id: id}]; ok && e.deleted {
			continue
		}
		seen[id] = struct{}{}
	}
	for k, e := range s.view {
		if k.coll == coll && !e.deleted {
			seen[k.id] = struct{}{}
		}
	}
	ids := make([]primitive.ObjectID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// Apply implements pool.Stage.
func (s *stage) Apply() {
	s.store.apply(s.ops)
	s.Discard()
}

// Discard implements pool.Stage.
func (s *stage) Discard() {
	s.ops = nil
	s.view = nil
}
