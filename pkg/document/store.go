package document

import (
	"bytes"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ajitpratap0/tidepool/pkg/errors"
)

type key struct {
	coll string
	id   primitive.ObjectID
}

// docs is the verb set shared by the store and a transaction's stage.
// Documents are encoded BSON and never modified in place.
type docs interface {
	find(k key) (bson.Raw, bool)
	insert(k key, raw bson.Raw) error
	replace(k key, raw bson.Raw) error
	remove(k key) error
	ids(coll string) []primitive.ObjectID
}

// Store is the shared in-memory document database behind a document pool.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[primitive.ObjectID]bson.Raw
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{collections: make(map[string]map[primitive.ObjectID]bson.Raw)}
}

func (s *Store) find(k key) (bson.Raw, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.collections[k.coll][k.id]
	return raw, ok
}

func (s *Store) insert(k key, raw bson.Raw) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[k.coll][k.id]; ok {
		return duplicateError(k)
	}
	s.putLocked(k, raw)
	return nil
}

func (s *Store) replace(k key, raw bson.Raw) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[k.coll][k.id]; !ok {
		return notFoundError(k)
	}
	s.putLocked(k, raw)
	return nil
}

func (s *Store) remove(k key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[k.coll][k.id]; !ok {
		return notFoundError(k)
	}
	s.deleteLocked(k)
	return nil
}

func (s *Store) ids(coll string) []primitive.ObjectID {
	s.mu.RLock()
	ids := make([]primitive.ObjectID, 0, len(s.collections[coll]))
	for id := range s.collections[coll] {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sortIDs(ids)
	return ids
}

func (s *Store) putLocked(k key, raw bson.Raw) {
	c, ok := s.collections[k.coll]
	if !ok {
		c = make(map[primitive.ObjectID]bson.Raw)
		s.collections[k.coll] = c
	}
	c[k.id] = raw
}

func (s *Store) deleteLocked(k key) {
	c, ok := s.collections[k.coll]
	if !ok {
		return
	}
	delete(c, k.id)
	if len(c) == 0 {
		delete(s.collections, k.coll)
	}
}

// apply replays committed ops as writes. Existence was checked when each
// op was staged; a concurrent change made since then is overwritten.
func (s *Store) apply(ops []op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range ops {
		if o.deleted {
			s.deleteLocked(o.key)
			continue
		}
		s.putLocked(o.key, o.raw)
	}
}

// Collections returns the names of non-empty collections in sorted order.
func (s *Store) Collections() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Count returns the number of documents in coll.
func (s *Store) Count(coll string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[coll])
}

func sortIDs(ids []primitive.ObjectID) {
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
}

func duplicateError(k key) error {
	return errors.New(errors.ErrorTypeConflict, "document already exists").
		WithDetail("collection", k.coll).
		WithDetail("id", k.id.Hex())
}

func notFoundError(k key) error {
	return errors.New(errors.ErrorTypeNotFound, "document not found").
		WithDetail("collection", k.coll).
		WithDetail("id", k.id.Hex())
}
