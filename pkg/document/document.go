// Package document is an in-memory document store keyed by collection
// name and ObjectID.
//
// Documents are anything bson.Marshal accepts: structs with bson tags,
// bson.M or bson.D. They are stored encoded, so callers never share memory
// with the store or with a transaction's staged view. A document without
// an _id gets a fresh ObjectID on insert.
//
// Every isolation level is accepted and ignored.
package document

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ajitpratap0/tidepool/pkg/pool"
	"github.com/ajitpratap0/tidepool/pkg/storage"
)

var (
	_ storage.TxnBeginner = (*Pool)(nil)
	_ storage.TxnBeginner = (*Conn)(nil)
	_ storage.Txn         = (*Txn)(nil)
)

// Pool is a bounded pool of connections to a Store.
type Pool struct {
	p *pool.Pool[*Store]
}

// NewPool creates a pool of at most maxCount connections to store.
func NewPool(store *Store, maxCount int, opts ...pool.Option) (*Pool, error) {
	p, err := pool.New(store, storage.KindDocument, maxCount, opts...)
	if err != nil {
		return nil, err
	}
	return &Pool{p: p}, nil
}

// Mode implements storage.API.
func (p *Pool) Mode() storage.Mode { return storage.ModePool }

// Kind implements storage.API.
func (p *Pool) Kind() storage.Kind { return storage.KindDocument }

// Store returns the shared store.
func (p *Pool) Store() *Store { return p.p.Backend() }

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() pool.Stats { return p.p.Stats() }

// Close shuts the pool down, waiting for checked-out connections.
func (p *Pool) Close(ctx context.Context) error { return p.p.Close(ctx) }

// Conn checks out a connection the caller must Close.
func (p *Pool) Conn(ctx context.Context) (*Conn, error) {
	c, err := p.p.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{c: c}, nil
}

// BeginTxn begins a transaction on a connection that returns to the pool
// when the transaction ends.
func (p *Pool) BeginTxn(ctx context.Context, opts storage.TxnOptions) (*Txn, error) {
	var st *stage
	t, err := p.p.BeginTxn(ctx, opts, func(s *Store) pool.Stage {
		st = newStage(s)
		return st
	})
	if err != nil {
		return nil, err
	}
	return &Txn{t: t, stage: st}, nil
}

// BeginTransaction implements storage.TxnBeginner.
func (p *Pool) BeginTransaction(ctx context.Context, opts storage.TxnOptions) (storage.Txn, error) {
	t, err := p.BeginTxn(ctx, opts)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// do runs fn against the store on a connection scoped to this call.
func (p *Pool) do(ctx context.Context, fn func(docs) error) error {
	return p.p.Do(ctx, func(c *pool.Conn[*Store]) error {
		return c.Exec(func(s *Store) error { return fn(s) })
	})
}

// InsertOne stores doc in coll and returns its id.
func (p *Pool) InsertOne(ctx context.Context, coll string, doc any) (id primitive.ObjectID, err error) {
	err = p.do(ctx, func(d docs) error {
		id, err = insertOne(d, coll, doc)
		return err
	})
	return id, err
}

// FindOne decodes the document with id into out.
func (p *Pool) FindOne(ctx context.Context, coll string, id primitive.ObjectID, out any) error {
	return p.do(ctx, func(d docs) error { return findOne(d, coll, id, out) })
}

// ReplaceOne replaces the document with id by doc.
func (p *Pool) ReplaceOne(ctx context.Context, coll string, id primitive.ObjectID, doc any) error {
	return p.do(ctx, func(d docs) error { return replaceOne(d, coll, id, doc) })
}

// DeleteOne removes the document with id.
func (p *Pool) DeleteOne(ctx context.Context, coll string, id primitive.ObjectID) error {
	return p.do(ctx, func(d docs) error { return deleteOne(d, coll, id) })
}

// Count returns the number of documents in coll.
func (p *Pool) Count(ctx context.Context, coll string) (n int, err error) {
	err = p.do(ctx, func(d docs) error {
		n = count(d, coll)
		return nil
	})
	return n, err
}

// ExportJSON renders coll as a JSON array ordered by id.
func (p *Pool) ExportJSON(ctx context.Context, coll string) (b []byte, err error) {
	err = p.do(ctx, func(d docs) error {
		b, err = exportJSON(d, coll)
		return err
	})
	return b, err
}

// Conn is a connection to a Store.
type Conn struct {
	c *pool.Conn[*Store]
}

// Mode implements storage.API.
func (c *Conn) Mode() storage.Mode { return storage.ModeConn }

// Kind implements storage.API.
func (c *Conn) Kind() storage.Kind { return storage.KindDocument }

// ID returns the connection id.
func (c *Conn) ID() string { return c.c.ID() }

// Close returns the connection to the pool, waiting for an open
// transaction to end first.
func (c *Conn) Close(ctx context.Context) error { return c.c.Close(ctx) }

// BeginTxn begins a transaction on this connection.
func (c *Conn) BeginTxn(ctx context.Context, opts storage.TxnOptions) (*Txn, error) {
	st := newStage(c.c.Backend())
	t, err := c.c.BeginTxn(ctx, opts, st)
	if err != nil {
		return nil, err
	}
	return &Txn{t: t, stage: st}, nil
}

// BeginTransaction implements storage.TxnBeginner.
func (c *Conn) BeginTransaction(ctx context.Context, opts storage.TxnOptions) (storage.Txn, error) {
	t, err := c.BeginTxn(ctx, opts)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (c *Conn) exec(fn func(docs) error) error {
	return c.c.Exec(func(s *Store) error { return fn(s) })
}

// InsertOne stores doc in coll and returns its id.
func (c *Conn) InsertOne(coll string, doc any) (id primitive.ObjectID, err error) {
	err = c.exec(func(d docs) error {
		id, err = insertOne(d, coll, doc)
		return err
	})
	return id, err
}

// FindOne decodes the document with id into out.
func (c *Conn) FindOne(coll string, id primitive.ObjectID, out any) error {
	return c.exec(func(d docs) error { return findOne(d, coll, id, out) })
}

// ReplaceOne replaces the document with id by doc.
func (c *Conn) ReplaceOne(coll string, id primitive.ObjectID, doc any) error {
	return c.exec(func(d docs) error { return replaceOne(d, coll, id, doc) })
}

// DeleteOne removes the document with id.
func (c *Conn) DeleteOne(coll string, id primitive.ObjectID) error {
	return c.exec(func(d docs) error { return deleteOne(d, coll, id) })
}

// Count returns the number of documents in coll.
func (c *Conn) Count(coll string) (n int, err error) {
	err = c.exec(func(d docs) error {
		n = count(d, coll)
		return nil
	})
	return n, err
}

// Txn is a document transaction. Writes are staged privately and
// replayed on the shared store by Commit.
type Txn struct {
	t     *pool.Txn
	stage *stage
}

// Mode implements storage.API.
func (t *Txn) Mode() storage.Mode { return storage.ModeTxn }

// Kind implements storage.API.
func (t *Txn) Kind() storage.Kind { return storage.KindDocument }

// ID returns the transaction id.
func (t *Txn) ID() string { return t.t.ID() }

// ConnID returns the id of the connection the transaction runs on.
func (t *Txn) ConnID() string { return t.t.ConnID() }

// State returns the lifecycle state.
func (t *Txn) State() pool.State { return t.t.State() }

// Commit replays the staged writes on the shared store.
func (t *Txn) Commit(ctx context.Context) error { return t.t.Commit(ctx) }

// Rollback discards the staged writes.
func (t *Txn) Rollback(ctx context.Context) error { return t.t.Rollback(ctx) }

// InsertOne stages doc for insertion into coll and returns its id.
func (t *Txn) InsertOne(coll string, doc any) (id primitive.ObjectID, err error) {
	err = t.t.Exec(true, func() error {
		id, err = insertOne(t.stage, coll, doc)
		return err
	})
	return id, err
}

// FindOne decodes the document with id, as seen by this transaction, into out.
func (t *Txn) FindOne(coll string, id primitive.ObjectID, out any) error {
	return t.t.Exec(false, func() error { return findOne(t.stage, coll, id, out) })
}

// ReplaceOne stages the replacement of the document with id.
func (t *Txn) ReplaceOne(coll string, id primitive.ObjectID, doc any) error {
	return t.t.Exec(true, func() error { return replaceOne(t.stage, coll, id, doc) })
}

// DeleteOne stages the removal of the document with id.
func (t *Txn) DeleteOne(coll string, id primitive.ObjectID) error {
	return t.t.Exec(true, func() error { return deleteOne(t.stage, coll, id) })
}

// Count returns the number of documents in coll visible to this transaction.
func (t *Txn) Count(coll string) (n int, err error) {
	err = t.t.Exec(false, func() error {
		n = count(t.stage, coll)
		return nil
	})
	return n, err
}
