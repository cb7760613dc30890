// Package kv is the in-memory key-value reference store.
//
// The same verbs exist at three levels:
//
//   - Pool: each call checks out a connection and releases it afterwards.
//   - Conn: calls apply directly to the shared store; the connection stays open.
//   - Txn: calls are staged privately and reach the shared store on Commit.
//
// Every isolation level is accepted and ignored: transactions only keep
// their writes private until commit.
package kv

import (
	"context"

	"github.com/ajitpratap0/tidepool/pkg/pool"
	"github.com/ajitpratap0/tidepool/pkg/storage"
)

// Pool is a bounded pool of connections to a Store.
type Pool struct {
	p *pool.Pool[*Store]
}

var (
	_ storage.TxnBeginner = (*Pool)(nil)
	_ storage.TxnBeginner = (*Conn)(nil)
	_ storage.Txn         = (*Txn)(nil)
)

// NewPool creates a pool of at most maxCount connections to store.
func NewPool(store *Store, maxCount int, opts ...pool.Option) (*Pool, error) {
	p, err := pool.New(store, storage.KindKeyValue, maxCount, opts...)
	if err != nil {
		return nil, err
	}
	return &Pool{p: p}, nil
}

// Mode implements storage.API.
func (p *Pool) Mode() storage.Mode { return storage.ModePool }

// Kind implements storage.API.
func (p *Pool) Kind() storage.Kind { return storage.KindKeyValue }

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

// Get returns the value stored under key.
func (p *Pool) Get(ctx context.Context, key string) (value any, ok bool, err error) {
	err = p.p.Do(ctx, func(c *pool.Conn[*Store]) error {
		return c.Exec(func(s *Store) error {
			value, ok = s.get(key)
			return nil
		})
	})
	return value, ok, err
}

// Has reports whether key is present.
func (p *Pool) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := p.Get(ctx, key)
	return ok, err
}

// Set stores value under key.
func (p *Pool) Set(ctx context.Context, key string, value any) error {
	return p.p.Do(ctx, func(c *pool.Conn[*Store]) error {
		return c.Exec(func(s *Store) error {
			s.set(key, value)
			return nil
		})
	})
}

// Delete removes key and reports whether it was present.
func (p *Pool) Delete(ctx context.Context, key string) (existed bool, err error) {
	err = p.p.Do(ctx, func(c *pool.Conn[*Store]) error {
		return c.Exec(func(s *Store) error {
			existed = s.delete(key)
			return nil
		})
	})
	return existed, err
}

// Keys returns every key in sorted order.
func (p *Pool) Keys(ctx context.Context) (keys []string, err error) {
	err = p.p.Do(ctx, func(c *pool.Conn[*Store]) error {
		return c.Exec(func(s *Store) error {
			keys = s.keys()
			return nil
		})
	})
	return keys, err
}

// Conn is a connection to a Store. Its calls are visible to every other
// connection immediately.
type Conn struct {
	c *pool.Conn[*Store]
}

// Mode implements storage.API.
func (c *Conn) Mode() storage.Mode { return storage.ModeConn }

// Kind implements storage.API.
func (c *Conn) Kind() storage.Kind { return storage.KindKeyValue }

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

// Get returns the value stored under key.
func (c *Conn) Get(key string) (value any, ok bool, err error) {
	err = c.c.Exec(func(s *Store) error {
		value, ok = s.get(key)
		return nil
	})
	return value, ok, err
}

// Set stores value under key.
func (c *Conn) Set(key string, value any) error {
	return c.c.Exec(func(s *Store) error {
		s.set(key, value)
		return nil
	})
}

// Delete removes key and reports whether it was present.
func (c *Conn) Delete(key string) (existed bool, err error) {
	err = c.c.Exec(func(s *Store) error {
		existed = s.delete(key)
		return nil
	})
	return existed, err
}

// Keys returns every key in sorted order.
func (c *Conn) Keys() (keys []string, err error) {
	err = c.c.Exec(func(s *Store) error {
		keys = s.keys()
		return nil
	})
	return keys, err
}

// Txn is a key-value transaction. Reads see the transaction's own writes;
// nothing reaches the shared store before Commit.
type Txn struct {
	t     *pool.Txn
	stage *stage
}

// Mode implements storage.API.
func (t *Txn) Mode() storage.Mode { return storage.ModeTxn }

// Kind implements storage.API.
func (t *Txn) Kind() storage.Kind { return storage.KindKeyValue }

// ID returns the transaction id.
func (t *Txn) ID() string { return t.t.ID() }

// ConnID returns the id of the connection the transaction runs on.
func (t *Txn) ConnID() string { return t.t.ConnID() }

// State returns the lifecycle state.
func (t *Txn) State() pool.State { return t.t.State() }

// Commit applies the staged writes to the shared store.
func (t *Txn) Commit(ctx context.Context) error { return t.t.Commit(ctx) }

// Rollback discards the staged writes.
func (t *Txn) Rollback(ctx context.Context) error { return t.t.Rollback(ctx) }

// Get returns the value under key as seen by this transaction.
func (t *Txn) Get(key string) (value any, ok bool, err error) {
	err = t.t.Exec(false, func() error {
		value, ok = t.stage.get(key)
		return nil
	})
	return value, ok, err
}

// Set stages value under key.
func (t *Txn) Set(key string, value any) error {
	return t.t.Exec(true, func() error {
		t.stage.set(key, value)
		return nil
	})
}

// Delete stages the removal of key and reports whether it was visible to
// this transaction.
func (t *Txn) Delete(key string) (existed bool, err error) {
	err = t.t.Exec(true, func() error {
		existed = t.stage.delete(key)
		return nil
	})
	return existed, err
}

// Keys returns every key visible to this transaction in sorted order.
func (t *Txn) Keys() (keys []string, err error) {
	err = t.t.Exec(false, func() error {
		keys = t.stage.keys()
		return nil
	})
	return keys, err
}
