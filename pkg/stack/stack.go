// Package stack is the in-memory stack reference store.
//
// Pool, Conn and Txn all expose Push, Pop, Peek and Len. Pop and Peek on
// an empty stack fail with an error of type empty.
//
// Transactions accept storage.LevelDefault and storage.LevelSerializable
// only; any other isolation level fails with an error of type capability
// before a connection is taken.
package stack

import (
	"context"

	"github.com/ajitpratap0/tidepool/pkg/errors"
	"github.com/ajitpratap0/tidepool/pkg/pool"
	"github.com/ajitpratap0/tidepool/pkg/storage"
)

var (
	_ storage.TxnBeginner = (*Pool)(nil)
	_ storage.TxnBeginner = (*Conn)(nil)
	_ storage.Txn         = (*Txn)(nil)
)

func checkOptions(opts storage.TxnOptions) error {
	switch opts.IsolationLevel {
	case storage.LevelDefault, storage.LevelSerializable:
		return nil
	}
	return errors.Newf(errors.ErrorTypeCapability, "stack store does not support isolation level %s", opts.IsolationLevel).
		WithDetail("kind", storage.KindStack.String())
}

func emptyError(op string) error {
	return errors.Newf(errors.ErrorTypeEmpty, "%s on empty stack", op)
}

// Pool is a bounded pool of connections to a Store.
type Pool struct {
	p *pool.Pool[*Store]
}

// NewPool creates a pool of at most maxCount connections to store.
func NewPool(store *Store, maxCount int, opts ...pool.Option) (*Pool, error) {
	p, err := pool.New(store, storage.KindStack, maxCount, opts...)
	if err != nil {
		return nil, err
	}
	return &Pool{p: p}, nil
}

// Mode implements storage.API.
func (p *Pool) Mode() storage.Mode { return storage.ModePool }

// Kind implements storage.API.
func (p *Pool) Kind() storage.Kind { return storage.KindStack }

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
	if err := checkOptions(opts); err != nil {
		return nil, err
	}
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

// Push adds v on top of the stack.
func (p *Pool) Push(ctx context.Context, v any) error {
	return p.p.Do(ctx, func(c *pool.Conn[*Store]) error {
		return (&Conn{c: c}).Push(v)
	})
}

// Pop removes and returns the top item.
func (p *Pool) Pop(ctx context.Context) (v any, err error) {
	err = p.p.Do(ctx, func(c *pool.Conn[*Store]) error {
		v, err = (&Conn{c: c}).Pop()
		return err
	})
	return v, err
}

// Peek returns the top item without removing it.
func (p *Pool) Peek(ctx context.Context) (v any, err error) {
	err = p.p.Do(ctx, func(c *pool.Conn[*Store]) error {
		v, err = (&Conn{c: c}).Peek()
		return err
	})
	return v, err
}

// Len returns the number of items.
func (p *Pool) Len(ctx context.Context) (n int, err error) {
	err = p.p.Do(ctx, func(c *pool.Conn[*Store]) error {
		n, err = (&Conn{c: c}).Len()
		return err
	})
	return n, err
}

// Conn is a connection to a Store.
type Conn struct {
	c *pool.Conn[*Store]
}

// Mode implements storage.API.
func (c *Conn) Mode() storage.Mode { return storage.ModeConn }

// Kind implements storage.API.
func (c *Conn) Kind() storage.Kind { return storage.KindStack }

// ID returns the connection id.
func (c *Conn) ID() string { return c.c.ID() }

// Close returns the connection to the pool, waiting for an open
// transaction to end first.
func (c *Conn) Close(ctx context.Context) error { return c.c.Close(ctx) }

// BeginTxn begins a transaction on this connection.
func (c *Conn) BeginTxn(ctx context.Context, opts storage.TxnOptions) (*Txn, error) {
	if err := checkOptions(opts); err != nil {
		return nil, err
	}
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

// Push adds v on top of the stack.
func (c *Conn) Push(v any) error {
	return c.c.Exec(func(s *Store) error {
		s.push(v)
		return nil
	})
}

// Pop removes and returns the top item.
func (c *Conn) Pop() (v any, err error) {
	err = c.c.Exec(func(s *Store) error {
		var ok bool
		if v, ok = s.pop(); !ok {
			return emptyError("pop")
		}
		return nil
	})
	return v, err
}

// Peek returns the top item without removing it.
func (c *Conn) Peek() (v any, err error) {
	err = c.c.Exec(func(s *Store) error {
		var ok bool
		if v, ok = s.at(0); !ok {
			return emptyError("peek")
		}
		return nil
	})
	return v, err
}

// Len returns the number of items.
func (c *Conn) Len() (n int, err error) {
	err = c.c.Exec(func(s *Store) error {
		n = s.Len()
		return nil
	})
	return n, err
}

// Txn is a stack transaction. Pushes and pops are private until Commit,
// which replays them in order on the shared stack.
type Txn struct {
	t     *pool.Txn
	stage *stage
}

// Mode implements storage.API.
func (t *Txn) Mode() storage.Mode { return storage.ModeTxn }

// Kind implements storage.API.
func (t *Txn) Kind() storage.Kind { return storage.KindStack }

// ID returns the transaction id.
func (t *Txn) ID() string { return t.t.ID() }

// ConnID returns the id of the connection the transaction runs on.
func (t *Txn) ConnID() string { return t.t.ConnID() }

// State returns the lifecycle state.
func (t *Txn) State() pool.State { return t.t.State() }

// Commit replays the staged pushes and pops on the shared stack.
func (t *Txn) Commit(ctx context.Context) error { return t.t.Commit(ctx) }

// Rollback discards the staged pushes and pops.
func (t *Txn) Rollback(ctx context.Context) error { return t.t.Rollback(ctx) }

// Push stages v on top of the transaction's view.
func (t *Txn) Push(v any) error {
	return t.t.Exec(true, func() error {
		t.stage.push(v)
		return nil
	})
}

// Pop stages the removal of the top item and returns it.
func (t *Txn) Pop() (v any, err error) {
	err = t.t.Exec(true, func() error {
		var ok bool
		if v, ok = t.stage.pop(); !ok {
			return emptyError("pop")
		}
		return nil
	})
	return v, err
}

// Peek returns the top item of the transaction's view.
func (t *Txn) Peek() (v any, err error) {
	err = t.t.Exec(false, func() error {
		var ok bool
		if v, ok = t.stage.peek(); !ok {
			return emptyError("peek")
		}
		return nil
	})
	return v, err
}

// Len returns the size of the transaction's view.
func (t *Txn) Len() (n int, err error) {
	err = t.t.Exec(false, func() error {
		n = t.stage.len()
		return nil
	})
	return n, err
}
