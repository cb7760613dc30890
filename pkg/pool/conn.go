package pool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tidepool/pkg/errors"
	"github.com/ajitpratap0/tidepool/pkg/storage"
)

// session is a pooled connection. The pool hands it out wrapped in a new
// Conn for every checkout.
type session[B any] struct {
	id       string
	backend  B
	logger   *zap.Logger
	useCount int64 // guarded by the pool's mu
}

func newSession[B any](p *Pool[B]) *session[B] {
	id := uuid.NewString()
	return &session[B]{
		id:      id,
		backend: p.backend,
		logger:  p.logger.With(zap.String("conn_id", id)),
	}
}

// Conn is one checkout of a pooled connection. Operations through Exec
// apply to the shared store immediately; operations through a Txn begun on
// the connection are staged until commit.
//
// A connection holds at most one open transaction. Once closed a Conn stays
// closed: the pool gives the next holder a fresh Conn over the same
// session, so calls on the old one fail and a repeated Close does nothing.
type Conn[B any] struct {
	s      *session[B]
	pool   *Pool[B]
	logger *zap.Logger
	use    int64

	mu       sync.Mutex
	keepOpen bool
	closed   bool
	txn      *Txn
	closing  *Latch
	lastUsed time.Time
}

// checkout wraps s for a new holder. The pool calls it with p.mu held.
func (p *Pool[B]) checkout(s *session[B], keepOpen bool) *Conn[B] {
	s.useCount++
	return &Conn[B]{
		s:        s,
		pool:     p,
		logger:   s.logger,
		use:      s.useCount,
		keepOpen: keepOpen,
		lastUsed: time.Now(),
	}
}

// Mode implements storage.API.
func (c *Conn[B]) Mode() storage.Mode { return storage.ModeConn }

// Kind implements storage.API.
func (c *Conn[B]) Kind() storage.Kind { return c.pool.kind }

// ID returns the connection id.
func (c *Conn[B]) ID() string { return c.s.id }

// Backend returns the shared backing store.
func (c *Conn[B]) Backend() B { return c.s.backend }

// Closed reports whether the connection has been closed by its holder.
func (c *Conn[B]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// InTxn reports whether a transaction is open on the connection.
func (c *Conn[B]) InTxn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txn != nil
}

// KeepOpen reports whether the holder manages the connection lifecycle
// (true) or the connection releases itself after a scoped operation.
func (c *Conn[B]) KeepOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keepOpen
}

// UseCount returns how many times the underlying connection had been
// checked out, this checkout included.
func (c *Conn[B]) UseCount() int64 { return c.use }

// Exec runs fn against the shared backing store.
func (c *Conn[B]) Exec(fn func(B) error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.closedError()
	}
	c.lastUsed = time.Now()
	c.mu.Unlock()

	return fn(c.s.backend)
}

// BeginTxn opens a transaction on the connection with the given stage.
// If ctx ends before the transaction does, it is rolled back.
func (c *Conn[B]) BeginTxn(ctx context.Context, opts storage.TxnOptions, stage Stage) (*Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeContextCanceled, "context ended before transaction began")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, c.closedError()
	}
	if c.txn != nil {
		c.mu.Unlock()
		return nil, errors.New(errors.ErrorTypeTransactionInProgress, "connection already has an open transaction").
			WithDetail("conn_id", c.s.id).
			WithDetail("txn_id", c.txn.id)
	}
	t := newTxn(c, c.s.id, c.pool.kind, opts, stage, c.logger, c.pool.metrics)
	c.txn = t
	c.lastUsed = time.Now()
	c.mu.Unlock()

	t.watch(ctx)
	t.logger.Debug("transaction begun",
		zap.String("isolation", opts.IsolationLevel.String()),
		zap.Bool("read_only", opts.ReadOnly))
	return t, nil
}

// Close returns the connection to the pool. With a transaction open, the
// return is deferred until the transaction commits or rolls back and Close
// blocks until then, or until ctx ends. Closing twice is a no-op, also
// after the pool has handed the connection to someone else.
func (c *Conn[B]) Close(ctx context.Context) error {
	latch := c.close()
	if latch == nil {
		return nil
	}
	return latch.Wait(ctx)
}

// release closes the connection without waiting for an open transaction.
func (c *Conn[B]) release() {
	c.close()
}

// close marks the connection closed and either releases it now or, with a
// transaction open, returns the latch signaled when it is released.
func (c *Conn[B]) close() *Latch {
	c.mu.Lock()
	if c.closed {
		latch := c.closing
		c.mu.Unlock()
		return latch
	}
	c.closed = true

	if c.txn != nil {
		if c.closing == nil {
			c.closing = NewLatch()
		}
		latch, txnID := c.closing, c.txn.id
		c.mu.Unlock()
		c.logger.Debug("close deferred until transaction ends", zap.String("txn_id", txnID))
		return latch
	}
	c.mu.Unlock()

	c.pool.release(c)
	return nil
}

// txnDone is called once by t when it commits or rolls back.
func (c *Conn[B]) txnDone(t *Txn) {
	c.mu.Lock()
	if c.txn != t {
		c.mu.Unlock()
		return
	}
	c.txn = nil

	if latch := c.closing; latch != nil {
		c.mu.Unlock()
		c.pool.release(c)
		latch.Signal()
		return
	}

	if !c.keepOpen && !c.closed {
		c.closed = true
		c.mu.Unlock()
		c.pool.release(c)
		return
	}
	c.mu.Unlock()
}

func (c *Conn[B]) closedError() error {
	return errors.New(errors.ErrorTypeConnectionClosed, "connection is closed").
		WithDetail("conn_id", c.s.id)
}
