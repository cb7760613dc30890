package pool

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/tidepool/pkg/errors"
	"github.com/ajitpratap0/tidepool/pkg/logger"
	"github.com/ajitpratap0/tidepool/pkg/metrics"
	"github.com/ajitpratap0/tidepool/pkg/storage"
)

// Pool is a bounded set of connections to a shared backing store.
// It is safe for concurrent use.
type Pool[B any] struct {
	backend        B
	kind           storage.Kind
	name           string
	maxCount       int
	acquireTimeout time.Duration
	logger         *zap.Logger
	metrics        *metrics.PoolMetrics

	mu      sync.Mutex
	idle    []*session[B]
	active  map[*session[B]]*Conn[B] // current checkout of each session
	waiters []*waiter[B]
	closed  bool
	closing *Latch

	created int64
	reused  int64
}

type waiter[B any] struct {
	promise  *Promise[*Conn[B]]
	keepOpen bool
	queuedAt time.Time
}

// Stats is a point-in-time snapshot of a pool.
type Stats struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	MaxCount int    `json:"max_count"`
	Idle     int    `json:"idle"`
	Active   int    `json:"active"`
	Waiting  int    `json:"waiting"`
	Created  int64  `json:"created"`
	Reused   int64  `json:"reused"`
	Closed   bool   `json:"closed"`
}

// New creates a pool of at most maxCount connections over backend.
func New[B any](backend B, kind storage.Kind, maxCount int, opts ...Option) (*Pool[B], error) {
	if maxCount < 1 {
		return nil, errors.Newf(errors.ErrorTypeValidation, "max count must be at least 1, got %d", maxCount).
			WithDetail("kind", kind.String())
	}

	o := options{name: kind.String()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get()
	}

	return &Pool[B]{
		backend:        backend,
		kind:           kind,
		name:           o.name,
		maxCount:       maxCount,
		acquireTimeout: o.acquireTimeout,
		logger: o.logger.With(
			zap.String("component", "pool"),
			zap.String("pool", o.name),
			zap.String("kind", kind.String()),
		),
		metrics: o.metrics,
		active:  make(map[*session[B]]*Conn[B], maxCount),
	}, nil
}

// Mode implements storage.API.
func (p *Pool[B]) Mode() storage.Mode { return storage.ModePool }

// Kind implements storage.API.
func (p *Pool[B]) Kind() storage.Kind { return p.kind }

// Name returns the pool name.
func (p *Pool[B]) Name() string { return p.name }

// Backend returns the shared backing store.
func (p *Pool[B]) Backend() B { return p.backend }

// MaxCount returns the capacity bound.
func (p *Pool[B]) MaxCount() int { return p.maxCount }

// Conn checks out a connection that stays open until the caller closes it.
//
// An idle connection is reused when available, a new one is created while
// under capacity, and otherwise the request queues behind earlier ones. If
// ctx ends while queued the request is withdrawn and an error of type
// context_canceled is returned; a connection granted at the same moment is
// returned to the pool rather than leaked.
func (p *Pool[B]) Conn(ctx context.Context) (*Conn[B], error) {
	return p.acquire(ctx, true)
}

// Do runs fn on a connection checked out for this call only. The
// connection is released when fn returns, whatever the outcome. A
// transaction fn leaves open on it holds the release until it ends.
func (p *Pool[B]) Do(ctx context.Context, fn func(*Conn[B]) error) error {
	c, err := p.acquire(ctx, false)
	if err != nil {
		return err
	}
	defer c.release()
	return fn(c)
}

// BeginTxn checks out a connection and begins a transaction on it with
// the stage built by newStage. The connection goes back to the pool when
// the transaction commits or rolls back.
func (p *Pool[B]) BeginTxn(ctx context.Context, opts storage.TxnOptions, newStage func(B) Stage) (*Txn, error) {
	c, err := p.acquire(ctx, false)
	if err != nil {
		return nil, err
	}
	t, err := c.BeginTxn(ctx, opts, newStage(c.s.backend))
	if err != nil {
		c.release()
		return nil, err
	}
	return t, nil
}

func (p *Pool[B]) acquire(ctx context.Context, keepOpen bool) (*Conn[B], error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, p.closedError()
	}

	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		c := p.checkout(s, keepOpen)
		p.active[s] = c
		p.reused++
		p.observe()
		p.mu.Unlock()

		p.metrics.Acquired(metrics.SourceIdle)
		p.logger.Debug("reusing connection",
			zap.String("conn_id", s.id),
			zap.Bool("keep_open", keepOpen))
		return c, nil
	}

	if len(p.active) < p.maxCount {
		s := newSession(p)
		c := p.checkout(s, keepOpen)
		p.active[s] = c
		p.created++
		active := len(p.active)
		p.observe()
		p.mu.Unlock()

		p.metrics.Acquired(metrics.SourceCreated)
		p.logger.Debug("created new connection",
			zap.String("conn_id", s.id),
			zap.Int("active", active))
		return c, nil
	}

	w := &waiter[B]{
		promise:  NewPromise[*Conn[B]](),
		keepOpen: keepOpen,
		queuedAt: time.Now(),
	}
	p.waiters = append(p.waiters, w)
	queued := len(p.waiters)
	p.observe()
	p.mu.Unlock()

	p.logger.Debug("queued connection request", zap.Int("waiting", queued))

	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	select {
	case <-w.promise.Done():
		p.metrics.Waited(time.Since(w.queuedAt))
		return w.promise.Wait(context.Background())
	case <-ctx.Done():
	}

	p.metrics.Waited(time.Since(w.queuedAt))
	p.metrics.WaitCanceled()
	cause := errors.Wrap(ctx.Err(), errors.ErrorTypeContextCanceled, "canceled while waiting for connection").
		WithDetail("pool", p.name)

	p.mu.Lock()
	removed := p.removeWaiter(w)
	p.observe()
	p.mu.Unlock()

	if removed {
		w.promise.Reject(cause)
		p.logger.Debug("connection request canceled", zap.Error(ctx.Err()))
		return nil, cause
	}

	// Served concurrently with the cancellation: hand the connection back.
	if c, err := w.promise.Wait(context.Background()); err == nil {
		p.logger.Debug("returning connection granted to canceled request", zap.String("conn_id", c.ID()))
		c.release()
	}
	return nil, cause
}

// removeWaiter drops w from the queue. Callers hold p.mu.
func (p *Pool[B]) removeWaiter(w *waiter[B]) bool {
	for i, q := range p.waiters {
		if q == w {
			copy(p.waiters[i:], p.waiters[i+1:])
			p.waiters[len(p.waiters)-1] = nil
			p.waiters = p.waiters[:len(p.waiters)-1]
			return true
		}
	}
	return false
}

// release takes back a connection its holder has closed. The longest
// waiter gets it directly; otherwise it goes idle, or is discarded when
// the pool is closed. A Conn that is no longer the session's current
// checkout is ignored.
func (p *Pool[B]) release(c *Conn[B]) {
	s := c.s
	p.mu.Lock()
	if cur, ok := p.active[s]; !ok || cur != c {
		p.mu.Unlock()
		return
	}

	if p.closed {
		delete(p.active, s)
		var latch *Latch
		if len(p.active) == 0 {
			latch = p.closing
		}
		p.observe()
		p.mu.Unlock()

		p.logger.Debug("discarded connection", zap.String("conn_id", s.id))
		if latch != nil {
			latch.Signal()
		}
		return
	}

	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters[0] = nil
		p.waiters = p.waiters[1:]
		next := p.checkout(s, w.keepOpen)
		p.active[s] = next
		p.reused++
		p.observe()
		p.mu.Unlock()

		p.metrics.Acquired(metrics.SourceHandoff)
		p.logger.Debug("handed connection to waiter", zap.String("conn_id", s.id))
		w.promise.Resolve(next)
		return
	}

	delete(p.active, s)
	p.idle = append(p.idle, s)
	p.observe()
	p.mu.Unlock()

	p.logger.Debug("returned connection to pool", zap.String("conn_id", s.id))
}

// Close shuts the pool down. Idle connections are dropped, queued requests
// fail with pool_closed, and every checked-out connection is asked to
// close; Close returns once all of them are back, or when ctx ends. Calling
// Close again waits for the same shutdown.
func (p *Pool[B]) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closing != nil {
		latch := p.closing
		p.mu.Unlock()
		return latch.Wait(ctx)
	}

	p.closed = true
	p.closing = NewLatch()
	latch := p.closing
	for i := range p.idle {
		p.idle[i] = nil
	}
	p.idle = nil
	waiters := p.waiters
	p.waiters = nil
	active := make([]*Conn[B], 0, len(p.active))
	for _, c := range p.active {
		active = append(active, c)
	}
	if len(active) == 0 {
		latch.Signal()
	}
	p.observe()
	p.mu.Unlock()

	for _, w := range waiters {
		w.promise.Reject(p.closedError())
	}

	var g errgroup.Group
	for _, c := range active {
		c := c
		g.Go(func() error { return c.Close(ctx) })
	}
	closeErr := g.Wait()

	if err := latch.Wait(ctx); err != nil {
		return err
	}

	p.logger.Info("connection pool closed",
		zap.Int("closed_active", len(active)),
		zap.Int("rejected_waiters", len(waiters)))
	return closeErr
}

// Closed reports whether Close has been called.
func (p *Pool[B]) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Stats returns a snapshot of the pool.
func (p *Pool[B]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Name:     p.name,
		Kind:     p.kind.String(),
		MaxCount: p.maxCount,
		Idle:     len(p.idle),
		Active:   len(p.active),
		Waiting:  len(p.waiters),
		Created:  p.created,
		Reused:   p.reused,
		Closed:   p.closed,
	}
}

func (p *Pool[B]) closedError() error {
	return errors.New(errors.ErrorTypePoolClosed, "pool is closed").
		WithDetail("pool", p.name)
}

// observe publishes occupancy gauges. Callers hold p.mu.
func (p *Pool[B]) observe() {
	p.metrics.SetOccupancy(len(p.idle), len(p.active), len(p.waiters))
}
