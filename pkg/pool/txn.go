package pool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tidepool/pkg/errors"
	"github.com/ajitpratap0/tidepool/pkg/metrics"
	"github.com/ajitpratap0/tidepool/pkg/storage"
)

// Stage is the store-specific part of a transaction: a private view of the
// shared store plus the ordered list of operations buffered against it.
//
// Txn serializes every call into the stage, so implementations need no
// locking of their own beyond what the shared store requires.
type Stage interface {
	// Apply replays the buffered operations, in order, on the shared store.
	Apply()
	// Discard drops the buffered operations without touching the shared store.
	Discard()
}

// State is the lifecycle state of a transaction.
type State int

const (
	StateOpen State = iota
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

type txnOwner interface {
	txnDone(t *Txn)
}

// Txn is an open transaction bound to exactly one connection. It moves
// from open to committed or rolled back exactly once; every call after
// that fails with transaction_complete.
type Txn struct {
	id        string
	connID    string
	kind      storage.Kind
	opts      storage.TxnOptions
	owner     txnOwner
	stage     Stage
	logger    *zap.Logger
	metrics   *metrics.PoolMetrics
	startedAt time.Time

	mu        sync.Mutex
	state     State
	stopWatch func() bool
}

func newTxn(owner txnOwner, connID string, kind storage.Kind, opts storage.TxnOptions, stage Stage, l *zap.Logger, m *metrics.PoolMetrics) *Txn {
	id := uuid.NewString()
	return &Txn{
		id:        id,
		connID:    connID,
		kind:      kind,
		opts:      opts,
		owner:     owner,
		stage:     stage,
		logger:    l.With(zap.String("txn_id", id)),
		metrics:   m,
		startedAt: time.Now(),
	}
}

// watch rolls the transaction back if ctx ends while it is still open.
func (t *Txn) watch(ctx context.Context) {
	if ctx.Done() == nil {
		return
	}
	stop := context.AfterFunc(ctx, func() {
		if t.finish(StateRolledBack, metrics.OutcomeCanceled) == nil {
			t.logger.Debug("transaction rolled back on context end", zap.Error(ctx.Err()))
		}
	})

	t.mu.Lock()
	if t.state != StateOpen {
		t.mu.Unlock()
		stop()
		return
	}
	t.stopWatch = stop
	t.mu.Unlock()
}

// Mode implements storage.API.
func (t *Txn) Mode() storage.Mode { return storage.ModeTxn }

// Kind implements storage.API.
func (t *Txn) Kind() storage.Kind { return t.kind }

// ID returns the transaction id.
func (t *Txn) ID() string { return t.id }

// ConnID returns the id of the connection the transaction runs on.
func (t *Txn) ConnID() string { return t.connID }

// Options returns the options the transaction was begun with.
func (t *Txn) Options() storage.TxnOptions { return t.opts }

// ReadOnly reports whether mutating calls are rejected.
func (t *Txn) ReadOnly() bool { return t.opts.ReadOnly }

// Stage returns the store-specific stage.
func (t *Txn) Stage() Stage { return t.stage }

// State returns the current lifecycle state.
func (t *Txn) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done reports whether the transaction has committed or rolled back.
func (t *Txn) Done() bool {
	return t.State() != StateOpen
}

// Exec runs fn against the stage while the transaction is open. mutating
// calls fail in a read-only transaction before fn runs.
func (t *Txn) Exec(mutating bool, fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateOpen {
		return t.completeError()
	}
	if mutating && t.opts.ReadOnly {
		return errors.New(errors.ErrorTypeTransactionReadOnly, "mutating call in read-only transaction").
			WithDetail("txn_id", t.id)
	}
	return fn()
}

// Commit applies the buffered operations to the shared store.
func (t *Txn) Commit(ctx context.Context) error {
	return t.finish(StateCommitted, metrics.OutcomeCommit)
}

// Rollback discards the buffered operations.
func (t *Txn) Rollback(ctx context.Context) error {
	return t.finish(StateRolledBack, metrics.OutcomeRollback)
}

func (t *Txn) finish(to State, outcome string) error {
	t.mu.Lock()
	if t.state != StateOpen {
		t.mu.Unlock()
		return t.completeError()
	}
	t.state = to
	if to == StateCommitted {
		t.stage.Apply()
	} else {
		t.stage.Discard()
	}
	stop := t.stopWatch
	t.stopWatch = nil
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
	t.metrics.TxnFinished(outcome)
	t.logger.Debug("transaction finished",
		zap.String("outcome", outcome),
		zap.Duration("duration", time.Since(t.startedAt)))

	t.owner.txnDone(t)
	return nil
}

// completeError builds the transaction_complete error. Callers hold t.mu.
func (t *Txn) completeError() error {
	return errors.Newf(errors.ErrorTypeTransactionComplete, "transaction already %s", t.state).
		WithDetail("txn_id", t.id)
}
