package storage_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/tidepool/pkg/errors"
	"github.com/ajitpratap0/tidepool/pkg/logger"
	"github.com/ajitpratap0/tidepool/pkg/storage"
)

type fakeTxn struct {
	commits     int
	rollbacks   int
	commitErr   error
	rollbackErr error
}

func (t *fakeTxn) Mode() storage.Mode { return storage.ModeTxn }
func (t *fakeTxn) Kind() storage.Kind { return storage.CustomKind("fake") }

func (t *fakeTxn) Commit(context.Context) error {
	t.commits++
	return t.commitErr
}

func (t *fakeTxn) Rollback(context.Context) error {
	t.rollbacks++
	return t.rollbackErr
}

// identifiedTxn reports ids the way store transactions do.
type identifiedTxn struct {
	fakeTxn
}

func (*identifiedTxn) ID() string { return "txn-1" }
func (*identifiedTxn) ConnID() string { return "conn-1" }

type identifiedBeginner struct {
	txn *identifiedTxn
}

func (b *identifiedBeginner) Mode() storage.Mode { return storage.ModePool }
func (b *identifiedBeginner) Kind() storage.Kind { return storage.CustomKind("fake") }

func (b *identifiedBeginner) BeginTransaction(context.Context, storage.TxnOptions) (storage.Txn, error) {
	return b.txn, nil
}

type fakeBeginner struct {
	txn      *fakeTxn
	begun    int
	lastOpts storage.TxnOptions
	beginErr error
}

func (b *fakeBeginner) Mode() storage.Mode { return storage.ModePool }
func (b *fakeBeginner) Kind() storage.Kind { return storage.CustomKind("fake") }

func (b *fakeBeginner) BeginTransaction(_ context.Context, opts storage.TxnOptions) (storage.Txn, error) {
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	b.begun++
	b.lastOpts = opts
	return b.txn, nil
}

// readOnlyAPI is a storage API that cannot begin transactions.
type readOnlyAPI struct{}

func (readOnlyAPI) Mode() storage.Mode { return storage.ModeConn }
func (readOnlyAPI) Kind() storage.Kind { return storage.KindGraph }

func TestRunTransactionRequiresStorageAPI(t *testing.T) {
	called := false
	err := storage.RunTransaction(context.Background(), func(context.Context, storage.Txn) error {
		called = true
		return nil
	})
	assert.True(t, errors.IsType(err, errors.ErrorTypeNoStorageAPI))
	assert.False(t, called)
}

func TestRunTransactionRequiresCallback(t *testing.T) {
	ctx := storage.WithAPI(context.Background(), &fakeBeginner{txn: &fakeTxn{}})
	err := storage.RunTransactionWithOptions(ctx, storage.TxnOptions{ReadOnly: true}, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMissingCallback))
}

func TestRunTransactionRequiresBeginner(t *testing.T) {
	ctx := storage.WithAPI(context.Background(), readOnlyAPI{})
	err := storage.RunTransaction(ctx, func(context.Context, storage.Txn) error { return nil })
	assert.True(t, errors.IsType(err, errors.ErrorTypeCapability))
}

func TestRunTransactionCommitsOnSuccess(t *testing.T) {
	b := &fakeBeginner{txn: &fakeTxn{}}
	ctx := storage.WithAPI(context.Background(), b)
	opts := storage.TxnOptions{IsolationLevel: storage.LevelSnapshot}

	err := storage.RunTransactionWithOptions(ctx, opts, func(ctx context.Context, txn storage.Txn) error {
		bound, ok := storage.TxnFrom(ctx)
		require.True(t, ok)
		assert.Same(t, b.txn, bound)
		assert.Same(t, b.txn, txn)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, b.txn.commits)
	assert.Equal(t, 0, b.txn.rollbacks)
	assert.Equal(t, opts, b.lastOpts)

	_, ok := storage.TxnFrom(ctx)
	assert.False(t, ok, "the caller's context is not modified")
}

func TestRunTransactionReturnsCommitError(t *testing.T) {
	commitErr := stderrors.New("commit failed")
	b := &fakeBeginner{txn: &fakeTxn{commitErr: commitErr}}
	ctx := storage.WithAPI(context.Background(), b)

	err := storage.RunTransaction(ctx, func(context.Context, storage.Txn) error { return nil })
	assert.Same(t, commitErr, err)
}

func TestRunTransactionReturnsBeginError(t *testing.T) {
	beginErr := errors.New(errors.ErrorTypePoolClosed, "pool is closed")
	b := &fakeBeginner{beginErr: beginErr}
	ctx := storage.WithAPI(context.Background(), b)

	called := false
	err := storage.RunTransaction(ctx, func(context.Context, storage.Txn) error {
		called = true
		return nil
	})
	assert.True(t, errors.IsType(err, errors.ErrorTypePoolClosed))
	assert.False(t, called)
}

func TestRunTransactionRollsBackAndReturnsOriginalError(t *testing.T) {
	b := &fakeBeginner{txn: &fakeTxn{}}
	ctx := storage.WithAPI(context.Background(), b)
	boom := stderrors.New("boom")

	err := storage.RunTransaction(ctx, func(context.Context, storage.Txn) error { return boom })
	assert.Same(t, boom, err)
	assert.Equal(t, 0, b.txn.commits)
	assert.Equal(t, 1, b.txn.rollbacks)
}

// A failing rollback hides the callback's error: the caller sees the
// rollback error only. Tests asserting on the callback error must account
// for this.
func TestRunTransactionRollbackErrorSupersedesOriginal(t *testing.T) {
	rbErr := stderrors.New("rollback failed")
	b := &fakeBeginner{txn: &fakeTxn{rollbackErr: rbErr}}
	ctx := storage.WithAPI(context.Background(), b)
	boom := stderrors.New("boom")

	err := storage.RunTransaction(ctx, func(context.Context, storage.Txn) error { return boom })
	assert.Same(t, rbErr, err)
	assert.False(t, stderrors.Is(err, boom))
}

func TestRunTransactionRollsBackOnPanic(t *testing.T) {
	b := &fakeBeginner{txn: &fakeTxn{}}
	ctx := storage.WithAPI(context.Background(), b)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = storage.RunTransaction(ctx, func(context.Context, storage.Txn) error { panic("kaboom") })
	})
	assert.Equal(t, 1, b.txn.rollbacks)
	assert.Equal(t, 0, b.txn.commits)
}

func TestNestedRunTransactionReusesTxn(t *testing.T) {
	b := &fakeBeginner{txn: &fakeTxn{}}
	ctx := storage.WithAPI(context.Background(), b)

	var outerCtx, innerCtx context.Context
	var innerTxn storage.Txn
	err := storage.RunTransaction(ctx, func(ctx context.Context, txn storage.Txn) error {
		outerCtx = ctx
		return storage.RunTransaction(ctx, func(ctx context.Context, txn storage.Txn) error {
			innerCtx = ctx
			innerTxn = txn
			return nil
		})
	})
	require.NoError(t, err)

	assert.Equal(t, 1, b.begun)
	assert.Same(t, b.txn, innerTxn)
	assert.Equal(t, outerCtx, innerCtx, "nested call receives the same context")
	assert.Equal(t, 1, b.txn.commits, "only the outermost call commits")
}

func TestNestedRunTransactionErrorLeavesOutcomeToOuter(t *testing.T) {
	b := &fakeBeginner{txn: &fakeTxn{}}
	ctx := storage.WithAPI(context.Background(), b)
	boom := stderrors.New("inner failed")

	err := storage.RunTransaction(ctx, func(ctx context.Context, _ storage.Txn) error {
		innerErr := storage.RunTransaction(ctx, func(context.Context, storage.Txn) error { return boom })
		assert.Same(t, boom, innerErr)
		assert.Equal(t, 0, b.txn.rollbacks, "inner call does not roll back")
		return innerErr
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 1, b.txn.rollbacks)
}

func TestRunTransactionWithTxnBoundDirectly(t *testing.T) {
	txn := &fakeTxn{}
	ctx := storage.WithAPI(context.Background(), txn)

	err := storage.RunTransaction(ctx, func(got context.Context, gotTxn storage.Txn) error {
		assert.Equal(t, ctx, got)
		assert.Same(t, txn, gotTxn)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, txn.commits)
	assert.Equal(t, 0, txn.rollbacks)
}

func TestRunTransactionLogsWithTxnIDs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger.Replace(zap.New(core))
	defer logger.Replace(nil)

	txn := &identifiedTxn{}
	ctx := storage.WithAPI(context.Background(), &identifiedBeginner{txn: txn})
	boom := stderrors.New("boom")

	err := storage.RunTransaction(ctx, func(ctx context.Context, _ storage.Txn) error {
		assert.Equal(t, "txn-1", ctx.Value(logger.TxnIDKey))
		assert.Equal(t, "conn-1", ctx.Value(logger.ConnIDKey))
		return boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 1, txn.rollbacks)

	entries := logs.FilterMessage("transaction rolled back").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "txn-1", fields["txn_id"])
	assert.Equal(t, "conn-1", fields["conn_id"])
}
