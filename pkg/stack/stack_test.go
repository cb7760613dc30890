package stack

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tidepool/pkg/errors"
	"github.com/ajitpratap0/tidepool/pkg/pool"
	"github.com/ajitpratap0/tidepool/pkg/storage"
)

func newPool(t *testing.T, maxCount int, items ...any) *Pool {
	t.Helper()
	p, err := NewPool(NewStore(items...), maxCount, pool.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestPoolPushPop(t *testing.T) {
	p := newPool(t, 1)
	ctx := context.Background()

	require.NoError(t, p.Push(ctx, "a"))
	require.NoError(t, p.Push(ctx, "b"))

	n, err := p.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	v, err := p.Peek(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	v, err = p.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", v)
	v, err = p.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	_, err = p.Pop(ctx)
	assert.True(t, errors.IsType(err, errors.ErrorTypeEmpty))
	_, err = p.Peek(ctx)
	assert.True(t, errors.IsType(err, errors.ErrorTypeEmpty))

	assert.Equal(t, 1, p.Stats().Idle, "failed pool calls still release")
}

func TestConnOperations(t *testing.T) {
	p := newPool(t, 1, 1)
	ctx := context.Background()

	c, err := p.Conn(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.ModeConn, c.Mode())
	assert.Equal(t, storage.KindStack, c.Kind())

	require.NoError(t, c.Push(2))
	assert.Equal(t, []any{1, 2}, p.Store().Items())

	v, err := c.Pop()
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	require.NoError(t, c.Close(ctx))
	_, err = c.Len()
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnectionClosed))
}

func TestTxnStagesPushesAndPops(t *testing.T) {
	p := newPool(t, 2, 1, 2, 3)
	ctx := context.Background()

	txn, err := p.BeginTxn(ctx, storage.TxnOptions{})
	require.NoError(t, err)

	v, err := txn.Pop()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	v, err = txn.Pop()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	require.NoError(t, txn.Push("x"))

	v, err = txn.Peek()
	require.NoError(t, err)
	assert.Equal(t, "x", v)
	n, err := txn.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, []any{1, 2, 3}, p.Store().Items(), "shared stack untouched before commit")
	v, err = p.Peek(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	require.NoError(t, txn.Commit(ctx))
	assert.Equal(t, []any{1, "x"}, p.Store().Items())
}

func TestTxnPopBelowStagedPushes(t *testing.T) {
	p := newPool(t, 1, "base")
	ctx := context.Background()

	txn, err := p.BeginTxn(ctx, storage.TxnOptions{})
	require.NoError(t, err)

	require.NoError(t, txn.Push("top"))
	for _, want := range []any{"top", "base"} {
		v, err := txn.Pop()
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	_, err = txn.Pop()
	assert.True(t, errors.IsType(err, errors.ErrorTypeEmpty))
	_, err = txn.Peek()
	assert.True(t, errors.IsType(err, errors.ErrorTypeEmpty))

	require.NoError(t, txn.Commit(ctx))
	assert.Empty(t, p.Store().Items())
}

func TestTxnRollbackRestoresStack(t *testing.T) {
	p := newPool(t, 1, 1, 2)
	ctx := context.Background()

	c, err := p.Conn(ctx)
	require.NoError(t, err)
	txn, err := c.BeginTxn(ctx, storage.TxnOptions{IsolationLevel: storage.LevelSerializable})
	require.NoError(t, err)

	_, err = txn.Pop()
	require.NoError(t, err)
	require.NoError(t, txn.Push(9))
	require.NoError(t, txn.Rollback(ctx))

	assert.Equal(t, []any{1, 2}, p.Store().Items())
	require.NoError(t, c.Close(ctx))
}

func TestReadOnlyTxn(t *testing.T) {
	p := newPool(t, 1, 1)
	ctx := context.Background()

	txn, err := p.BeginTxn(ctx, storage.TxnOptions{ReadOnly: true})
	require.NoError(t, err)

	assert.True(t, errors.IsType(txn.Push(2), errors.ErrorTypeTransactionReadOnly))
	_, err = txn.Pop()
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransactionReadOnly))

	v, err := txn.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, txn.Commit(ctx))
	assert.Equal(t, []any{1}, p.Store().Items())
}

func TestUnsupportedIsolationLevels(t *testing.T) {
	p := newPool(t, 1)
	ctx := context.Background()

	for _, level := range []storage.IsolationLevel{
		storage.LevelReadUncommitted,
		storage.LevelReadCommitted,
		storage.LevelWriteCommitted,
		storage.LevelRepeatableRead,
		storage.LevelSnapshot,
		storage.LevelLinearizable,
	} {
		_, err := p.BeginTxn(ctx, storage.TxnOptions{IsolationLevel: level})
		assert.True(t, errors.IsType(err, errors.ErrorTypeCapability), level.String())
	}
	assert.Equal(t, int64(0), p.Stats().Created, "rejected before a connection is taken")
}

func TestCommitSkipsPopsOfConcurrentlyEmptiedStack(t *testing.T) {
	p := newPool(t, 2, "only")
	ctx := context.Background()

	txn, err := p.BeginTxn(ctx, storage.TxnOptions{})
	require.NoError(t, err)
	_, err = txn.Pop()
	require.NoError(t, err)
	require.NoError(t, txn.Push("new"))

	v, err := p.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "only", v)

	require.NoError(t, txn.Commit(ctx))
	assert.Equal(t, []any{"new"}, p.Store().Items())
}

func TestRunTransactionOverStack(t *testing.T) {
	p := newPool(t, 1, "a")
	ctx := storage.WithAPI(context.Background(), p)

	boom := stderrors.New("boom")
	err := storage.RunTransaction(ctx, func(ctx context.Context, txn storage.Txn) error {
		st := txn.(*Txn)
		if _, err := st.Pop(); err != nil {
			return err
		}
		if err := st.Push("b"); err != nil {
			return err
		}
		return boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, []any{"a"}, p.Store().Items())

	err = storage.RunTransactionWithOptions(ctx, storage.TxnOptions{IsolationLevel: storage.LevelSnapshot},
		func(context.Context, storage.Txn) error { return nil })
	assert.True(t, errors.IsType(err, errors.ErrorTypeCapability))
}
