package pool

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tidepool/pkg/errors"
)

func TestPromiseSettlesOnce(t *testing.T) {
	p := NewPromise[int]()
	assert.False(t, p.Settled())

	assert.True(t, p.Resolve(1))
	assert.False(t, p.Resolve(2))
	assert.False(t, p.Reject(stderrors.New("late")))
	assert.True(t, p.Settled())

	v, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestPromiseReject(t *testing.T) {
	p := NewPromise[string]()
	boom := stderrors.New("boom")
	assert.True(t, p.Reject(boom))
	assert.False(t, p.Resolve("x"))

	v, err := p.Wait(context.Background())
	assert.Same(t, boom, err)
	assert.Empty(t, v)
}

func TestPromiseWaitAbandoned(t *testing.T) {
	p := NewPromise[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := p.Wait(ctx)
	assert.True(t, errors.IsType(err, errors.ErrorTypeContextCanceled))
	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))
	assert.False(t, p.Settled(), "abandoning a wait leaves the promise open")
}

func TestPromiseResolvedFromAnotherGoroutine(t *testing.T) {
	p := NewPromise[int]()
	go func() {
		time.Sleep(time.Millisecond)
		p.Resolve(42)
	}()

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("promise never settled")
	}
	v, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestLatch(t *testing.T) {
	l := NewLatch()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))

	l.Signal()
	l.Signal()
	assert.NoError(t, l.Wait(context.Background()))
	select {
	case <-l.Done():
	default:
		t.Fatal("signaled latch not done")
	}
}
