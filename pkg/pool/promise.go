package pool

import (
	"context"
	"sync"

	"github.com/ajitpratap0/tidepool/pkg/errors"
)

// Promise is a deferred result settled exactly once, by Resolve or Reject.
// Waiters for a connection at capacity are promises.
type Promise[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// NewPromise returns an unsettled promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Resolve settles the promise with v. It reports whether this call settled
// it; later calls are ignored.
func (p *Promise[T]) Resolve(v T) bool {
	settled := false
	p.once.Do(func() {
		p.val = v
		settled = true
		close(p.done)
	})
	return settled
}

// Reject settles the promise with err. It reports whether this call
// settled it.
func (p *Promise[T]) Reject(err error) bool {
	settled := false
	p.once.Do(func() {
		p.err = err
		settled = true
		close(p.done)
	})
	return settled
}

// Done is closed once the promise is settled.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Settled reports whether the promise has been resolved or rejected.
func (p *Promise[T]) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the promise settles or ctx ends. When ctx ends first
// the error has type context_canceled and the promise is left unsettled.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		var zero T
		return zero, errors.Wrap(ctx.Err(), errors.ErrorTypeContextCanceled, "wait abandoned")
	}
}

// Latch is a single-use barrier: Wait blocks until Signal has been called.
// Pools and connections use it to hold Close until in-flight work is done.
type Latch struct {
	p *Promise[struct{}]
}

// NewLatch returns an unsignaled latch.
func NewLatch() *Latch {
	return &Latch{p: NewPromise[struct{}]()}
}

// Signal releases every current and future Wait. Extra calls are no-ops.
func (l *Latch) Signal() {
	l.p.Resolve(struct{}{})
}

// Wait blocks until Signal or until ctx ends.
func (l *Latch) Wait(ctx context.Context) error {
	_, err := l.p.Wait(ctx)
	return err
}

// Done is closed once the latch is signaled.
func (l *Latch) Done() <-chan struct{} {
	return l.p.Done()
}
