package bus

import (
	"context"
	"sync"
)

// Future is a single-assignment completion cell carried inside a request
// event. Exactly one handler settles it, exactly one caller awaits it.
//
// Settling an already-settled future is a defensive no-op: the first call to
// Resolve or Fail wins and later calls report false without touching the
// recorded outcome. A caller whose Await has already timed out may still be
// raced by a late settlement; that settlement is recorded but never observed.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve settles the future with a value. It reports whether this call won.
func (f *Future[T]) Resolve(v T) bool {
	won := false
	f.once.Do(func() {
		f.val = v
		close(f.done)
		won = true
	})
	return won
}

// Fail settles the future with an error. It reports whether this call won.
func (f *Future[T]) Fail(err error) bool {
	won := false
	f.once.Do(func() {
		f.err = err
		close(f.done)
		won = true
	})
	return won
}

// Await blocks until the future is settled or ctx is done. Callers of
// request events must always pass a ctx with a deadline: if no handler is
// registered for the request type, nothing will ever settle the future.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Settled reports whether the future has been resolved or failed.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
