package page

import (
	"context"
	"sync"
)

// Outcome is what a provider or command produces. It is one of Value, *Future
// or Stream; a nil Outcome is treated as Immediate(nil).
type Outcome interface {
	outcome()
}

// Value is an immediately available result.
type Value struct {
	V any
}

func (Value) outcome() {}

// Immediate wraps v as an immediate Outcome.
func Immediate(v any) Outcome {
	return Value{V: v}
}

// Stream is a push source. It is invoked once with a push callback that may be
// called zero or more times, synchronously or later, from any goroutine. ctx is
// the page session context and is cancelled by Page.Close.
type Stream func(ctx context.Context, push func(any))

func (Stream) outcome() {}

// Future is a pending result that settles exactly once.
type Future struct {
	done chan struct{}
	once sync.Once
	val  any
	err  error
}

func (*Future) outcome() {}

// NewFuture returns an unsettled future and the function that settles it.
// Only the first call to settle has any effect.
func NewFuture() (*Future, func(any, error)) {
	f := &Future{done: make(chan struct{})}
	return f, f.settle
}

// Async runs fn on its own goroutine and returns a future for its result.
func Async(ctx context.Context, fn func(ctx context.Context) (any, error)) *Future {
	f, settle := NewFuture()
	go func() {
		settle(fn(ctx))
	}()
	return f
}

// Resolved returns an already settled future.
func Resolved(v any, err error) *Future {
	f, settle := NewFuture()
	settle(v, err)
	return f
}

func (f *Future) settle(v any, err error) {
	f.once.Do(func() {
		f.val = v
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether the future has settled, without blocking.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
