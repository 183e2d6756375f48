// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package future provides a minimal completion signal which can be composed
// without blocking goroutines.
//
// Callbacks registered on a [Future] run synchronously on whichever goroutine
// completes it, or immediately on the registering goroutine if the [Future]
// is already done. This keeps composition deterministic when work is executed
// inline.
package future

import (
	"context"
	"errors"
	"sync"
)

// Future is a one-shot completion signal carrying an optional error.
//
// A nil *Future is treated as already resolved by every function in this package.
type Future struct {
	mu        sync.Mutex
	done      chan struct{}
	err       error
	completed bool
	callbacks []func(error)
}

func newFuture() *Future {
	return &Future{
		done: make(chan struct{}),
	}
}

// Done returns a channel which is closed once the [Future] completes.
func (f *Future) Done() <-chan struct{} {
	if f == nil {
		return closedCh
	}
	return f.done
}

// IsDone reports whether the [Future] has completed.
func (f *Future) IsDone() bool {
	select {
	case <-f.Done():
		return true
	default:
		return false
	}
}

// Err returns the error the [Future] completed with. It returns nil
// if the [Future] has not completed yet.
func (f *Future) Err() error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Wait blocks until the [Future] completes or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.Done():
		return f.Err()
	}
}

func (f *Future) complete(err error) bool {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return false
	}
	f.completed = true
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(err)
	}
	return true
}

func (f *Future) onComplete(fn func(error)) {
	f.mu.Lock()
	if !f.completed {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	err := f.err
	f.mu.Unlock()

	fn(err)
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Promise is the write side of a [Future].
type Promise struct {
	f *Future
}

// NewPromise initializes a [Promise] with an incomplete [Future].
func NewPromise() Promise {
	return Promise{f: newFuture()}
}

// Future returns the [Future] completed by this [Promise].
func (p Promise) Future() *Future {
	return p.f
}

// Complete completes the [Future] with err. Only the first call has
// any effect and reports true.
func (p Promise) Complete(err error) bool {
	return p.f.complete(err)
}

// Resolved returns an already successfully completed [Future].
func Resolved() *Future {
	f := newFuture()
	f.complete(nil)
	return f
}

// Rejected returns an already completed [Future] which failed with err.
func Rejected(err error) *Future {
	f := newFuture()
	f.complete(err)
	return f
}

// OnComplete registers fn to be called with the outcome of f.
func OnComplete(f *Future, fn func(error)) {
	if f == nil {
		fn(nil)
		return
	}
	f.onComplete(fn)
}

// Compose chains fn onto f. The returned [Future] completes with the outcome
// of the [Future] returned by fn, which is invoked with the outcome of f.
func Compose(f *Future, fn func(error) *Future) *Future {
	p := NewPromise()
	OnComplete(f, func(err error) {
		next := fn(err)
		OnComplete(next, func(err error) {
			p.Complete(err)
		})
	})
	return p.Future()
}

// Handle invokes fn with the outcome of f and then resolves successfully,
// absorbing any error from f.
func Handle(f *Future, fn func(error)) *Future {
	p := NewPromise()
	OnComplete(f, func(err error) {
		defer p.Complete(nil)
		fn(err)
	})
	return p.Future()
}

// All returns a [Future] which completes once every given [Future] has completed.
// Its error is the join of all member errors.
func All(fs ...*Future) *Future {
	if len(fs) == 0 {
		return Resolved()
	}

	p := NewPromise()

	var (
		mu        sync.Mutex
		remaining = len(fs)
		errs      []error
	)
	for _, f := range fs {
		OnComplete(f, func(err error) {
			mu.Lock()
			if err != nil {
				errs = append(errs, err)
			}
			remaining--
			last := remaining == 0
			joined := errors.Join(errs...)
			mu.Unlock()

			if last {
				p.Complete(joined)
			}
		})
	}
	return p.Future()
}
