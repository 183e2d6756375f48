// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package executor provides the task execution services which sinks submit
// pipeline work to.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/z5labs/listener/future"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/semaphore"
)

// ErrRejected is returned via a failed [future.Future] when an [Executor]
// refuses to run a [Task], either because it is saturated or closed.
var ErrRejected = errors.New("executor: task rejected")

// Task is a unit of work which itself completes asynchronously.
type Task func(context.Context) *future.Future

// Executor runs [Task]s.
//
// Submit must never block waiting for the [Task] to finish. The returned
// [future.Future] completes with the outcome of the [Task]'s own future.
type Executor interface {
	Submit(context.Context, Task) *future.Future
}

// Func is an adapter to allow the use of ordinary functions as [Executor]s.
type Func func(context.Context, Task) *future.Future

// Submit implements the [Executor] interface.
func (f Func) Submit(ctx context.Context, t Task) *future.Future {
	return f(ctx, t)
}

// Direct returns an [Executor] which runs every [Task] on the submitting goroutine.
func Direct() Executor {
	return Func(run)
}

func run(ctx context.Context, t Task) (f *future.Future) {
	r := panics.Try(func() {
		f = t(ctx)
	})
	if r != nil {
		return future.Rejected(r.AsError())
	}
	return f
}

// Options are the configurable values of a [Pool].
type Options struct {
	maxConcurrency int64
}

// Option sets a value on [Options].
type Option func(*Options)

// MaxConcurrency bounds the number of tasks a [Pool] runs at once.
// Submissions beyond the bound are rejected. A value <= 0 means unbounded.
func MaxConcurrency(n int) Option {
	return func(o *Options) {
		o.maxConcurrency = int64(n)
	}
}

// Pool runs every [Task] on its own goroutine.
type Pool struct {
	sem *semaphore.Weighted
	wg  conc.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool initializes a [Pool].
func NewPool(opts ...Option) *Pool {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}

	p := &Pool{}
	if o.maxConcurrency > 0 {
		p.sem = semaphore.NewWeighted(o.maxConcurrency)
	}
	return p
}

// Submit implements the [Executor] interface.
func (p *Pool) Submit(ctx context.Context, t Task) *future.Future {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return future.Rejected(fmt.Errorf("%w: pool closed", ErrRejected))
	}
	if p.sem != nil && !p.sem.TryAcquire(1) {
		return future.Rejected(fmt.Errorf("%w: pool saturated", ErrRejected))
	}

	promise := future.NewPromise()
	p.wg.Go(func() {
		f := func() *future.Future {
			if p.sem != nil {
				defer p.sem.Release(1)
			}
			return run(ctx, t)
		}()

		future.OnComplete(f, func(err error) {
			promise.Complete(err)
		})
	})
	return promise.Future()
}

// Close stops the [Pool] from accepting new tasks and waits for running
// tasks to return or for ctx to be done.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
