// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package queue

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/z5labs/listener/app"
)

// ErrEndOfQueue should be returned by a [Consumer] which reads from a finite
// queue, or whose underlying client has been closed. Listener containers
// treat it as a signal to drain and shut down.
var ErrEndOfQueue = errors.New("queue: no more items")

// Consumer receives message(s), T, from a queue.
//
// For listener containers T is a batch of messages. An empty batch is valid
// and simply means nothing was available before the poll returned.
type Consumer[T any] interface {
	Consume(context.Context) (T, error)
}

// ConsumerFunc is an adapter to allow the use of ordinary functions as [Consumer]s.
type ConsumerFunc[T any] func(context.Context) (T, error)

// Consume implements the [Consumer] interface.
func (f ConsumerFunc[T]) Consume(ctx context.Context) (T, error) {
	return f(ctx)
}

// Processor implements the business logic for message(s), T.
//
// Returning an error marks the message(s) as failed, which by default
// prevents them from being acknowledged.
type Processor[T any] interface {
	Process(context.Context, T) error
}

// ProcessorFunc is an adapter to allow the use of ordinary functions as [Processor]s.
type ProcessorFunc[T any] func(context.Context, T) error

// Process implements the [Processor] interface.
func (f ProcessorFunc[T]) Process(ctx context.Context, t T) error {
	return f(ctx, t)
}

// Acknowledger tells the queue that message(s), T, are done with and
// should not be redelivered.
type Acknowledger[T any] interface {
	Acknowledge(context.Context, T) error
}

// AcknowledgerFunc is an adapter to allow the use of ordinary functions as [Acknowledger]s.
type AcknowledgerFunc[T any] func(context.Context, T) error

// Acknowledge implements the [Acknowledger] interface.
func (f AcknowledgerFunc[T]) Acknowledge(ctx context.Context, t T) error {
	return f(ctx, t)
}

// QueueRuntime consumes from a queue until the queue ends or ctx is cancelled.
type QueueRuntime interface {
	ProcessQueue(context.Context) error
}

// QueueRuntimeFunc is an adapter to allow the use of ordinary functions as [QueueRuntime]s.
type QueueRuntimeFunc func(context.Context) error

// ProcessQueue implements the [QueueRuntime] interface.
func (f QueueRuntimeFunc) ProcessQueue(ctx context.Context) error {
	return f(ctx)
}

// Runtime adapts a [QueueRuntime] to [app.Runtime].
type Runtime struct {
	queueRuntime QueueRuntime
}

// Run implements the [app.Runtime] interface.
func (rt Runtime) Run(ctx context.Context) error {
	return rt.queueRuntime.ProcessQueue(ctx)
}

// Build creates an [app.Builder] for a queue based application from
// a builder of its [QueueRuntime], e.g. a listener container.
func Build[T QueueRuntime](builder app.Builder[T]) app.Builder[Runtime] {
	return app.Bind(builder, func(qrt T) app.Builder[Runtime] {
		return app.BuilderFunc[Runtime](func(ctx context.Context) (Runtime, error) {
			return Runtime{queueRuntime: qrt}, nil
		})
	})
}

// RunOptions holds configuration for [Run].
type RunOptions struct {
	logger *slog.Logger
}

// RunOption configures [Run] behavior.
type RunOption interface {
	ApplyRunOption(*RunOptions)
}

type runOptionFunc func(*RunOptions)

func (f runOptionFunc) ApplyRunOption(ro *RunOptions) {
	f(ro)
}

// LogHandler configures the log handler used to report a failed run.
// By default, errors are logged as JSON to stdout.
func LogHandler(h slog.Handler) RunOption {
	return runOptionFunc(func(ro *RunOptions) {
		ro.logger = slog.New(h)
	})
}

// Run builds and runs a queue based application, typically one produced by
// [Build] and optionally wrapped with [app.WithHooks]. Any error from building
// or running it is logged and returned.
//
// Signal handling is performed by [app.Run].
func Run[T app.Runtime](ctx context.Context, builder app.Builder[T], opts ...RunOption) error {
	ro := &RunOptions{
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{})),
	}
	for _, opt := range opts {
		opt.ApplyRunOption(ro)
	}

	err := app.Run(ctx, builder)
	if err != nil {
		app.LogError(ro.logger.Handler(), err)
	}
	return err
}
