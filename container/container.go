// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package container runs a message listener: it polls a queue, bounds the
// number of in-flight messages and hands every polled batch to a sink.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/z5labs/listener"
	"github.com/z5labs/listener/executor"
	"github.com/z5labs/listener/future"
	"github.com/z5labs/listener/health"
	"github.com/z5labs/listener/message"
	"github.com/z5labs/listener/pipeline"
	"github.com/z5labs/listener/queue"
	"github.com/z5labs/listener/sink"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Defaults used for options which are not set.
const (
	DefaultMaxConcurrentMessages = 10
	DefaultMaxMessagesPerPoll    = 10
	DefaultPollBackOff           = time.Second
	DefaultShutdownTimeout       = 20 * time.Second
)

// ErrShutdownTimeout is returned by [Container.ProcessQueue] when in-flight
// messages did not finish within the shutdown timeout.
var ErrShutdownTimeout = errors.New("container: timed out waiting for in-flight messages")

// Options are the configurable values of a [Container].
type Options[T any] struct {
	name            string
	maxConcurrent   int
	maxPerPoll      int
	pollBackOff     time.Duration
	shutdownTimeout time.Duration
	executor        executor.Executor
	log             *slog.Logger
}

// Option sets a value on [Options].
type Option[T any] func(*Options[T])

// Name sets the identity of the [Container]. A random one is used by default.
func Name[T any](name string) Option[T] {
	return func(o *Options[T]) {
		o.name = name
	}
}

// MaxConcurrentMessages bounds the number of messages in flight at once.
func MaxConcurrentMessages[T any](n int) Option[T] {
	return func(o *Options[T]) {
		o.maxConcurrent = n
	}
}

// MaxMessagesPerPoll bounds the number of messages requested per poll.
// It is capped by [MaxConcurrentMessages].
func MaxMessagesPerPoll[T any](n int) Option[T] {
	return func(o *Options[T]) {
		o.maxPerPoll = n
	}
}

// PollBackOff sets how long to wait after a failed poll.
func PollBackOff[T any](d time.Duration) Option[T] {
	return func(o *Options[T]) {
		o.pollBackOff = d
	}
}

// ShutdownTimeout bounds how long shutting down waits for in-flight messages.
func ShutdownTimeout[T any](d time.Duration) Option[T] {
	return func(o *Options[T]) {
		o.shutdownTimeout = d
	}
}

// Executor sets the [executor.Executor] the sink submits work to. The caller
// keeps ownership of it. By default, the [Container] uses an [executor.Pool]
// sized to [MaxConcurrentMessages] which it closes on shutdown.
func Executor[T any](e executor.Executor) Option[T] {
	return func(o *Options[T]) {
		o.executor = e
	}
}

// Logger overrides the [slog.Logger] of the [Container].
func Logger[T any](log *slog.Logger) Option[T] {
	return func(o *Options[T]) {
		o.log = log
	}
}

// LimitedConsumer is implemented by consumers which can bound the size of a
// single poll. A [Container] never asks for more messages than it has
// free permits for.
type LimitedConsumer[T any] interface {
	ConsumeAtMost(ctx context.Context, n int) ([]message.Message[T], error)
}

// Container polls a [queue.Consumer] and emits the received messages to a [sink.MessageSink].
//
// At most MaxConcurrentMessages messages are in flight at once. A message
// stops counting against that bound once the sink releases its back pressure slot.
type Container[T any] struct {
	name            string
	consumer        queue.Consumer[[]message.Message[T]]
	pipeline        pipeline.Pipeline[T]
	sink            sink.MessageSink[T]
	executor        executor.Executor
	ownsExecutor    bool
	permits         *semaphore.Weighted
	maxConcurrent   int64
	maxPerPoll      int64
	pollBackOff     time.Duration
	shutdownTimeout time.Duration
	log             *slog.Logger

	running atomic.Bool
}

var _ health.Monitor = (*Container[any])(nil)

// New initializes a [Container].
func New[T any](consumer queue.Consumer[[]message.Message[T]], p pipeline.Pipeline[T], s sink.MessageSink[T], opts ...Option[T]) *Container[T] {
	o := &Options[T]{
		maxConcurrent:   DefaultMaxConcurrentMessages,
		maxPerPoll:      DefaultMaxMessagesPerPoll,
		pollBackOff:     DefaultPollBackOff,
		shutdownTimeout: DefaultShutdownTimeout,
		log:             listener.Logger("github.com/z5labs/listener/container"),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.name == "" {
		o.name = uuid.NewString()
	}
	if o.maxConcurrent <= 0 {
		o.maxConcurrent = DefaultMaxConcurrentMessages
	}
	if o.maxPerPoll <= 0 || o.maxPerPoll > o.maxConcurrent {
		o.maxPerPoll = o.maxConcurrent
	}

	c := &Container[T]{
		name:            o.name,
		consumer:        consumer,
		pipeline:        p,
		sink:            s,
		executor:        o.executor,
		permits:         semaphore.NewWeighted(int64(o.maxConcurrent)),
		maxConcurrent:   int64(o.maxConcurrent),
		maxPerPoll:      int64(o.maxPerPoll),
		pollBackOff:     o.pollBackOff,
		shutdownTimeout: o.shutdownTimeout,
		log:             o.log,
	}
	if c.executor == nil {
		c.executor = executor.NewPool(executor.MaxConcurrency(o.maxConcurrent))
		c.ownsExecutor = true
	}
	return c
}

// Name returns the identity of the [Container].
func (c *Container[T]) Name() string {
	return c.name
}

// IsRunning reports whether the [Container] is polling.
func (c *Container[T]) IsRunning() bool {
	return c.running.Load()
}

// Healthy implements the [health.Monitor] interface. A [Container] is
// healthy while it polls and its sink accepts emissions.
func (c *Container[T]) Healthy(ctx context.Context) (bool, error) {
	return c.running.Load() && c.sink.IsRunning(), nil
}

// ProcessQueue implements the [queue.QueueRuntime] interface.
//
// It polls until the consumer returns [queue.ErrEndOfQueue] or ctx is
// cancelled, then stops the sink and waits for in-flight messages.
func (c *Container[T]) ProcessQueue(ctx context.Context) error {
	err := c.start()
	if err != nil {
		return err
	}
	defer c.running.Store(false)

	c.log.InfoContext(ctx, "listener container started", ContainerAttr(c.name))

	for err == nil {
		err = c.poll(ctx)
	}
	switch {
	case errors.Is(err, queue.ErrEndOfQueue):
		c.log.InfoContext(ctx, "encountered end of queue", ContainerAttr(c.name))
	case ctx.Err() != nil:
		c.log.InfoContext(ctx, "shutting down listener container", ContainerAttr(c.name))
	default:
		return errors.Join(err, c.shutdown())
	}
	return c.shutdown()
}

func (c *Container[T]) start() error {
	if err := c.sink.SetPipeline(c.pipeline); err != nil {
		return err
	}
	if err := c.sink.SetExecutor(c.executor); err != nil {
		return err
	}
	if err := c.sink.Start(); err != nil {
		return err
	}
	c.running.Store(true)
	return nil
}

func (c *Container[T]) shutdown() error {
	c.sink.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
	defer cancel()

	var errs []error
	err := c.permits.Acquire(ctx, c.maxConcurrent)
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrShutdownTimeout, err))
	} else {
		c.permits.Release(c.maxConcurrent)
	}

	if pool, ok := c.executor.(*executor.Pool); ok && c.ownsExecutor {
		errs = append(errs, pool.Close(ctx))
	}

	c.log.Info("listener container stopped", ContainerAttr(c.name))
	return errors.Join(errs...)
}

func (c *Container[T]) poll(ctx context.Context) error {
	held, err := c.acquire(ctx)
	if err != nil {
		return err
	}

	msgs, err := c.consume(ctx, held)
	if err != nil {
		c.permits.Release(held)
		if errors.Is(err, queue.ErrEndOfQueue) || ctx.Err() != nil {
			return err
		}

		c.log.ErrorContext(ctx, "failed to poll messages", ContainerAttr(c.name), slog.Any("error", err))
		return c.backOff(ctx)
	}

	n := int64(len(msgs))
	if n > c.maxPerPoll {
		c.log.WarnContext(
			ctx,
			"consumer returned more messages than requested",
			ContainerAttr(c.name),
			slog.Int64("requested", c.maxPerPoll),
			slog.Int64("received", n),
		)
	}
	switch {
	case n < held:
		c.permits.Release(held - n)
		held = n
	case n > held:
		extra := min(n, c.maxConcurrent) - held
		if extra > 0 {
			err = c.permits.Acquire(ctx, extra)
			if err != nil {
				c.permits.Release(held)
				return err
			}
			held += extra
		}
	}
	if n == 0 {
		return nil
	}

	c.emit(ctx, msgs, held)
	return nil
}

// acquire blocks until at least one message may be in flight and then takes
// as many more permits as are free, up to the max messages per poll.
func (c *Container[T]) acquire(ctx context.Context) (int64, error) {
	err := c.permits.Acquire(ctx, 1)
	if err != nil {
		return 0, err
	}

	held := int64(1)
	for held < c.maxPerPoll && c.permits.TryAcquire(1) {
		held++
	}
	return held, nil
}

func (c *Container[T]) consume(ctx context.Context, n int64) ([]message.Message[T], error) {
	if lc, ok := c.consumer.(LimitedConsumer[T]); ok {
		return lc.ConsumeAtMost(ctx, int(n))
	}
	return c.consumer.Consume(ctx)
}

func (c *Container[T]) backOff(ctx context.Context) error {
	if c.pollBackOff <= 0 {
		return nil
	}

	t := time.NewTimer(c.pollBackOff)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// emit hands msgs to the sink. The release callback never returns more than
// held permits and whatever the sink did not release is returned once the
// emission completes.
func (c *Container[T]) emit(ctx context.Context, msgs []message.Message[T], held int64) {
	var remaining atomic.Int64
	remaining.Store(held)

	release := func() {
		for {
			n := remaining.Load()
			if n <= 0 {
				return
			}
			if remaining.CompareAndSwap(n, n-1) {
				c.permits.Release(1)
				return
			}
		}
	}

	pc := pipeline.NewContext(pipeline.WithBackPressureRelease[T](release))
	f := c.sink.Emit(context.WithoutCancel(ctx), msgs, pc)

	future.OnComplete(f, func(error) {
		n := remaining.Swap(0)
		if n > 0 {
			c.permits.Release(n)
		}
	})
}
