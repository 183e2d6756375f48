// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package sink decides how received messages are driven through a [pipeline.Pipeline].
//
// A [Sink] is configured with one of the delivery strategies:
//
//   - [Batch]: the whole emission is a single unit of work
//   - [FanOut]: every message is processed independently and concurrently
//   - [Ordered]: messages are processed one at a time in emission order
//   - [FilteredBatch]: messages are filtered and the remainder handled as a [Batch]
//
// Regardless of the strategy, every message accepted by [Sink.Emit] has
// [pipeline.Context.ReleaseBackPressure] invoked exactly once for it before
// the returned [future.Future] completes.
package sink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/z5labs/listener"
	"github.com/z5labs/listener/executor"
	"github.com/z5labs/listener/future"
	"github.com/z5labs/listener/message"
	"github.com/z5labs/listener/pipeline"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNoPipeline is returned by [Sink.Start] when no pipeline is configured.
	ErrNoPipeline = errors.New("sink: pipeline must be set before starting")

	// ErrNoExecutor is returned by [Sink.Start] when no executor is configured.
	ErrNoExecutor = errors.New("sink: executor must be set before starting")

	// ErrRunning is returned when reconfiguring a running [Sink].
	ErrRunning = errors.New("sink: cannot reconfigure a running sink")
)

// Options are the configurable values of a [Sink].
type Options[T any] struct {
	pipeline      pipeline.Pipeline[T]
	executor      executor.Executor
	name          string
	log           *slog.Logger
	meterProvider metric.MeterProvider
}

// Option sets a value on [Options].
type Option[T any] func(*Options[T])

// WithPipeline sets the [pipeline.Pipeline] messages are processed by.
func WithPipeline[T any](p pipeline.Pipeline[T]) Option[T] {
	return func(o *Options[T]) {
		o.pipeline = p
	}
}

// WithExecutor sets the [executor.Executor] pipeline invocations are submitted to.
func WithExecutor[T any](e executor.Executor) Option[T] {
	return func(o *Options[T]) {
		o.executor = e
	}
}

// WithName sets the identity of the [Sink]. By default, a random
// identity is assigned the first time the [Sink] is started.
func WithName[T any](name string) Option[T] {
	return func(o *Options[T]) {
		o.name = name
	}
}

// WithLogger overrides the [slog.Logger] used to report failures.
func WithLogger[T any](log *slog.Logger) Option[T] {
	return func(o *Options[T]) {
		o.log = log
	}
}

// WithMeterProvider overrides the global [metric.MeterProvider].
func WithMeterProvider[T any](mp metric.MeterProvider) Option[T] {
	return func(o *Options[T]) {
		o.meterProvider = mp
	}
}

// MessageSink is implemented by [Sink] and by adapters around it, e.g. [Grouping].
type MessageSink[T any] interface {
	Emit(context.Context, []message.Message[T], *pipeline.Context[T]) *future.Future
	SetPipeline(pipeline.Pipeline[T]) error
	SetExecutor(executor.Executor) error
	Start() error
	Stop()
	IsRunning() bool
	Name() string
}

// Sink submits emitted messages to an [executor.Executor] according to its [Strategy].
type Sink[T any] struct {
	strategy Strategy[T]
	log      *slog.Logger
	metrics  *metricsRecorder

	mu       sync.Mutex
	running  atomic.Bool
	name     string
	pipeline pipeline.Pipeline[T]
	executor executor.Executor
}

// New initializes a stopped [Sink].
func New[T any](strategy Strategy[T], opts ...Option[T]) *Sink[T] {
	o := &Options[T]{
		log:           listener.Logger("github.com/z5labs/listener/sink"),
		meterProvider: otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(o)
	}

	metrics, err := newMetricsRecorder(o.meterProvider)
	if err != nil {
		o.log.Warn("falling back to no-op sink metrics", slog.Any("error", err))
		metrics = noopMetricsRecorder()
	}

	return &Sink[T]{
		strategy: strategy,
		log:      o.log,
		metrics:  metrics,
		name:     o.name,
		pipeline: o.pipeline,
		executor: o.executor,
	}
}

// SetPipeline sets the [pipeline.Pipeline] of a stopped [Sink].
func (s *Sink[T]) SetPipeline(p pipeline.Pipeline[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrRunning
	}
	s.pipeline = p
	return nil
}

// SetExecutor sets the [executor.Executor] of a stopped [Sink].
func (s *Sink[T]) SetExecutor(e executor.Executor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrRunning
	}
	s.executor = e
	return nil
}

// Start allows the [Sink] to accept emissions. Starting a running
// [Sink] does nothing.
func (s *Sink[T]) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return nil
	}
	if s.pipeline == nil {
		return ErrNoPipeline
	}
	if s.executor == nil {
		return ErrNoExecutor
	}
	if s.name == "" {
		s.name = uuid.NewString()
	}

	s.running.Store(true)
	s.log.Debug("sink started", NameAttr(s.name), StrategyAttr(s.strategy))
	return nil
}

// Stop makes the [Sink] drop further emissions. In-flight work is not
// cancelled. Stopping a stopped [Sink] does nothing.
func (s *Sink[T]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Swap(false) {
		return
	}
	s.log.Debug("sink stopped", NameAttr(s.name), StrategyAttr(s.strategy))
}

// IsRunning reports whether the [Sink] accepts emissions.
func (s *Sink[T]) IsRunning() bool {
	return s.running.Load()
}

// Name returns the identity of the [Sink]. It is empty until the [Sink]
// is first started unless set with [WithName].
func (s *Sink[T]) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Strategy returns the delivery strategy of the [Sink].
func (s *Sink[T]) Strategy() Strategy[T] {
	return s.strategy
}

// Emit schedules msgs for processing. It never blocks waiting for processing
// to finish and the returned [future.Future] never fails.
//
// An empty emission, or one made while the [Sink] is not running, is dropped
// and an already completed [future.Future] is returned.
func (s *Sink[T]) Emit(ctx context.Context, msgs []message.Message[T], pc *pipeline.Context[T]) *future.Future {
	if len(msgs) == 0 {
		return future.Resolved()
	}
	if !s.running.Load() {
		s.log.DebugContext(
			ctx,
			"sink is not running, dropping messages",
			slog.Int("messaging.batch.message_count", len(msgs)),
		)
		return future.Resolved()
	}

	s.mu.Lock()
	e := emission[T]{
		Sink:     s,
		pipeline: s.pipeline,
		executor: s.executor,
	}
	s.mu.Unlock()

	s.metrics.recordEmitted(ctx, s.name, s.strategy, len(msgs))
	return s.strategy.emit(ctx, e, msgs, pc)
}

// emission runs with the pipeline and executor the [Sink] had when Emit
// was called, even if they are replaced while its messages are in flight.
type emission[T any] struct {
	*Sink[T]

	pipeline pipeline.Pipeline[T]
	executor executor.Executor
}

// submit hands t to the executor. Panics raised by the executor or by t are
// converted into a failed future.
func (s emission[T]) submit(ctx context.Context, t executor.Task) (f *future.Future) {
	guarded := func(ctx context.Context) (f *future.Future) {
		r := panics.Try(func() {
			f = t(ctx)
		})
		if r != nil {
			return future.Rejected(r.AsError())
		}
		return f
	}

	r := panics.Try(func() {
		f = s.executor.Submit(ctx, guarded)
	})
	if r != nil {
		return future.Rejected(r.AsError())
	}
	return f
}

// release returns the back pressure slot held by each message.
func (s *Sink[T]) release(ctx context.Context, pc *pipeline.Context[T], msgs ...message.Message[T]) {
	for range msgs {
		pc.ReleaseBackPressure()
	}
	s.metrics.recordReleased(ctx, s.name, s.strategy, len(msgs))
}

func (s *Sink[T]) failed(ctx context.Context, msgs []message.Message[T], err error) {
	s.log.ErrorContext(
		ctx,
		"failed to process message(s)",
		NameAttr(s.name),
		StrategyAttr(s.strategy),
		slog.Any("messaging.message.ids", message.IDs(msgs)),
		slog.Any("error", err),
	)
	s.metrics.recordFailure(ctx, s.name, s.strategy, len(msgs))
}
