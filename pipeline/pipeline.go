// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package pipeline runs messages through user business logic and
// acknowledges them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/z5labs/listener"
	"github.com/z5labs/listener/future"
	"github.com/z5labs/listener/internal/try"
	"github.com/z5labs/listener/message"
	"github.com/z5labs/listener/queue"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
)

// Pipeline processes a single message or a group of messages.
//
// The returned [future.Future] completes once processing, including
// acknowledgement, has finished.
type Pipeline[T any] interface {
	Process(context.Context, message.Message[T], *Context[T]) *future.Future
	ProcessBatch(context.Context, []message.Message[T], *Context[T]) *future.Future
}

var (
	// ErrNoHandler is returned when a single message is processed by a
	// [Composed] pipeline without a [Handler].
	ErrNoHandler = errors.New("pipeline: no handler configured")

	// ErrNoBatchHandler is returned when a batch is processed by a
	// [Composed] pipeline without a [BatchHandler].
	ErrNoBatchHandler = errors.New("pipeline: no batch handler configured")
)

// ProcessingError reports a handler failure for the given messages.
type ProcessingError struct {
	MessageIDs []string
	Cause      error
}

func (e ProcessingError) Error() string {
	return fmt.Sprintf("failed to process message(s) [%s]: %s", strings.Join(e.MessageIDs, ","), e.Cause)
}

func (e ProcessingError) Unwrap() error {
	return e.Cause
}

// ErrorHandler is given the chance to recover from a processing failure.
// Returning nil marks the message(s) as successfully processed.
type ErrorHandler[T any] interface {
	HandleError(context.Context, []message.Message[T], error) error
}

// ErrorHandlerFunc is an adapter to allow the use of ordinary functions as [ErrorHandler]s.
type ErrorHandlerFunc[T any] func(context.Context, []message.Message[T], error) error

// HandleError implements the [ErrorHandler] interface.
func (f ErrorHandlerFunc[T]) HandleError(ctx context.Context, msgs []message.Message[T], err error) error {
	return f(ctx, msgs, err)
}

// AckMode decides when processed messages are acknowledged.
type AckMode int

const (
	// AckOnSuccess acknowledges message(s) only when processing succeeded.
	AckOnSuccess AckMode = iota

	// AckAlways acknowledges message(s) regardless of the outcome.
	AckAlways

	// AckManual never acknowledges. The handler is responsible for it.
	AckManual
)

func (m AckMode) String() string {
	switch m {
	case AckOnSuccess:
		return "on_success"
	case AckAlways:
		return "always"
	case AckManual:
		return "manual"
	default:
		return fmt.Sprintf("AckMode(%d)", int(m))
	}
}

// Options are the configurable values of a [Composed] pipeline.
type Options[T any] struct {
	handler      queue.Processor[message.Message[T]]
	batchHandler queue.Processor[[]message.Message[T]]
	interceptors []Interceptor[T]
	onError      ErrorHandler[T]
	acker        queue.Acknowledger[[]message.Message[T]]
	ackMode      AckMode
	log          *slog.Logger

	tracerProvider trace.TracerProvider
	propagator     propagation.TextMapPropagator
}

// Option sets a value on [Options].
type Option[T any] func(*Options[T])

// Handler sets the business logic for single messages.
func Handler[T any](p queue.Processor[message.Message[T]]) Option[T] {
	return func(o *Options[T]) {
		o.handler = p
	}
}

// BatchHandler sets the business logic for batches of messages.
func BatchHandler[T any](p queue.Processor[[]message.Message[T]]) Option[T] {
	return func(o *Options[T]) {
		o.batchHandler = p
	}
}

// Interceptors appends interceptors which run after any emission scoped ones.
func Interceptors[T any](is ...Interceptor[T]) Option[T] {
	return func(o *Options[T]) {
		o.interceptors = append(o.interceptors, is...)
	}
}

// OnError sets the [ErrorHandler].
func OnError[T any](h ErrorHandler[T]) Option[T] {
	return func(o *Options[T]) {
		o.onError = h
	}
}

// Acknowledge configures how processed messages are acknowledged.
func Acknowledge[T any](acker queue.Acknowledger[[]message.Message[T]], mode AckMode) Option[T] {
	return func(o *Options[T]) {
		o.acker = acker
		o.ackMode = mode
	}
}

// TracerProvider overrides the global [trace.TracerProvider].
func TracerProvider[T any](tp trace.TracerProvider) Option[T] {
	return func(o *Options[T]) {
		o.tracerProvider = tp
	}
}

// Propagator overrides the global [propagation.TextMapPropagator] used to
// extract the producer's trace context from message headers.
func Propagator[T any](p propagation.TextMapPropagator) Option[T] {
	return func(o *Options[T]) {
		o.propagator = p
	}
}

// Logger overrides the logger used to report acknowledgement failures.
func Logger[T any](log *slog.Logger) Option[T] {
	return func(o *Options[T]) {
		o.log = log
	}
}

// Composed is the default [Pipeline]. Its stages run in order:
// interceptors, handler, error handler, after processing interceptors
// in reverse and finally acknowledgement.
//
// A Composed pipeline runs synchronously on the calling goroutine and
// always returns a completed [future.Future].
type Composed[T any] struct {
	handler      queue.Processor[message.Message[T]]
	batchHandler queue.Processor[[]message.Message[T]]
	interceptors []Interceptor[T]
	onError      ErrorHandler[T]
	acker        queue.Acknowledger[[]message.Message[T]]
	ackMode      AckMode

	log        *slog.Logger
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// New initializes a [Composed] pipeline.
func New[T any](opts ...Option[T]) *Composed[T] {
	o := &Options[T]{
		ackMode:        AckOnSuccess,
		log:            listener.Logger("github.com/z5labs/listener/pipeline"),
		tracerProvider: otel.GetTracerProvider(),
		propagator:     otel.GetTextMapPropagator(),
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Composed[T]{
		handler:      o.handler,
		batchHandler: o.batchHandler,
		interceptors: o.interceptors,
		onError:      o.onError,
		acker:        o.acker,
		ackMode:      o.ackMode,
		log:          o.log,
		tracer:       o.tracerProvider.Tracer("github.com/z5labs/listener/pipeline"),
		propagator:   o.propagator,
	}
}

// Process implements the [Pipeline] interface.
//
// The process span is a child of the span propagated in the message headers, if any.
func (p *Composed[T]) Process(ctx context.Context, msg message.Message[T], pc *Context[T]) *future.Future {
	if remote := remoteSpanContext(p.propagator, msg); remote.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
	}

	spanCtx, span := p.tracer.Start(
		ctx,
		"process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingOperationTypeProcess,
			semconv.MessagingMessageID(msg.ID()),
		),
	)
	defer span.End()

	msgs := []message.Message[T]{msg}
	err := p.run(spanCtx, msgs, pc, func(ctx context.Context) error {
		if p.handler == nil {
			return ErrNoHandler
		}
		return p.handler.Process(ctx, msg)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return future.Rejected(err)
	}
	return future.Resolved()
}

// ProcessBatch implements the [Pipeline] interface.
//
// The process batch span links to every span propagated in the message headers.
func (p *Composed[T]) ProcessBatch(ctx context.Context, msgs []message.Message[T], pc *Context[T]) *future.Future {
	var links []trace.Link
	for _, msg := range msgs {
		if remote := remoteSpanContext(p.propagator, msg); remote.IsValid() {
			links = append(links, trace.Link{SpanContext: remote})
		}
	}

	spanCtx, span := p.tracer.Start(
		ctx,
		"process batch",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithLinks(links...),
		trace.WithAttributes(
			semconv.MessagingOperationTypeProcess,
			semconv.MessagingBatchMessageCount(len(msgs)),
		),
	)
	defer span.End()

	err := p.run(spanCtx, msgs, pc, func(ctx context.Context) error {
		if p.batchHandler == nil {
			return ErrNoBatchHandler
		}
		return p.batchHandler.Process(ctx, msgs)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return future.Rejected(err)
	}
	return future.Resolved()
}

func (p *Composed[T]) run(ctx context.Context, msgs []message.Message[T], pc *Context[T], handle func(context.Context) error) error {
	interceptors := slices.Concat(pc.Interceptors(), p.interceptors)

	var (
		err     error
		entered int
	)
	for _, i := range interceptors {
		ctx, err = intercept(ctx, i, msgs)
		if err != nil {
			break
		}
		entered++
	}

	if err == nil {
		err = try.Recover(func() error {
			return handle(ctx)
		})
		if err != nil {
			err = ProcessingError{
				MessageIDs: message.IDs(msgs),
				Cause:      err,
			}
		}
	}

	if err != nil && p.onError != nil {
		err = p.onError.HandleError(ctx, msgs, err)
	}

	for _, i := range slices.Backward(interceptors[:entered]) {
		i.AfterProcessing(ctx, msgs, err)
	}

	p.acknowledge(ctx, msgs, err)
	return err
}

func intercept[T any](ctx context.Context, i Interceptor[T], msgs []message.Message[T]) (context.Context, error) {
	next, err := i.Intercept(ctx, msgs)
	if next == nil {
		next = ctx
	}
	return next, err
}

func (p *Composed[T]) acknowledge(ctx context.Context, msgs []message.Message[T], err error) {
	if p.acker == nil {
		return
	}

	switch p.ackMode {
	case AckManual:
		return
	case AckOnSuccess:
		if err != nil {
			return
		}
	}

	ackErr := try.Recover(func() error {
		return p.acker.Acknowledge(ctx, msgs)
	})
	if ackErr == nil {
		return
	}
	p.log.ErrorContext(
		ctx,
		"failed to acknowledge message(s)",
		slog.Any("messaging.message.ids", message.IDs(msgs)),
		slog.Any("error", ackErr),
	)
}
