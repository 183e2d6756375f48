// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pipeline

import (
	"context"
	"testing"

	"github.com/z5labs/listener/message"
	"github.com/z5labs/listener/queue"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func published(t *testing.T, tp trace.TracerProvider, payload string, asBytes bool) (trace.SpanContext, message.Message[string]) {
	t.Helper()

	ctx, span := tp.Tracer("producer").Start(context.Background(), "publish")
	span.End()

	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	require.NotEmpty(t, carrier.Keys())

	var hdrs []message.Header
	for _, k := range carrier.Keys() {
		var v any = carrier.Get(k)
		if asBytes {
			v = []byte(carrier.Get(k))
		}
		hdrs = append(hdrs, message.Header{Key: k, Value: v})
	}
	return span.SpanContext(), message.New(payload, message.WithHeaders(hdrs...))
}

func endedSpan(t *testing.T, sr *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()

	for _, s := range sr.Ended() {
		if s.Name() == name {
			return s
		}
	}
	require.FailNow(t, "span was not recorded", name)
	return nil
}

func TestComposed_Process_Tracing(t *testing.T) {
	t.Run("will continue the trace propagated in the message headers", func(t *testing.T) {
		for name, asBytes := range map[string]bool{"string headers": false, "byte headers": true} {
			t.Run(name, func(t *testing.T) {
				sr := tracetest.NewSpanRecorder()
				tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

				producer, msg := published(t, tp, "a", asBytes)

				p := New(
					Handler[string](queue.ProcessorFunc[message.Message[string]](func(ctx context.Context, m message.Message[string]) error {
						return nil
					})),
					TracerProvider[string](tp),
					Propagator[string](propagation.TraceContext{}),
					Logger[string](discardLogger()),
				)

				err := p.Process(context.Background(), msg, NewContext[string]()).Err()
				require.NoError(t, err)

				span := endedSpan(t, sr, "process")
				require.Equal(t, producer.TraceID(), span.SpanContext().TraceID())
				require.Equal(t, producer.SpanID(), span.Parent().SpanID())
				require.True(t, span.Parent().IsRemote())
			})
		}
	})

	t.Run("will start a new trace", func(t *testing.T) {
		t.Run("if the message carries no trace context", func(t *testing.T) {
			sr := tracetest.NewSpanRecorder()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

			p := New(
				Handler[string](queue.ProcessorFunc[message.Message[string]](func(ctx context.Context, m message.Message[string]) error {
					return nil
				})),
				TracerProvider[string](tp),
				Propagator[string](propagation.TraceContext{}),
				Logger[string](discardLogger()),
			)

			err := p.Process(context.Background(), message.New("a"), NewContext[string]()).Err()
			require.NoError(t, err)

			span := endedSpan(t, sr, "process")
			require.False(t, span.Parent().IsValid())
		})
	})
}

func TestComposed_ProcessBatch_Tracing(t *testing.T) {
	t.Run("will link to every propagated trace", func(t *testing.T) {
		sr := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

		first, a := published(t, tp, "a", true)
		second, b := published(t, tp, "b", false)

		p := New(
			BatchHandler[string](queue.ProcessorFunc[[]message.Message[string]](func(ctx context.Context, msgs []message.Message[string]) error {
				return nil
			})),
			TracerProvider[string](tp),
			Propagator[string](propagation.TraceContext{}),
			Logger[string](discardLogger()),
		)

		msgs := []message.Message[string]{a, message.New("untraced"), b}
		err := p.ProcessBatch(context.Background(), msgs, NewContext[string]()).Err()
		require.NoError(t, err)

		span := endedSpan(t, sr, "process batch")
		links := span.Links()
		require.Len(t, links, 2)
		require.Equal(t, first.SpanID(), links[0].SpanContext.SpanID())
		require.Equal(t, second.SpanID(), links[1].SpanContext.SpanID())
	})
}
