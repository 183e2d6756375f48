// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/z5labs/listener/executor"
	"github.com/z5labs/listener/future"
	"github.com/z5labs/listener/message"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) (int64, []attribute.Set) {
	t.Helper()

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.True(t, sum.IsMonotonic)

			var (
				total int64
				attrs []attribute.Set
			)
			for _, dp := range sum.DataPoints {
				total += dp.Value
				attrs = append(attrs, dp.Attributes)
			}
			return total, attrs
		}
	}
	return 0, nil
}

func TestSink_Metrics(t *testing.T) {
	t.Run("will record emitted, released and failed messages", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

		p := &fakePipeline{
			outcome: func(ctx context.Context, msgs []message.Message[string]) *future.Future {
				if msgs[0].Payload() == "b" {
					return future.Rejected(errors.New("b is bad"))
				}
				return future.Resolved()
			},
		}
		s := New(
			FanOut[string](),
			WithName[string]("orders"),
			WithPipeline[string](p),
			WithExecutor[string](executor.Direct()),
			WithLogger[string](discardLogger()),
			WithMeterProvider[string](provider),
		)
		require.NoError(t, s.Start())

		ctx := context.Background()
		f := s.Emit(ctx, messages("a", "b", "c"), nil)
		require.NoError(t, f.Wait(ctx))

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(ctx, &rm))
		require.Len(t, rm.ScopeMetrics, 1)
		require.Equal(t, meterName, rm.ScopeMetrics[0].Scope.Name)

		emitted, attrs := sumOf(t, rm, "messaging.sink.messages.emitted")
		require.Equal(t, int64(3), emitted)
		require.Len(t, attrs, 1)

		name, ok := attrs[0].Value("sink.name")
		require.True(t, ok)
		require.Equal(t, "orders", name.AsString())

		strategy, ok := attrs[0].Value("sink.strategy")
		require.True(t, ok)
		require.Equal(t, "fan-out", strategy.AsString())

		released, _ := sumOf(t, rm, "messaging.sink.messages.released")
		require.Equal(t, int64(3), released)

		failures, _ := sumOf(t, rm, "messaging.sink.processing.failures")
		require.Equal(t, int64(1), failures)
	})

	t.Run("will not record anything", func(t *testing.T) {
		t.Run("if the sink is not running", func(t *testing.T) {
			reader := sdkmetric.NewManualReader()
			provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

			s := New(
				Batch[string](),
				WithPipeline[string](&fakePipeline{}),
				WithExecutor[string](executor.Direct()),
				WithMeterProvider[string](provider),
			)

			ctx := context.Background()
			s.Emit(ctx, messages("a"), nil)

			var rm metricdata.ResourceMetrics
			require.NoError(t, reader.Collect(ctx, &rm))

			emitted, _ := sumOf(t, rm, "messaging.sink.messages.emitted")
			require.Zero(t, emitted)
		})
	})
}
