// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package sink

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/z5labs/listener/sink"

type metricsRecorder struct {
	messagesEmitted    metric.Int64Counter
	messagesReleased   metric.Int64Counter
	processingFailures metric.Int64Counter
}

func newMetricsRecorder(mp metric.MeterProvider) (*metricsRecorder, error) {
	meter := mp.Meter(meterName)

	messagesEmitted, err := meter.Int64Counter(
		"messaging.sink.messages.emitted",
		metric.WithDescription("Total number of messages accepted by a sink"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	messagesReleased, err := meter.Int64Counter(
		"messaging.sink.messages.released",
		metric.WithDescription("Total number of messages whose back pressure slot was released"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	processingFailures, err := meter.Int64Counter(
		"messaging.sink.processing.failures",
		metric.WithDescription("Total number of messages which failed processing"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsRecorder{
		messagesEmitted:    messagesEmitted,
		messagesReleased:   messagesReleased,
		processingFailures: processingFailures,
	}, nil
}

func noopMetricsRecorder() *metricsRecorder {
	m, _ := newMetricsRecorder(noop.NewMeterProvider())
	return m
}

func sinkAttributes(name string, strategy fmt.Stringer) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("sink.name", name),
		attribute.String("sink.strategy", strategy.String()),
	)
}

func (m *metricsRecorder) recordEmitted(ctx context.Context, name string, strategy fmt.Stringer, n int) {
	m.messagesEmitted.Add(ctx, int64(n), sinkAttributes(name, strategy))
}

func (m *metricsRecorder) recordReleased(ctx context.Context, name string, strategy fmt.Stringer, n int) {
	m.messagesReleased.Add(ctx, int64(n), sinkAttributes(name, strategy))
}

func (m *metricsRecorder) recordFailure(ctx context.Context, name string, strategy fmt.Stringer, n int) {
	m.processingFailures.Add(ctx, int64(n), sinkAttributes(name, strategy))
}
