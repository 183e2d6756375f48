// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kafka

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/z5labs/listener/queue/kafka"

type metricsRecorder struct {
	messagesConsumed  metric.Int64Counter
	messagesCommitted metric.Int64Counter
}

func newMetricsRecorder(mp metric.MeterProvider) *metricsRecorder {
	meter := mp.Meter(meterName)

	messagesConsumed, err := meter.Int64Counter(
		"messaging.client.consumed.messages",
		metric.WithDescription("Total number of Kafka records converted into messages"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		messagesConsumed, _ = noop.Meter{}.Int64Counter("")
	}

	messagesCommitted, err := meter.Int64Counter(
		"messaging.client.committed.messages",
		metric.WithDescription("Total number of Kafka messages successfully committed"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		messagesCommitted, _ = noop.Meter{}.Int64Counter("")
	}

	return &metricsRecorder{
		messagesConsumed:  messagesConsumed,
		messagesCommitted: messagesCommitted,
	}
}

func partitionAttributes(topic string, partition int32) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("messaging.destination.name", topic),
		attribute.Int("messaging.destination.partition.id", int(partition)),
	)
}

func (m *metricsRecorder) recordConsumed(ctx context.Context, topic string, partition int32) {
	m.messagesConsumed.Add(ctx, 1, partitionAttributes(topic, partition))
}

func (m *metricsRecorder) recordCommitted(ctx context.Context, topic string, partition int32) {
	m.messagesCommitted.Add(ctx, 1, partitionAttributes(topic, partition))
}
