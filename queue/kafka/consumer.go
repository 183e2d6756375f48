// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/z5labs/listener"
	"github.com/z5labs/listener/message"
	"github.com/z5labs/listener/queue"
	"github.com/z5labs/listener/sink"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Headers set on every message converted from a Kafka record.
const (
	TopicHeader       = "kafka.topic"
	PartitionHeader   = "kafka.partition"
	OffsetHeader      = "kafka.offset"
	LeaderEpochHeader = "kafka.leader_epoch"
	KeyHeader         = "kafka.key"
)

// DefaultMaxPollRecords is the number of records requested per poll unless
// overridden with [MaxPollRecords].
const DefaultMaxPollRecords = 10

type recordsPoller interface {
	PollRecords(ctx context.Context, maxPollRecords int) kgo.Fetches
}

// ConsumerOption configures a [Consumer].
type ConsumerOption func(*Consumer)

// MaxPollRecords bounds the number of records returned by a single poll.
// It should not exceed the listener container's max messages per poll.
// Non-positive values are ignored.
func MaxPollRecords(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.maxPollRecords = n
		}
	}
}

// Propagator overrides the global [propagation.TextMapPropagator] used to
// carry each record's trace context into the message headers.
func Propagator(p propagation.TextMapPropagator) ConsumerOption {
	return func(c *Consumer) {
		c.propagator = p
	}
}

// Consumer polls records and converts them into messages.
type Consumer struct {
	poller         recordsPoller
	maxPollRecords int
	propagator     propagation.TextMapPropagator
	log            *slog.Logger
	metrics        *metricsRecorder
}

// NewConsumer initializes a [Consumer] polling from the given client.
func NewConsumer(client *kgo.Client, opts ...ConsumerOption) *Consumer {
	return newConsumer(client, opts...)
}

func newConsumer(poller recordsPoller, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		poller:         poller,
		maxPollRecords: DefaultMaxPollRecords,
		propagator:     otel.GetTextMapPropagator(),
		log:            listener.Logger("github.com/z5labs/listener/queue/kafka"),
		metrics:        newMetricsRecorder(otel.GetMeterProvider()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Consume implements the [queue.Consumer] interface.
//
// It returns [queue.ErrEndOfQueue] once the client has been closed.
func (c *Consumer) Consume(ctx context.Context) ([]message.Message[[]byte], error) {
	return c.ConsumeAtMost(ctx, c.maxPollRecords)
}

// ConsumeAtMost is like Consume but polls no more than n records.
// n is capped by [MaxPollRecords].
func (c *Consumer) ConsumeAtMost(ctx context.Context, n int) ([]message.Message[[]byte], error) {
	if n <= 0 || n > c.maxPollRecords {
		n = c.maxPollRecords
	}
	fetches := c.poller.PollRecords(ctx, n)

	var errs []error
	for _, fe := range fetches.Errors() {
		switch {
		case errors.Is(fe.Err, kgo.ErrClientClosed):
			return nil, queue.ErrEndOfQueue
		case errors.Is(fe.Err, context.Canceled), errors.Is(fe.Err, context.DeadlineExceeded):
			return nil, fe.Err
		}

		c.log.ErrorContext(
			ctx,
			"failed to fetch from partition",
			TopicAttr(fe.Topic),
			PartitionAttr(fe.Partition),
			slog.Any("error", fe.Err),
		)
		errs = append(errs, fmt.Errorf("kafka: fetch %s[%d]: %w", fe.Topic, fe.Partition, fe.Err))
	}

	records := fetches.Records()
	msgs := make([]message.Message[[]byte], 0, len(records))
	for _, record := range records {
		msgs = append(msgs, toMessage(record, traceHeaders(c.propagator, record)...))
		c.metrics.recordConsumed(ctx, record.Topic, record.Partition)
	}

	if len(msgs) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return msgs, nil
}

// toMessage converts record. The extra headers are added last and
// replace record headers with the same key.
func toMessage(record *kgo.Record, extra ...message.Header) message.Message[[]byte] {
	hdrs := []message.Header{
		{Key: TopicHeader, Value: record.Topic},
		{Key: PartitionHeader, Value: record.Partition},
		{Key: OffsetHeader, Value: record.Offset},
		{Key: LeaderEpochHeader, Value: record.LeaderEpoch},
		{Key: KeyHeader, Value: record.Key},
	}
	for _, h := range record.Headers {
		hdrs = append(hdrs, message.Header{Key: h.Key, Value: h.Value})
	}
	hdrs = append(hdrs, extra...)

	return message.New(
		record.Value,
		message.WithID(record.Topic+"-"+strconv.FormatInt(int64(record.Partition), 10)+"-"+strconv.FormatInt(record.Offset, 10)),
		message.WithHeaders(hdrs...),
	)
}

// traceHeaders injects the span context of record.Context. When the client
// is instrumented with kotel this is the receive span, which links back to
// the producer.
func traceHeaders(p propagation.TextMapPropagator, record *kgo.Record) []message.Header {
	if record.Context == nil {
		return nil
	}

	carrier := propagation.MapCarrier{}
	p.Inject(record.Context, carrier)

	keys := carrier.Keys()
	slices.Sort(keys)

	hdrs := make([]message.Header, 0, len(keys))
	for _, k := range keys {
		hdrs = append(hdrs, message.Header{Key: k, Value: carrier.Get(k)})
	}
	return hdrs
}

// GroupByPartition groups messages by topic and partition. Combined with
// [sink.Ordered] it preserves Kafka's per partition ordering.
func GroupByPartition() sink.KeyFunc[[]byte] {
	return func(m message.Message[[]byte]) string {
		topic, _ := m.Headers().String(TopicHeader)
		partition, _ := m.Headers().Get(PartitionHeader)
		return fmt.Sprintf("%s/%v", topic, partition)
	}
}
