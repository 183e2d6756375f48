// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/z5labs/listener"
	"github.com/z5labs/listener/message"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
)

type recordsCommitter interface {
	CommitRecords(context.Context, ...*kgo.Record) error
}

// MissingHeaderError is returned when a message lacks the headers needed
// to commit its offset.
type MissingHeaderError struct {
	MessageID string
	Header    string
}

func (e MissingHeaderError) Error() string {
	return fmt.Sprintf("kafka: message %s is missing header %q", e.MessageID, e.Header)
}

// Acknowledger commits the offsets of acknowledged messages.
type Acknowledger struct {
	committer recordsCommitter
	log       *slog.Logger
	metrics   *metricsRecorder
}

// NewAcknowledger initializes an [Acknowledger] committing through client.
func NewAcknowledger(client *kgo.Client) *Acknowledger {
	return newAcknowledger(client)
}

func newAcknowledger(committer recordsCommitter) *Acknowledger {
	return &Acknowledger{
		committer: committer,
		log:       listener.Logger("github.com/z5labs/listener/queue/kafka"),
		metrics:   newMetricsRecorder(otel.GetMeterProvider()),
	}
}

// Acknowledge implements the [queue.Acknowledger] interface.
func (a *Acknowledger) Acknowledge(ctx context.Context, msgs []message.Message[[]byte]) error {
	records := make([]*kgo.Record, 0, len(msgs))
	for _, msg := range msgs {
		record, err := toRecord(msg)
		if err != nil {
			return err
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil
	}

	err := a.committer.CommitRecords(ctx, records...)
	if err != nil {
		return fmt.Errorf("kafka: failed to commit offsets: %w", err)
	}

	for _, record := range records {
		a.metrics.recordCommitted(ctx, record.Topic, record.Partition)
		a.log.DebugContext(ctx, "committed offset", RecordAttr(record))
	}
	return nil
}

func toRecord(msg message.Message[[]byte]) (*kgo.Record, error) {
	h := msg.Headers()

	topic, ok := h.String(TopicHeader)
	if !ok {
		return nil, MissingHeaderError{MessageID: msg.ID(), Header: TopicHeader}
	}
	partition, ok := header[int32](h, PartitionHeader)
	if !ok {
		return nil, MissingHeaderError{MessageID: msg.ID(), Header: PartitionHeader}
	}
	offset, ok := header[int64](h, OffsetHeader)
	if !ok {
		return nil, MissingHeaderError{MessageID: msg.ID(), Header: OffsetHeader}
	}
	leaderEpoch, _ := header[int32](h, LeaderEpochHeader)

	record := &kgo.Record{
		Topic:       topic,
		Partition:   partition,
		Offset:      offset,
		LeaderEpoch: leaderEpoch,
	}
	return record, nil
}

func header[T any](h message.Headers, key string) (T, bool) {
	v, ok := h.Get(key)
	if !ok {
		return *new(T), false
	}
	t, ok := v.(T)
	return t, ok
}
