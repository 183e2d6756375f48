// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kafka

import (
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// GroupIDAttr returns a [slog.Attr] for the consumer group.
func GroupIDAttr(groupID string) slog.Attr {
	return slog.String("messaging.consumer.group.name", groupID)
}

// TopicAttr returns a [slog.Attr] for the topic.
func TopicAttr(topic string) slog.Attr {
	return slog.String("messaging.destination.name", topic)
}

// PartitionAttr returns a [slog.Attr] for the partition.
func PartitionAttr(partition int32) slog.Attr {
	return slog.Int64("messaging.destination.partition.id", int64(partition))
}

// OffsetAttr returns a [slog.Attr] for the offset.
func OffsetAttr(offset int64) slog.Attr {
	return slog.Int64("messaging.kafka.offset", offset)
}

// RecordAttr groups the coordinates of a record.
func RecordAttr(record *kgo.Record) slog.Attr {
	return slog.Group(
		"kafka.record",
		TopicAttr(record.Topic),
		PartitionAttr(record.Partition),
		OffsetAttr(record.Offset),
	)
}
