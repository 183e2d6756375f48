// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package kafka adapts a franz-go client to the listener queue abstractions.
//
// A [Consumer] polls records and converts them into [message.Message]s whose
// headers carry the record coordinates:
//
//   - kafka.topic
//   - kafka.partition
//   - kafka.offset
//   - kafka.leader_epoch
//   - kafka.key
//
// An [Acknowledger] commits those coordinates back to the consumer group.
// Clients are created with [NewClient] which disables auto commit so offsets
// only advance once messages are acknowledged:
//
//	client, err := kafka.NewClient(ctx, kafka.Config{
//	    Brokers: kafka.BrokersFromEnv(),
//	    GroupID: kafka.GroupIDFromEnv(),
//	    Topics:  kafka.TopicsFromEnv(),
//	})
//	if err != nil {
//	    return err
//	}
//
//	c := container.New[[]byte](
//	    kafka.NewConsumer(client),
//	    pipeline.New(
//	        pipeline.Handler[[]byte](handler),
//	        pipeline.Acknowledge[[]byte](kafka.NewAcknowledger(client), pipeline.AckOnSuccess),
//	    ),
//	    sink.NewGrouping(sink.New(sink.Ordered[[]byte]()), kafka.GroupByPartition()),
//	)
package kafka
