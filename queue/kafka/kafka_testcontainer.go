//go:build testcontainers

// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/z5labs/listener/config"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// startKafka runs a single node KRaft broker reachable on localhost:9092.
// The container is terminated when the test finishes.
func startKafka(t *testing.T) []string {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image: "docker.io/apache/kafka-native:latest",
		HostConfigModifier: func(hc *container.HostConfig) {
			hc.NetworkMode = "host"
		},
		User: "root",
		Env: map[string]string{
			"KAFKA_NODE_ID":                   "1",
			"KAFKA_PROCESS_ROLES":             "broker,controller",
			"KAFKA_CONTROLLER_QUORUM_VOTERS":  "1@localhost:9093",
			"KAFKA_CONTROLLER_LISTENER_NAMES": "CONTROLLER",

			"KAFKA_LISTENERS":                      "PLAINTEXT://0.0.0.0:9092,CONTROLLER://0.0.0.0:9093",
			"KAFKA_ADVERTISED_LISTENERS":           "PLAINTEXT://localhost:9092",
			"KAFKA_LISTENER_SECURITY_PROTOCOL_MAP": "PLAINTEXT:PLAINTEXT,CONTROLLER:PLAINTEXT",
			"KAFKA_INTER_BROKER_LISTENER_NAME":     "PLAINTEXT",

			"KAFKA_LOG_DIRS":   "/var/lib/kafka/data",
			"KAFKA_CLUSTER_ID": "WmV3pZkQR0O6n5j3x8j6bg==",

			"KAFKA_OFFSETS_TOPIC_REPLICATION_FACTOR":         "1",
			"KAFKA_TRANSACTION_STATE_LOG_REPLICATION_FACTOR": "1",
			"KAFKA_TRANSACTION_STATE_LOG_MIN_ISR":            "1",
			"KAFKA_GROUP_INITIAL_REBALANCE_DELAY_MS":         "0",
			"KAFKA_AUTO_CREATE_TOPICS_ENABLE":                "false",
		},
		WaitingFor: wait.ForLog("Kafka Server started").WithStartupTimeout(60 * time.Second),
	}

	ctx := context.Background()
	broker, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start kafka container")

	t.Cleanup(func() {
		if err := broker.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	return []string{"localhost:9092"}
}

func adminClient(t *testing.T, brokers []string) *kadm.Client {
	t.Helper()

	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return kadm.NewClient(client)
}

func createTopic(t *testing.T, brokers []string, topic string, partitions int32) {
	t.Helper()

	resp, err := adminClient(t, brokers).CreateTopics(context.Background(), partitions, 1, nil, topic)
	require.NoError(t, err, "failed to create topic")
	for _, r := range resp {
		require.NoError(t, r.Err, "failed to create topic %s", r.Topic)
	}
}

func produce(t *testing.T, brokers []string, records ...*kgo.Record) {
	t.Helper()

	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.ProduceSync(ctx, records...).FirstErr(), "failed to produce records")
}

// committedOffset returns the next offset the group will consume from
// topic partition 0, or -1 if nothing was committed.
func committedOffset(t *testing.T, brokers []string, groupID, topic string) int64 {
	t.Helper()

	offsets, err := adminClient(t, brokers).FetchOffsets(context.Background(), groupID)
	require.NoError(t, err)

	o, ok := offsets.Lookup(topic, 0)
	if !ok {
		return -1
	}
	require.NoError(t, o.Err)
	return o.At
}

func newTestClient(t *testing.T, brokers []string, groupID, topic string) *kgo.Client {
	t.Helper()

	client, err := NewClient(context.Background(), Config{
		Brokers: config.ReaderOf(brokers),
		GroupID: config.ReaderOf(groupID),
		Topics:  config.ReaderOf([]string{topic}),
	})
	require.NoError(t, err)

	return client
}
