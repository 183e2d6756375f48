// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"context"
	"time"

	"github.com/z5labs/listener"
	"github.com/z5labs/listener/app"
	"github.com/z5labs/listener/config"
	"github.com/z5labs/listener/container"
	"github.com/z5labs/listener/health"
	"github.com/z5labs/listener/pipeline"
	"github.com/z5labs/listener/queue/kafka"
	"github.com/z5labs/listener/sink"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Config holds the application configuration.
type Config struct {
	listener.Config `config:",squash"`

	Kafka struct {
		Brokers            []string      `config:"brokers"`
		GroupID            string        `config:"group_id"`
		Topics             []string      `config:"topics"`
		SessionTimeout     time.Duration `config:"session_timeout"`
		HealthCheckTimeout time.Duration `config:"health_check_timeout"`
	} `config:"kafka"`
}

// Init connects to Kafka and assembles the listener container.
func Init(ctx context.Context, cfg Config, h *app.HookRegistry) (*container.Container[[]byte], error) {
	client, err := kafka.NewClient(ctx, kafka.Config{
		Brokers:        config.ReaderOf(cfg.Kafka.Brokers),
		GroupID:        config.ReaderOf(cfg.Kafka.GroupID),
		Topics:         config.ReaderOf(cfg.Kafka.Topics),
		SessionTimeout: nonZero(cfg.Kafka.SessionTimeout),
	})
	if err != nil {
		return nil, err
	}
	h.OnPostRun(func(ctx context.Context) error {
		client.Close()
		return nil
	})

	err = waitForBrokers(ctx, client, cfg.Kafka.HealthCheckTimeout)
	if err != nil {
		client.Close()
		return nil, err
	}

	s, err := newSink(cfg.Container)
	if err != nil {
		client.Close()
		return nil, err
	}

	orders := &OrderProcessor{
		log: listener.Logger("github.com/z5labs/listener/example/queue/kafka-listener/app"),
	}
	p := pipeline.New(
		pipeline.Handler(DecodeOrder(orders)),
		pipeline.BatchHandler(DecodeOrders(orders)),
		pipeline.Acknowledge[[]byte](kafka.NewAcknowledger(client), pipeline.AckOnSuccess),
	)

	c := container.New[[]byte](
		kafka.NewConsumer(client, kafka.MaxPollRecords(cfg.Container.MaxMessagesPerPoll)),
		p,
		s,
		containerOptions(cfg.Container)...,
	)
	return c, nil
}

func waitForBrokers(ctx context.Context, client *kgo.Client, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return health.WaitUntilHealthy(ctx, kafka.PingMonitor(client), time.Second)
}

func newSink(cfg listener.ContainerConfig) (sink.MessageSink[[]byte], error) {
	mode, err := sink.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	strategy, err := sink.StrategyFor[[]byte](mode, sink.MessageFilterFunc[[]byte](NonEmpty))
	if err != nil {
		return nil, err
	}

	s := sink.New(strategy, sink.WithName[[]byte](cfg.Name))
	if mode == sink.ModeOrdered {
		return sink.NewGrouping(s, kafka.GroupByPartition()), nil
	}
	return s, nil
}

func containerOptions(cfg listener.ContainerConfig) []container.Option[[]byte] {
	return []container.Option[[]byte]{
		container.Name[[]byte](cfg.Name),
		container.MaxConcurrentMessages[[]byte](cfg.MaxConcurrentMessages),
		container.MaxMessagesPerPoll[[]byte](cfg.MaxMessagesPerPoll),
		container.PollBackOff[[]byte](cfg.PollBackOff),
		container.ShutdownTimeout[[]byte](cfg.ShutdownTimeout),
	}
}

func nonZero(d time.Duration) config.Reader[time.Duration] {
	if d <= 0 {
		return nil
	}
	return config.ReaderOf(d)
}
