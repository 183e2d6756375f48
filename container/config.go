// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package container

import (
	"context"
	"time"

	"github.com/z5labs/listener/config"
)

// Config holds configuration readers for a [Container].
// Readers left nil, or yielding nothing, keep the defaults.
type Config struct {
	MaxConcurrentMessages config.Reader[int]
	MaxMessagesPerPoll    config.Reader[int]
	PollBackOff           config.Reader[time.Duration]
	ShutdownTimeout       config.Reader[time.Duration]
}

// MaxConcurrentMessagesFromEnv reads LISTENER_MAX_CONCURRENT_MESSAGES.
func MaxConcurrentMessagesFromEnv() config.Reader[int] {
	return config.IntFromString(config.Env("LISTENER_MAX_CONCURRENT_MESSAGES"))
}

// MaxMessagesPerPollFromEnv reads LISTENER_MAX_MESSAGES_PER_POLL.
func MaxMessagesPerPollFromEnv() config.Reader[int] {
	return config.IntFromString(config.Env("LISTENER_MAX_MESSAGES_PER_POLL"))
}

// PollBackOffFromEnv reads LISTENER_POLL_BACKOFF as a duration string, e.g. "1s".
func PollBackOffFromEnv() config.Reader[time.Duration] {
	return config.DurationFromString(config.Env("LISTENER_POLL_BACKOFF"))
}

// ShutdownTimeoutFromEnv reads LISTENER_SHUTDOWN_TIMEOUT as a duration string, e.g. "20s".
func ShutdownTimeoutFromEnv() config.Reader[time.Duration] {
	return config.DurationFromString(config.Env("LISTENER_SHUTDOWN_TIMEOUT"))
}

// EnvConfig returns a [Config] which reads every setting from the environment.
func EnvConfig() Config {
	return Config{
		MaxConcurrentMessages: MaxConcurrentMessagesFromEnv(),
		MaxMessagesPerPoll:    MaxMessagesPerPollFromEnv(),
		PollBackOff:           PollBackOffFromEnv(),
		ShutdownTimeout:       ShutdownTimeoutFromEnv(),
	}
}

// ConfigOptions resolves cfg into [Option]s.
func ConfigOptions[T any](ctx context.Context, cfg Config) ([]Option[T], error) {
	maxConcurrent, err := config.ReadOr(ctx, DefaultMaxConcurrentMessages, cfg.MaxConcurrentMessages)
	if err != nil {
		return nil, err
	}

	maxPerPoll, err := config.ReadOr(ctx, DefaultMaxMessagesPerPoll, cfg.MaxMessagesPerPoll)
	if err != nil {
		return nil, err
	}

	backOff, err := config.ReadOr(ctx, DefaultPollBackOff, cfg.PollBackOff)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := config.ReadOr(ctx, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	if err != nil {
		return nil, err
	}

	opts := []Option[T]{
		MaxConcurrentMessages[T](maxConcurrent),
		MaxMessagesPerPoll[T](maxPerPoll),
		PollBackOff[T](backOff),
		ShutdownTimeout[T](shutdownTimeout),
	}
	return opts, nil
}
