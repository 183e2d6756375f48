// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/z5labs/listener"
	"github.com/z5labs/listener/config"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"github.com/twmb/franz-go/plugin/kslog"
	"go.opentelemetry.io/otel"
)

// Config holds configuration readers for the Kafka client.
type Config struct {
	Brokers          config.Reader[[]string]
	GroupID          config.Reader[string]
	Topics           config.Reader[[]string]
	SessionTimeout   config.Reader[time.Duration]
	RebalanceTimeout config.Reader[time.Duration]
	FetchMaxBytes    config.Reader[int32]
	TLSConfig        config.Reader[*tls.Config]
}

func commaSeparated(r config.Reader[string]) config.Reader[[]string] {
	return config.Map(r, func(ctx context.Context, s string) ([]string, error) {
		return strings.Split(s, ","), nil
	})
}

// BrokersFromEnv reads Kafka broker addresses from the KAFKA_BROKERS environment variable.
// Brokers should be comma-separated (e.g., "localhost:9092,localhost:9093").
func BrokersFromEnv() config.Reader[[]string] {
	return commaSeparated(config.Env("KAFKA_BROKERS"))
}

// GroupIDFromEnv reads the Kafka consumer group ID from the KAFKA_GROUP_ID environment variable.
func GroupIDFromEnv() config.Reader[string] {
	return config.Env("KAFKA_GROUP_ID")
}

// TopicsFromEnv reads the comma-separated topics to consume from KAFKA_TOPICS.
func TopicsFromEnv() config.Reader[[]string] {
	return commaSeparated(config.Env("KAFKA_TOPICS"))
}

// SessionTimeoutFromEnv reads the Kafka session timeout from the KAFKA_SESSION_TIMEOUT environment variable.
func SessionTimeoutFromEnv() config.Reader[time.Duration] {
	return config.DurationFromString(config.Env("KAFKA_SESSION_TIMEOUT"))
}

// RebalanceTimeoutFromEnv reads the Kafka rebalance timeout from the KAFKA_REBALANCE_TIMEOUT environment variable.
func RebalanceTimeoutFromEnv() config.Reader[time.Duration] {
	return config.DurationFromString(config.Env("KAFKA_REBALANCE_TIMEOUT"))
}

// FetchMaxBytesFromEnv reads the maximum fetch bytes from the KAFKA_FETCH_MAX_BYTES environment variable.
func FetchMaxBytesFromEnv() config.Reader[int32] {
	return config.Map(
		config.Env("KAFKA_FETCH_MAX_BYTES"),
		func(ctx context.Context, s string) (int32, error) {
			n, err := strconv.ParseInt(s, 10, 32)
			if err != nil {
				return 0, err
			}
			return int32(n), nil
		},
	)
}

// TLSConfigFromFiles loads a client certificate and a CA bundle into a [tls.Config].
func TLSConfigFromFiles(
	certFile config.Reader[string],
	keyFile config.Reader[string],
	caFile config.Reader[string],
) config.Reader[*tls.Config] {
	return config.ReaderFunc[*tls.Config](func(ctx context.Context) (config.Value[*tls.Config], error) {
		certPath, err := config.Read(ctx, certFile)
		if err != nil {
			return config.Value[*tls.Config]{}, err
		}
		keyPath, err := config.Read(ctx, keyFile)
		if err != nil {
			return config.Value[*tls.Config]{}, err
		}
		caPath, err := config.Read(ctx, caFile)
		if err != nil {
			return config.Value[*tls.Config]{}, err
		}

		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return config.Value[*tls.Config]{}, fmt.Errorf("failed to load client certificate: %w", err)
		}

		caCert, err := os.ReadFile(caPath)
		if err != nil {
			return config.Value[*tls.Config]{}, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		roots := x509.NewCertPool()
		if !roots.AppendCertsFromPEM(caCert) {
			return config.Value[*tls.Config]{}, ErrInvalidCACertificate
		}

		tlsConfig := &tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      roots,
			MinVersion:   tls.VersionTLS12,
		}
		return config.ValueOf(tlsConfig), nil
	})
}

var (
	// ErrInvalidCACertificate is returned when the CA file holds no PEM certificates.
	ErrInvalidCACertificate = errors.New("kafka: no certificates found in CA file")

	// ErrNoBrokers is returned by [NewClient] when no brokers are configured.
	ErrNoBrokers = errors.New("kafka: at least one broker must be configured")

	// ErrNoGroupID is returned by [NewClient] when no consumer group is configured.
	ErrNoGroupID = errors.New("kafka: consumer group id must be configured")

	// ErrNoTopics is returned by [NewClient] when no topics are configured.
	ErrNoTopics = errors.New("kafka: at least one topic must be configured")
)

// ClientOptions resolves cfg into franz-go client options. Offsets are never
// committed automatically.
func ClientOptions(ctx context.Context, cfg Config) ([]kgo.Opt, error) {
	brokers, err := config.Read(ctx, cfg.Brokers)
	if err != nil {
		return nil, err
	}
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}

	groupID, err := config.Read(ctx, cfg.GroupID)
	if err != nil {
		return nil, err
	}
	if groupID == "" {
		return nil, ErrNoGroupID
	}

	topics, err := config.Read(ctx, cfg.Topics)
	if err != nil {
		return nil, err
	}
	if len(topics) == 0 {
		return nil, ErrNoTopics
	}

	sessionTimeout, err := config.ReadOr(ctx, 45*time.Second, cfg.SessionTimeout)
	if err != nil {
		return nil, err
	}

	rebalanceTimeout, err := config.ReadOr(ctx, 30*time.Second, cfg.RebalanceTimeout)
	if err != nil {
		return nil, err
	}

	fetchMaxBytes, err := config.ReadOr(ctx, int32(50*1024*1024), cfg.FetchMaxBytes)
	if err != nil {
		return nil, err
	}

	tlsConfig, err := config.Read(ctx, cfg.TLSConfig)
	if err != nil {
		return nil, err
	}

	opts := []kgo.Opt{
		kgo.WithLogger(kslog.New(listener.Logger("github.com/twmb/franz-go/pkg/kgo"))),
		kgo.WithHooks(
			kotel.NewTracer(
				kotel.TracerProvider(otel.GetTracerProvider()),
				kotel.TracerPropagator(otel.GetTextMapPropagator()),
				kotel.LinkSpans(),
				kotel.ConsumerGroup(groupID),
			),
			kotel.NewMeter(
				kotel.MeterProvider(otel.GetMeterProvider()),
				kotel.WithMergedConnectsMeter(),
			),
		),
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.Balancers(kgo.CooperativeStickyBalancer()),
		kgo.SessionTimeout(sessionTimeout),
		kgo.RebalanceTimeout(rebalanceTimeout),
		kgo.FetchMaxBytes(fetchMaxBytes),
		kgo.DisableAutoCommit(),
	}
	if tlsConfig != nil {
		opts = append(opts, kgo.DialTLSConfig(tlsConfig))
	}
	return opts, nil
}

// NewClient creates a franz-go client from cfg.
func NewClient(ctx context.Context, cfg Config) (*kgo.Client, error) {
	opts, err := ClientOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to create client: %w", err)
	}
	return client, nil
}
