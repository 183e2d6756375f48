// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package container

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/z5labs/listener/message"
	"github.com/z5labs/listener/pipeline"
	"github.com/z5labs/listener/queue"
	"github.com/z5labs/listener/sink"

	"github.com/stretchr/testify/require"
)

type sliceConsumer struct {
	mu      sync.Mutex
	batches [][]message.Message[string]
}

func (c *sliceConsumer) Consume(ctx context.Context) ([]message.Message[string], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.batches) == 0 {
		return nil, queue.ErrEndOfQueue
	}
	b := c.batches[0]
	c.batches = c.batches[1:]
	return b, nil
}

func batches(n, size int) [][]message.Message[string] {
	bs := make([][]message.Message[string], n)
	for i := range bs {
		for range size {
			bs[i] = append(bs[i], message.New("m"))
		}
	}
	return bs
}

type limitedConsumerFunc func(context.Context, int) ([]message.Message[string], error)

func (f limitedConsumerFunc) Consume(ctx context.Context) ([]message.Message[string], error) {
	return f(ctx, 0)
}

func (f limitedConsumerFunc) ConsumeAtMost(ctx context.Context, n int) ([]message.Message[string], error) {
	return f(ctx, n)
}

func batchOf(n int) []message.Message[string] {
	msgs := make([]message.Message[string], n)
	for i := range msgs {
		msgs[i] = message.New("m")
	}
	return msgs
}

type recorder struct {
	mu       sync.Mutex
	payloads []string
}

func (r *recorder) Process(ctx context.Context, m message.Message[string]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, m.Payload())
	return nil
}

func (r *recorder) Payloads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.payloads...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newSink(strategy sink.Strategy[string]) *sink.Sink[string] {
	return sink.New(strategy, sink.WithLogger[string](discardLogger()))
}

func newPipeline(h queue.Processor[message.Message[string]]) *pipeline.Composed[string] {
	return pipeline.New(
		pipeline.Handler(h),
		pipeline.Logger[string](discardLogger()),
	)
}

func TestContainer_ProcessQueue(t *testing.T) {
	t.Run("will process every message until the end of the queue", func(t *testing.T) {
		consumer := &sliceConsumer{
			batches: [][]message.Message[string]{
				{message.New("a"), message.New("b")},
				{},
				{message.New("c")},
			},
		}
		rec := &recorder{}
		s := newSink(sink.FanOut[string]())
		c := New[string](consumer, newPipeline(rec), s, Logger[string](discardLogger()))

		err := c.ProcessQueue(context.Background())
		require.NoError(t, err)

		require.ElementsMatch(t, []string{"a", "b", "c"}, rec.Payloads())
		require.False(t, c.IsRunning())
		require.False(t, s.IsRunning())
		require.True(t, c.permits.TryAcquire(c.maxConcurrent))
	})

	t.Run("will never exceed the max concurrent messages", func(t *testing.T) {
		var inFlight, peak atomic.Int64
		h := queue.ProcessorFunc[message.Message[string]](func(ctx context.Context, m message.Message[string]) error {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)

			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return nil
		})

		consumer := &sliceConsumer{batches: batches(5, 2)}
		c := New[string](
			consumer,
			newPipeline(h),
			newSink(sink.FanOut[string]()),
			MaxConcurrentMessages[string](2),
			MaxMessagesPerPoll[string](2),
			Logger[string](discardLogger()),
		)

		err := c.ProcessQueue(context.Background())
		require.NoError(t, err)
		require.LessOrEqual(t, peak.Load(), int64(2))
		require.Positive(t, peak.Load())
	})

	t.Run("will return the permits of filtered out messages", func(t *testing.T) {
		var batchCalls atomic.Int64
		rejectAll := sink.MessageFilterFunc[string](func(message.Message[string]) bool {
			return false
		})

		consumer := &sliceConsumer{batches: batches(3, 2)}
		c := New[string](
			consumer,
			pipeline.New(
				pipeline.BatchHandler[string](queue.ProcessorFunc[[]message.Message[string]](func(ctx context.Context, msgs []message.Message[string]) error {
					batchCalls.Add(1)
					return nil
				})),
			),
			newSink(sink.FilteredBatch[string](rejectAll)),
			MaxConcurrentMessages[string](2),
			ShutdownTimeout[string](time.Second),
			Logger[string](discardLogger()),
		)

		err := c.ProcessQueue(context.Background())
		require.NoError(t, err)
		require.Zero(t, batchCalls.Load())
		require.True(t, c.permits.TryAcquire(c.maxConcurrent))
	})

	t.Run("will retry polling", func(t *testing.T) {
		t.Run("if the consumer fails", func(t *testing.T) {
			calls := 0
			consumer := queue.ConsumerFunc[[]message.Message[string]](func(ctx context.Context) ([]message.Message[string], error) {
				calls++
				switch calls {
				case 1:
					return nil, errors.New("broker unavailable")
				case 2:
					return []message.Message[string]{message.New("a")}, nil
				default:
					return nil, queue.ErrEndOfQueue
				}
			})
			rec := &recorder{}
			c := New[string](
				consumer,
				newPipeline(rec),
				newSink(sink.Ordered[string]()),
				PollBackOff[string](time.Millisecond),
				Logger[string](discardLogger()),
			)

			err := c.ProcessQueue(context.Background())
			require.NoError(t, err)
			require.Equal(t, 3, calls)
			require.Equal(t, []string{"a"}, rec.Payloads())
		})
	})

	t.Run("will shut down gracefully", func(t *testing.T) {
		t.Run("if the context is cancelled", func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			calls := 0
			consumer := queue.ConsumerFunc[[]message.Message[string]](func(ctx context.Context) ([]message.Message[string], error) {
				calls++
				if calls == 1 {
					return []message.Message[string]{message.New("a")}, nil
				}
				cancel()
				<-ctx.Done()
				return nil, ctx.Err()
			})
			rec := &recorder{}
			c := New[string](consumer, newPipeline(rec), newSink(sink.FanOut[string]()), Logger[string](discardLogger()))

			err := c.ProcessQueue(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"a"}, rec.Payloads())
		})
	})

	t.Run("will keep polling while messages are in flight", func(t *testing.T) {
		unblock := make(chan struct{})
		fastDone := make(chan struct{})

		h := queue.ProcessorFunc[message.Message[string]](func(ctx context.Context, m message.Message[string]) error {
			switch m.Payload() {
			case "slow":
				<-unblock
			case "fast":
				close(fastDone)
			}
			return nil
		})
		consumer := &sliceConsumer{
			batches: [][]message.Message[string]{
				{message.New("slow")},
				{message.New("fast")},
			},
		}
		c := New[string](consumer, newPipeline(h), newSink(sink.FanOut[string]()), Logger[string](discardLogger()))

		errCh := make(chan error, 1)
		go func() {
			errCh <- c.ProcessQueue(context.Background())
		}()

		select {
		case <-fastDone:
		case <-time.After(2 * time.Second):
			close(unblock)
			<-errCh
			require.FailNow(t, "second batch was not polled while the first was in flight")
		}

		close(unblock)
		require.NoError(t, <-errCh)
	})

	t.Run("will only ask for as many messages as it has free permits", func(t *testing.T) {
		unblock := make(chan struct{})
		slowStarted := make(chan struct{})

		h := queue.ProcessorFunc[message.Message[string]](func(ctx context.Context, m message.Message[string]) error {
			if m.Payload() == "slow" {
				close(slowStarted)
				<-unblock
			}
			return nil
		})

		var mu sync.Mutex
		var requested []int
		consumer := limitedConsumerFunc(func(ctx context.Context, n int) ([]message.Message[string], error) {
			mu.Lock()
			defer mu.Unlock()

			requested = append(requested, n)
			switch len(requested) {
			case 1:
				return []message.Message[string]{message.New("slow")}, nil
			case 2:
				<-slowStarted
				return batchOf(n), nil
			default:
				return nil, queue.ErrEndOfQueue
			}
		})

		c := New[string](
			consumer,
			newPipeline(h),
			newSink(sink.FanOut[string]()),
			MaxConcurrentMessages[string](4),
			Logger[string](discardLogger()),
		)

		errCh := make(chan error, 1)
		go func() {
			errCh <- c.ProcessQueue(context.Background())
		}()

		<-slowStarted
		time.Sleep(10 * time.Millisecond)
		close(unblock)
		require.NoError(t, <-errCh)

		mu.Lock()
		defer mu.Unlock()
		require.Equal(t, 4, requested[0])
		require.LessOrEqual(t, requested[1], 3)
	})

	t.Run("will return ErrShutdownTimeout", func(t *testing.T) {
		t.Run("if in-flight messages do not finish in time", func(t *testing.T) {
			unblock := make(chan struct{})
			defer close(unblock)

			h := queue.ProcessorFunc[message.Message[string]](func(ctx context.Context, m message.Message[string]) error {
				<-unblock
				return nil
			})
			consumer := &sliceConsumer{batches: batches(1, 1)}
			c := New[string](
				consumer,
				newPipeline(h),
				newSink(sink.FanOut[string]()),
				ShutdownTimeout[string](10*time.Millisecond),
				Logger[string](discardLogger()),
			)

			err := c.ProcessQueue(context.Background())
			require.ErrorIs(t, err, ErrShutdownTimeout)
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the sink cannot be started", func(t *testing.T) {
			c := New[string](&sliceConsumer{}, nil, newSink(sink.Batch[string]()), Logger[string](discardLogger()))

			err := c.ProcessQueue(context.Background())
			require.ErrorIs(t, err, sink.ErrNoPipeline)
			require.False(t, c.IsRunning())
		})
	})
}

func TestContainer_Healthy(t *testing.T) {
	t.Run("will be healthy while processing", func(t *testing.T) {
		var c *Container[string]

		var healthyDuring atomic.Bool
		h := queue.ProcessorFunc[message.Message[string]](func(ctx context.Context, m message.Message[string]) error {
			ok, err := c.Healthy(ctx)
			healthyDuring.Store(ok && err == nil)
			return nil
		})

		c = New[string](
			&sliceConsumer{batches: batches(1, 1)},
			newPipeline(h),
			newSink(sink.Ordered[string]()),
			Logger[string](discardLogger()),
		)

		ok, err := c.Healthy(context.Background())
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, c.ProcessQueue(context.Background()))
		require.True(t, healthyDuring.Load())

		ok, err = c.Healthy(context.Background())
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestNew(t *testing.T) {
	t.Run("will cap the messages per poll", func(t *testing.T) {
		c := New[string](
			&sliceConsumer{},
			newPipeline(&recorder{}),
			newSink(sink.Batch[string]()),
			MaxConcurrentMessages[string](4),
			MaxMessagesPerPoll[string](8),
		)
		require.Equal(t, int64(4), c.maxPerPoll)
	})

	t.Run("will keep the configured name", func(t *testing.T) {
		c := New[string](&sliceConsumer{}, nil, newSink(sink.Batch[string]()), Name[string]("orders"))
		require.Equal(t, "orders", c.Name())
	})
}

func TestConfigOptions(t *testing.T) {
	t.Run("will use the defaults", func(t *testing.T) {
		t.Run("if nothing is configured", func(t *testing.T) {
			opts, err := ConfigOptions[string](context.Background(), Config{})
			require.NoError(t, err)

			c := New[string](&sliceConsumer{}, nil, newSink(sink.Batch[string]()), opts...)
			require.Equal(t, int64(DefaultMaxConcurrentMessages), c.maxConcurrent)
			require.Equal(t, int64(DefaultMaxMessagesPerPoll), c.maxPerPoll)
			require.Equal(t, DefaultPollBackOff, c.pollBackOff)
			require.Equal(t, DefaultShutdownTimeout, c.shutdownTimeout)
		})
	})

	t.Run("will read the environment", func(t *testing.T) {
		t.Setenv("LISTENER_MAX_CONCURRENT_MESSAGES", "20")
		t.Setenv("LISTENER_MAX_MESSAGES_PER_POLL", "5")
		t.Setenv("LISTENER_POLL_BACKOFF", "250ms")
		t.Setenv("LISTENER_SHUTDOWN_TIMEOUT", "1m")

		opts, err := ConfigOptions[string](context.Background(), EnvConfig())
		require.NoError(t, err)

		c := New[string](&sliceConsumer{}, nil, newSink(sink.Batch[string]()), opts...)
		require.Equal(t, int64(20), c.maxConcurrent)
		require.Equal(t, int64(5), c.maxPerPoll)
		require.Equal(t, 250*time.Millisecond, c.pollBackOff)
		require.Equal(t, time.Minute, c.shutdownTimeout)
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if a value cannot be parsed", func(t *testing.T) {
			t.Setenv("LISTENER_SHUTDOWN_TIMEOUT", "soon")

			_, err := ConfigOptions[string](context.Background(), EnvConfig())
			require.Error(t, err)
		})
	})
}
