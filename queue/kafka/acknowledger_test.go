// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kafka

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/z5labs/listener/message"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/metric/noop"
)

type recordsCommitterFunc func(context.Context, ...*kgo.Record) error

func (f recordsCommitterFunc) CommitRecords(ctx context.Context, records ...*kgo.Record) error {
	return f(ctx, records...)
}

func testAcknowledger(committer recordsCommitter) *Acknowledger {
	a := newAcknowledger(committer)
	a.log = slog.New(slog.DiscardHandler)
	a.metrics = newMetricsRecorder(noop.NewMeterProvider())
	return a
}

func TestAcknowledger_Acknowledge(t *testing.T) {
	t.Run("will commit the record coordinates", func(t *testing.T) {
		var committed []*kgo.Record
		a := testAcknowledger(recordsCommitterFunc(func(ctx context.Context, records ...*kgo.Record) error {
			committed = records
			return nil
		}))

		msgs := []message.Message[[]byte]{
			toMessage(&kgo.Record{Topic: "orders", Partition: 1, Offset: 10, LeaderEpoch: 4}),
			toMessage(&kgo.Record{Topic: "orders", Partition: 2, Offset: 3}),
		}

		err := a.Acknowledge(context.Background(), msgs)
		require.NoError(t, err)
		require.Equal(t, []*kgo.Record{
			{Topic: "orders", Partition: 1, Offset: 10, LeaderEpoch: 4},
			{Topic: "orders", Partition: 2, Offset: 3},
		}, committed)
	})

	t.Run("will return a MissingHeaderError", func(t *testing.T) {
		t.Run("if the message did not come from kafka", func(t *testing.T) {
			called := false
			a := testAcknowledger(recordsCommitterFunc(func(ctx context.Context, records ...*kgo.Record) error {
				called = true
				return nil
			}))

			err := a.Acknowledge(context.Background(), []message.Message[[]byte]{message.New([]byte("hi"), message.WithID("1"))})

			var herr MissingHeaderError
			require.ErrorAs(t, err, &herr)
			require.Equal(t, TopicHeader, herr.Header)
			require.Equal(t, "1", herr.MessageID)
			require.False(t, called)
		})
	})

	t.Run("will return the commit error", func(t *testing.T) {
		commitErr := errors.New("rebalance in progress")
		a := testAcknowledger(recordsCommitterFunc(func(ctx context.Context, records ...*kgo.Record) error {
			return commitErr
		}))

		msgs := []message.Message[[]byte]{toMessage(&kgo.Record{Topic: "orders", Offset: 1})}

		err := a.Acknowledge(context.Background(), msgs)
		require.ErrorIs(t, err, commitErr)
	})

	t.Run("will not commit", func(t *testing.T) {
		t.Run("if there are no messages", func(t *testing.T) {
			called := false
			a := testAcknowledger(recordsCommitterFunc(func(ctx context.Context, records ...*kgo.Record) error {
				called = true
				return nil
			}))

			require.NoError(t, a.Acknowledge(context.Background(), nil))
			require.False(t, called)
		})
	})
}
