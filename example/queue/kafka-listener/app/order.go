// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/z5labs/listener/message"
	"github.com/z5labs/listener/queue"
)

// Order is the payload published to the orders topic.
type Order struct {
	OrderID    string  `json:"order_id"`
	CustomerID string  `json:"customer_id"`
	Total      float64 `json:"total"`
}

// OrderProcessor handles decoded orders.
type OrderProcessor struct {
	log *slog.Logger
}

// Process implements the [queue.Processor] interface.
func (p *OrderProcessor) Process(ctx context.Context, o Order) error {
	if o.OrderID == "" {
		return errors.New("order is missing an id")
	}

	p.log.InfoContext(
		ctx,
		"processed order",
		slog.String("order_id", o.OrderID),
		slog.String("customer_id", o.CustomerID),
		slog.Float64("total", o.Total),
	)
	return nil
}

// NonEmpty keeps messages which carry a payload. Tombstones are skipped.
func NonEmpty(msg message.Message[[]byte]) bool {
	return len(msg.Payload()) > 0
}

func decode(msg message.Message[[]byte]) (Order, error) {
	var o Order
	err := json.Unmarshal(msg.Payload(), &o)
	if err != nil {
		return Order{}, fmt.Errorf("failed to decode message %s: %w", msg.ID(), err)
	}
	return o, nil
}

// DecodeOrder adapts p to handle a single Kafka message.
func DecodeOrder(p queue.Processor[Order]) queue.Processor[message.Message[[]byte]] {
	return queue.ProcessorFunc[message.Message[[]byte]](func(ctx context.Context, msg message.Message[[]byte]) error {
		o, err := decode(msg)
		if err != nil {
			return err
		}
		return p.Process(ctx, o)
	})
}

// DecodeOrders adapts p to handle a batch of Kafka messages. Every
// message is attempted and the failures are joined.
func DecodeOrders(p queue.Processor[Order]) queue.Processor[[]message.Message[[]byte]] {
	return queue.ProcessorFunc[[]message.Message[[]byte]](func(ctx context.Context, msgs []message.Message[[]byte]) error {
		var errs []error
		for _, msg := range msgs {
			o, err := decode(msg)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			errs = append(errs, p.Process(ctx, o))
		}
		return errors.Join(errs...)
	})
}
