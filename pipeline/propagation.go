// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pipeline

import (
	"context"

	"github.com/z5labs/listener/message"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// headerCarrier reads propagated trace context out of message headers.
// Values may be strings or raw bytes, e.g. Kafka record headers.
type headerCarrier struct {
	headers message.Headers
}

var _ propagation.TextMapCarrier = headerCarrier{}

func (c headerCarrier) Get(key string) string {
	v, ok := c.headers.Get(key)
	if !ok {
		return ""
	}
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Set does nothing since message headers are immutable.
func (headerCarrier) Set(string, string) {}

func (c headerCarrier) Keys() []string {
	return c.headers.Keys()
}

// remoteSpanContext returns the span context the producer of msg propagated.
func remoteSpanContext[T any](p propagation.TextMapPropagator, msg message.Message[T]) trace.SpanContext {
	ctx := p.Extract(context.Background(), headerCarrier{headers: msg.Headers()})
	return trace.SpanContextFromContext(ctx)
}
