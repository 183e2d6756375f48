// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package sink

import (
	"context"
	"fmt"

	"github.com/z5labs/listener/executor"
	"github.com/z5labs/listener/future"
	"github.com/z5labs/listener/message"
	"github.com/z5labs/listener/pipeline"
)

// KeyFunc returns the group a message belongs to.
type KeyFunc[T any] func(message.Message[T]) string

// GroupByHeader groups messages by the value of the given header.
// Messages without the header share the empty group.
func GroupByHeader[T any](key string) KeyFunc[T] {
	return func(m message.Message[T]) string {
		v, ok := m.Headers().Get(key)
		if !ok {
			return ""
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
}

// Grouping splits every emission into groups of messages sharing a key and
// emits each group to the wrapped [Sink] separately. Combined with [Ordered]
// this gives per group ordering while distinct groups run concurrently.
type Grouping[T any] struct {
	sink *Sink[T]
	key  KeyFunc[T]
}

// NewGrouping wraps s.
func NewGrouping[T any](s *Sink[T], key KeyFunc[T]) *Grouping[T] {
	return &Grouping[T]{
		sink: s,
		key:  key,
	}
}

// Emit implements the [MessageSink] interface.
func (g *Grouping[T]) Emit(ctx context.Context, msgs []message.Message[T], pc *pipeline.Context[T]) *future.Future {
	if len(msgs) == 0 || !g.sink.IsRunning() {
		return future.Resolved()
	}

	var order []string
	groups := make(map[string][]message.Message[T])
	for _, msg := range msgs {
		k := g.key(msg)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], msg)
	}

	fs := make([]*future.Future, 0, len(order))
	for _, k := range order {
		fs = append(fs, g.sink.Emit(ctx, groups[k], pc))
	}
	return future.All(fs...)
}

// SetPipeline implements the [MessageSink] interface.
func (g *Grouping[T]) SetPipeline(p pipeline.Pipeline[T]) error {
	return g.sink.SetPipeline(p)
}

// SetExecutor implements the [MessageSink] interface.
func (g *Grouping[T]) SetExecutor(e executor.Executor) error {
	return g.sink.SetExecutor(e)
}

// Start implements the [MessageSink] interface.
func (g *Grouping[T]) Start() error {
	return g.sink.Start()
}

// Stop implements the [MessageSink] interface.
func (g *Grouping[T]) Stop() {
	g.sink.Stop()
}

// IsRunning implements the [MessageSink] interface.
func (g *Grouping[T]) IsRunning() bool {
	return g.sink.IsRunning()
}

// Name implements the [MessageSink] interface.
func (g *Grouping[T]) Name() string {
	return g.sink.Name()
}
