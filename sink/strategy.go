// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/z5labs/listener/future"
	"github.com/z5labs/listener/message"
	"github.com/z5labs/listener/pipeline"
)

// Strategy decides the concurrency and ordering with which a [Sink]
// runs emitted messages through its pipeline.
//
// The set of strategies is closed. Use [Batch], [FanOut], [Ordered]
// or [FilteredBatch].
type Strategy[T any] interface {
	fmt.Stringer

	emit(context.Context, emission[T], []message.Message[T], *pipeline.Context[T]) *future.Future
}

type batch[T any] struct{}

// Batch processes every emission as one unit of work through
// [pipeline.Pipeline.ProcessBatch].
func Batch[T any]() Strategy[T] {
	return batch[T]{}
}

func (batch[T]) String() string {
	return ModeBatch.String()
}

func (batch[T]) emit(ctx context.Context, s emission[T], msgs []message.Message[T], pc *pipeline.Context[T]) *future.Future {
	f := s.submit(ctx, func(ctx context.Context) *future.Future {
		return s.pipeline.ProcessBatch(ctx, msgs, pc)
	})

	return future.Handle(f, func(err error) {
		defer s.release(ctx, pc, msgs...)

		if err != nil {
			s.failed(ctx, msgs, err)
		}
	})
}

type fanOut[T any] struct{}

// FanOut processes every message independently through
// [pipeline.Pipeline.Process]. One message failing does not affect
// the others and no ordering is guaranteed.
func FanOut[T any]() Strategy[T] {
	return fanOut[T]{}
}

func (fanOut[T]) String() string {
	return ModeFanOut.String()
}

func (fanOut[T]) emit(ctx context.Context, s emission[T], msgs []message.Message[T], pc *pipeline.Context[T]) *future.Future {
	fs := make([]*future.Future, len(msgs))
	for i, msg := range msgs {
		f := s.submit(ctx, func(ctx context.Context) *future.Future {
			return s.pipeline.Process(ctx, msg, pc)
		})

		fs[i] = future.Handle(f, func(err error) {
			defer s.release(ctx, pc, msg)

			if err != nil {
				s.failed(ctx, []message.Message[T]{msg}, err)
			}
		})
	}
	return future.All(fs...)
}

type ordered[T any] struct{}

// Ordered processes messages one at a time in emission order. A message is
// only submitted once the previous one has completed.
//
// After a failure the remaining messages of the emission are skipped:
// they are released without being processed. The emission itself still
// completes successfully.
func Ordered[T any]() Strategy[T] {
	return ordered[T]{}
}

func (ordered[T]) String() string {
	return ModeOrdered.String()
}

func (ordered[T]) emit(ctx context.Context, s emission[T], msgs []message.Message[T], pc *pipeline.Context[T]) *future.Future {
	chain := future.Resolved()
	for _, msg := range msgs {
		chain = future.Compose(chain, func(err error) *future.Future {
			if err != nil {
				s.release(ctx, pc, msg)
				return future.Rejected(err)
			}

			f := s.submit(ctx, func(ctx context.Context) *future.Future {
				return s.pipeline.Process(ctx, msg, pc)
			})
			return future.Compose(f, func(err error) *future.Future {
				defer s.release(ctx, pc, msg)

				if err != nil {
					s.failed(ctx, []message.Message[T]{msg}, err)
					return future.Rejected(err)
				}
				return future.Resolved()
			})
		})
	}

	return future.Handle(chain, func(err error) {
		if err == nil {
			return
		}
		s.log.WarnContext(
			ctx,
			"ordered processing halted, remaining messages were skipped",
			NameAttr(s.name),
			slog.Any("error", err),
		)
	})
}

// MessageFilter decides whether a message should be processed.
type MessageFilter[T any] interface {
	Process(message.Message[T]) bool
}

// MessageFilterFunc is an adapter to allow the use of ordinary functions as [MessageFilter]s.
type MessageFilterFunc[T any] func(message.Message[T]) bool

// Process implements the [MessageFilter] interface.
func (f MessageFilterFunc[T]) Process(m message.Message[T]) bool {
	return f(m)
}

type filteredBatch[T any] struct {
	filter MessageFilter[T]
}

// FilteredBatch drops messages for which filter returns false and then
// behaves like [Batch] for the rest. Relative order is preserved.
//
// Dropped messages are not released by the [Sink]. Returning their back
// pressure slots is left to the caller.
func FilteredBatch[T any](filter MessageFilter[T]) Strategy[T] {
	return filteredBatch[T]{filter: filter}
}

func (filteredBatch[T]) String() string {
	return ModeFilteredBatch.String()
}

func (fb filteredBatch[T]) emit(ctx context.Context, s emission[T], msgs []message.Message[T], pc *pipeline.Context[T]) *future.Future {
	kept := make([]message.Message[T], 0, len(msgs))
	for _, msg := range msgs {
		if fb.filter.Process(msg) {
			kept = append(kept, msg)
		}
	}
	if len(kept) == 0 {
		return future.Resolved()
	}
	return batch[T]{}.emit(ctx, s, kept, pc)
}

// Mode names a [Strategy] for configuration.
type Mode int

const (
	ModeFanOut Mode = iota
	ModeBatch
	ModeOrdered
	ModeFilteredBatch
)

var modeNames = map[Mode]string{
	ModeFanOut:        "fan-out",
	ModeBatch:         "batch",
	ModeOrdered:       "ordered",
	ModeFilteredBatch: "filtered-batch",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// UnknownModeError is returned by [ParseMode] for unrecognized names.
type UnknownModeError struct {
	Mode string
}

func (e UnknownModeError) Error() string {
	return fmt.Sprintf("sink: unknown mode: %q", e.Mode)
}

// ParseMode parses the name of a [Mode], ignoring case.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, UnknownModeError{Mode: s}
}

// MissingFilterError is returned by [StrategyFor] when [ModeFilteredBatch]
// is requested without a [MessageFilter].
type MissingFilterError struct{}

func (MissingFilterError) Error() string {
	return "sink: filtered-batch mode requires a message filter"
}

// StrategyFor returns the [Strategy] for m. The filter is only used
// by [ModeFilteredBatch].
func StrategyFor[T any](m Mode, filter MessageFilter[T]) (Strategy[T], error) {
	switch m {
	case ModeFanOut:
		return FanOut[T](), nil
	case ModeBatch:
		return Batch[T](), nil
	case ModeOrdered:
		return Ordered[T](), nil
	case ModeFilteredBatch:
		if filter == nil {
			return nil, MissingFilterError{}
		}
		return FilteredBatch(filter), nil
	default:
		return nil, UnknownModeError{Mode: m.String()}
	}
}
