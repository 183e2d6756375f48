// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package config provides composable readers for configuration values.
//
// A [Reader] yields a [Value] which may be unset. Readers are combined with
// [Map], [Or] and [Default] and finally resolved with [Read] or [ReadOr]:
//
//	maxConcurrent := config.Default(10, config.IntFromString(config.Env("LISTENER_MAX_CONCURRENT_MESSAGES")))
//	n, err := config.Read(ctx, maxConcurrent)
package config

import (
	"context"
	"os"
	"strconv"
	"time"
)

// Value is a possibly unset configuration value.
type Value[T any] struct {
	v   T
	set bool
}

// ValueOf returns a set [Value] holding v.
func ValueOf[T any](v T) Value[T] {
	return Value[T]{v: v, set: true}
}

// Value returns the held value and whether it was set.
func (v Value[T]) Value() (T, bool) {
	return v.v, v.set
}

// Reader reads a configuration value.
type Reader[T any] interface {
	Read(context.Context) (Value[T], error)
}

// ReaderFunc is an adapter to allow the use of ordinary functions as [Reader]s.
type ReaderFunc[T any] func(context.Context) (Value[T], error)

// Read implements the [Reader] interface.
func (f ReaderFunc[T]) Read(ctx context.Context) (Value[T], error) {
	return f(ctx)
}

// ReaderOf returns a [Reader] which always yields v.
func ReaderOf[T any](v T) Reader[T] {
	return ReaderFunc[T](func(context.Context) (Value[T], error) {
		return ValueOf(v), nil
	})
}

// Env reads the environment variable name. Unset and empty variables
// yield an unset [Value].
func Env(name string) Reader[string] {
	return ReaderFunc[string](func(context.Context) (Value[string], error) {
		s, ok := os.LookupEnv(name)
		if !ok || s == "" {
			return Value[string]{}, nil
		}
		return ValueOf(s), nil
	})
}

// Map transforms a set value read by r with f. Unset values pass through.
func Map[A, B any](r Reader[A], f func(context.Context, A) (B, error)) Reader[B] {
	return ReaderFunc[B](func(ctx context.Context) (Value[B], error) {
		va, err := r.Read(ctx)
		if err != nil {
			return Value[B]{}, err
		}
		a, ok := va.Value()
		if !ok {
			return Value[B]{}, nil
		}
		b, err := f(ctx, a)
		if err != nil {
			return Value[B]{}, err
		}
		return ValueOf(b), nil
	})
}

// Or yields the first set value from rs. Nil readers are skipped.
func Or[T any](rs ...Reader[T]) Reader[T] {
	return ReaderFunc[T](func(ctx context.Context) (Value[T], error) {
		for _, r := range rs {
			if r == nil {
				continue
			}
			v, err := r.Read(ctx)
			if err != nil {
				return Value[T]{}, err
			}
			if _, ok := v.Value(); ok {
				return v, nil
			}
		}
		return Value[T]{}, nil
	})
}

// Default yields def when r yields an unset value.
func Default[T any](def T, r Reader[T]) Reader[T] {
	return Or(r, ReaderOf(def))
}

// Read resolves r. An unset value resolves to the zero value of T.
func Read[T any](ctx context.Context, r Reader[T]) (T, error) {
	return ReadOr(ctx, *new(T), r)
}

// ReadOr resolves r, returning def when r is nil or yields an unset value.
func ReadOr[T any](ctx context.Context, def T, r Reader[T]) (T, error) {
	if r == nil {
		return def, nil
	}
	v, err := r.Read(ctx)
	if err != nil {
		return def, err
	}
	t, ok := v.Value()
	if !ok {
		return def, nil
	}
	return t, nil
}

// IntFromString parses the string read by r as a base 10 int.
func IntFromString(r Reader[string]) Reader[int] {
	return Map(r, func(_ context.Context, s string) (int, error) {
		return strconv.Atoi(s)
	})
}

// DurationFromString parses the string read by r with [time.ParseDuration].
func DurationFromString(r Reader[string]) Reader[time.Duration] {
	return Map(r, func(_ context.Context, s string) (time.Duration, error) {
		return time.ParseDuration(s)
	})
}

// Must resolves r and panics if reading fails.
func Must[T any](ctx context.Context, r Reader[T]) T {
	return MustOr(ctx, *new(T), r)
}

// MustOr resolves r like [ReadOr] but panics if reading fails.
func MustOr[T any](ctx context.Context, def T, r Reader[T]) T {
	v, err := ReadOr(ctx, def, r)
	if err != nil {
		panic(err)
	}
	return v
}
