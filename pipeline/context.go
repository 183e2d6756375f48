// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pipeline

import (
	"context"

	"github.com/z5labs/listener/message"
)

// Interceptor observes message(s) before and after they are handled.
//
// For single message processing the slice passed to an Interceptor always
// holds exactly one message.
type Interceptor[T any] interface {
	// Intercept runs before the handler. Returning an error skips the handler
	// and is treated as a processing failure.
	Intercept(context.Context, []message.Message[T]) (context.Context, error)

	// AfterProcessing runs once the handler, and the error handler if any,
	// has completed. It receives the final processing error.
	AfterProcessing(context.Context, []message.Message[T], error)
}

// InterceptorFuncs is an adapter for building an [Interceptor] from functions.
// Either function may be nil.
type InterceptorFuncs[T any] struct {
	Before func(context.Context, []message.Message[T]) (context.Context, error)
	After  func(context.Context, []message.Message[T], error)
}

// Intercept implements the [Interceptor] interface.
func (f InterceptorFuncs[T]) Intercept(ctx context.Context, msgs []message.Message[T]) (context.Context, error) {
	if f.Before == nil {
		return ctx, nil
	}
	return f.Before(ctx, msgs)
}

// AfterProcessing implements the [Interceptor] interface.
func (f InterceptorFuncs[T]) AfterProcessing(ctx context.Context, msgs []message.Message[T], err error) {
	if f.After == nil {
		return
	}
	f.After(ctx, msgs, err)
}

// Context is the per emission side channel handed to a sink along with
// the messages it should process.
type Context[T any] struct {
	interceptors []Interceptor[T]
	release      func()
}

// ContextOption configures a [Context].
type ContextOption[T any] func(*Context[T])

// WithInterceptors appends interceptors which run before the pipeline's own.
func WithInterceptors[T any](is ...Interceptor[T]) ContextOption[T] {
	return func(c *Context[T]) {
		c.interceptors = append(c.interceptors, is...)
	}
}

// WithBackPressureRelease sets the callback which returns one unit of
// in-flight capacity to the poller.
func WithBackPressureRelease[T any](f func()) ContextOption[T] {
	return func(c *Context[T]) {
		c.release = f
	}
}

// NewContext initializes a [Context].
func NewContext[T any](opts ...ContextOption[T]) *Context[T] {
	c := &Context[T]{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Interceptors returns the emission scoped interceptors in order.
func (c *Context[T]) Interceptors() []Interceptor[T] {
	if c == nil {
		return nil
	}
	return c.interceptors
}

// ReleaseBackPressure invokes the back pressure release callback, if any.
func (c *Context[T]) ReleaseBackPressure() {
	if c == nil || c.release == nil {
		return
	}
	c.release()
}
