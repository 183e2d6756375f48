// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"context"
	"errors"
)

// HookFunc runs after a [Runtime] has returned.
type HookFunc func(context.Context) error

// HookRegistry collects post-run hooks while an application is being built.
type HookRegistry struct {
	hooks []HookFunc
}

// OnPostRun registers a hook. Hooks run in registration order.
func (r *HookRegistry) OnPostRun(hook HookFunc) {
	r.hooks = append(r.hooks, hook)
}

// HookedRuntime runs an inner [Runtime] followed by its post-run hooks.
type HookedRuntime struct {
	inner Runtime
	hooks []HookFunc
}

// Run implements the [Runtime] interface. Every hook runs even when the
// inner [Runtime] or an earlier hook fails; all errors are joined.
func (rt HookedRuntime) Run(ctx context.Context) error {
	runErr := rt.inner.Run(ctx)

	errs := []error{runErr}
	for _, hook := range rt.hooks {
		errs = append(errs, hook(ctx))
	}
	return errors.Join(errs...)
}

// WithHooks creates a [Builder] whose build function can register cleanup
// for the resources it creates next to where it creates them:
//
//	builder := app.WithHooks(func(ctx context.Context, h *app.HookRegistry) (app.Runtime, error) {
//	    pool := executor.NewPool(executor.MaxConcurrency(10))
//	    h.OnPostRun(pool.Close)
//	    ...
//	})
func WithHooks[T Runtime](f func(context.Context, *HookRegistry) (T, error)) Builder[HookedRuntime] {
	return BuilderFunc[HookedRuntime](func(ctx context.Context) (HookedRuntime, error) {
		registry := &HookRegistry{}

		inner, err := f(ctx, registry)
		if err != nil {
			return HookedRuntime{}, err
		}

		return HookedRuntime{
			inner: inner,
			hooks: registry.hooks,
		}, nil
	})
}
