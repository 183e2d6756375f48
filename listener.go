// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package listener provides the shared logging and configuration used by
// queue message listeners.
//
// The message consumption engine lives in the [github.com/z5labs/listener/sink]
// package. A complete listener is assembled by the
// [github.com/z5labs/listener/container] package from a queue consumer,
// a processing pipeline and a sink.
package listener

import (
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// Logger returns a [slog.Logger] which emits through the global OTel
// logger provider under the given instrumentation scope name.
func Logger(name string) *slog.Logger {
	return otelslog.NewLogger(name)
}
