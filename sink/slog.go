// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package sink

import (
	"fmt"
	"log/slog"
)

// NameAttr returns a [slog.Attr] for the identity of a [Sink].
func NameAttr(name string) slog.Attr {
	return slog.String("sink.name", name)
}

// StrategyAttr returns a [slog.Attr] for the strategy of a [Sink].
func StrategyAttr(strategy fmt.Stringer) slog.Attr {
	return slog.String("sink.strategy", strategy.String())
}
