// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package container

import "log/slog"

// ContainerAttr returns a [slog.Attr] for the identity of a [Container].
func ContainerAttr(name string) slog.Attr {
	return slog.String("listener.container.name", name)
}
