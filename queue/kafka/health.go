// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kafka

import (
	"context"

	"github.com/z5labs/listener/health"
)

type pinger interface {
	Ping(context.Context) error
}

// PingMonitor returns a [health.Monitor] which is healthy while at least
// one seed broker answers.
func PingMonitor(client pinger) health.Monitor {
	return health.MonitorFunc(func(ctx context.Context) (bool, error) {
		err := client.Ping(ctx)
		if err != nil {
			return false, err
		}
		return true, nil
	})
}
