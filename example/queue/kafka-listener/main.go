// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"os"

	"github.com/z5labs/listener"
	listenerapp "github.com/z5labs/listener/app"
	"github.com/z5labs/listener/example/queue/kafka-listener/app"
	"github.com/z5labs/listener/queue"
)

//go:embed config.yaml
var configBytes []byte

func main() {
	builder := listenerapp.WithHooks(func(ctx context.Context, h *listenerapp.HookRegistry) (listenerapp.RuntimeFunc, error) {
		var cfg app.Config
		err := listener.Unmarshal(&cfg, listener.DefaultConfig(), listener.ConfigSource(bytes.NewReader(configBytes)))
		if err != nil {
			return nil, err
		}

		shutdownOTel, err := cfg.InitializeOTel(ctx)
		if err != nil {
			return nil, err
		}

		c, err := app.Init(ctx, cfg, h)
		if err != nil {
			return nil, errors.Join(err, shutdownOTel(ctx))
		}
		h.OnPostRun(shutdownOTel)

		return c.ProcessQueue, nil
	})

	err := queue.Run(context.Background(), builder)
	if err != nil {
		os.Exit(1)
	}
}
