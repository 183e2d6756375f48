// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package queue defines the collaborators a message listener is assembled from.
//
//   - Consumer: receives batches of messages from a remote queue
//   - Processor: the user business logic for one message or a batch
//   - Acknowledger: confirms messages back to the queue so they are not redelivered
//
// A [QueueRuntime], typically a listener container, drives these collaborators
// until the [Consumer] returns [ErrEndOfQueue] or the application is asked
// to shut down. [Build] and [Run] turn a [QueueRuntime] into a runnable application:
//
//	builder := app.BuilderFunc[*container.Container[[]byte]](func(ctx context.Context) (*container.Container[[]byte], error) {
//	    return container.New(consumer, pipeline.New(...), sink.New(sink.FanOut[[]byte]())), nil
//	})
//	queue.Run(context.Background(), queue.Build(builder))
package queue
