// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package message defines the immutable envelope which flows through a listener.
//
// A [Message] carries a payload along with an ordered set of [Headers]. Messages
// are created by queue adapters when a raw record is received and are never
// mutated afterwards.
package message

import (
	"iter"
	"log/slog"

	"github.com/google/uuid"
)

// IDHeader is the header key under which every [Message] stores its id.
const IDHeader = "id"

// Header is a single key/value pair attached to a [Message].
type Header struct {
	Key   string
	Value any
}

// Headers is an ordered mapping of unique string keys to values.
//
// The zero value is an empty set of headers.
type Headers struct {
	keys   []string
	values map[string]any
}

// NewHeaders builds [Headers] from the given pairs. When a key is repeated the
// later value replaces the earlier one but the key keeps its first position.
func NewHeaders(kvs ...Header) Headers {
	h := Headers{
		keys:   make([]string, 0, len(kvs)),
		values: make(map[string]any, len(kvs)),
	}
	for _, kv := range kvs {
		h.set(kv.Key, kv.Value)
	}
	return h
}

func (h *Headers) set(key string, value any) {
	if h.values == nil {
		h.values = make(map[string]any)
	}
	if _, exists := h.values[key]; !exists {
		h.keys = append(h.keys, key)
	}
	h.values[key] = value
}

// Get returns the value stored under key.
func (h Headers) Get(key string) (any, bool) {
	v, ok := h.values[key]
	return v, ok
}

// String returns the value stored under key if it is a string.
func (h Headers) String(key string) (string, bool) {
	v, ok := h.values[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Len reports the number of headers.
func (h Headers) Len() int {
	return len(h.keys)
}

// Keys returns the header keys in insertion order.
func (h Headers) Keys() []string {
	return append([]string(nil), h.keys...)
}

// All iterates over the headers in insertion order.
func (h Headers) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, k := range h.keys {
			if !yield(k, h.values[k]) {
				return
			}
		}
	}
}

func (h Headers) clone() Headers {
	c := Headers{
		keys:   make([]string, 0, len(h.keys)+1),
		values: make(map[string]any, len(h.keys)+1),
	}
	for k, v := range h.All() {
		c.set(k, v)
	}
	return c
}

// Message is an immutable payload plus headers.
type Message[T any] struct {
	id      string
	payload T
	headers Headers
}

// Options are the configurable values of a [Message].
type Options struct {
	id      string
	headers Headers
}

// Option sets a value on [Options].
type Option func(*Options)

// WithID sets the message id. By default a random UUID is generated.
func WithID(id string) Option {
	return func(o *Options) {
		o.id = id
	}
}

// WithHeaders sets the message headers.
func WithHeaders(kvs ...Header) Option {
	return func(o *Options) {
		o.headers = NewHeaders(kvs...)
	}
}

// New creates a [Message] from the given payload.
func New[T any](payload T, opts ...Option) Message[T] {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}

	headers := o.headers.clone()
	id := o.id
	if id == "" {
		if s, ok := headers.String(IDHeader); ok && s != "" {
			id = s
		} else {
			id = uuid.NewString()
		}
	}
	headers.set(IDHeader, id)

	return Message[T]{
		id:      id,
		payload: payload,
		headers: headers,
	}
}

// ID returns the message id.
func (m Message[T]) ID() string {
	return m.id
}

// Payload returns the message payload.
func (m Message[T]) Payload() T {
	return m.payload
}

// Headers returns the message headers.
func (m Message[T]) Headers() Headers {
	return m.headers
}

// IDs returns the ids of the given messages in order.
func IDs[T any](msgs []Message[T]) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.id
	}
	return ids
}

// IDAttr returns a slog attribute for a message id.
func IDAttr(id string) slog.Attr {
	return slog.String("messaging.message.id", id)
}
