// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package try converts panics and deferred cleanup failures into errors.
package try

import (
	"errors"
	"io"

	"github.com/sourcegraph/conc/panics"
)

// Recover calls f and returns its error, or the recovered panic as an error.
func Recover(f func() error) (err error) {
	r := panics.Try(func() {
		err = f()
	})
	if r != nil {
		return r.AsError()
	}
	return err
}

// Close closes c and joins any failure into err.
func Close(err *error, c io.Closer) {
	cerr := c.Close()
	if cerr == nil {
		return
	}
	*err = errors.Join(*err, cerr)
}
