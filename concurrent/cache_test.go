// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package concurrent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCache_GetOr(t *testing.T) {
	t.Run("will only create a value once", func(t *testing.T) {
		c := NewCache[string, int]()

		calls := 0
		create := func() (int, error) {
			calls++
			return 42, nil
		}

		v, err := c.GetOr("a", create)
		require.NoError(t, err)
		require.Equal(t, 42, v)

		v, err = c.GetOr("a", create)
		require.NoError(t, err)
		require.Equal(t, 42, v)
		require.Equal(t, 1, calls)
	})

	t.Run("will not cache a failed creation", func(t *testing.T) {
		c := NewCache[string, int]()
		createErr := errors.New("failed")

		_, err := c.GetOr("a", func() (int, error) { return 0, createErr })
		require.ErrorIs(t, err, createErr)

		_, ok := c.Get("a")
		require.False(t, ok)
	})
}

func TestCache_Range(t *testing.T) {
	c := NewCache[string, int]()
	c.GetOr("a", func() (int, error) { return 1, nil })
	c.GetOr("b", func() (int, error) { return 2, nil })

	sum := 0
	c.Range(func(_ string, v int) {
		sum += v
	})
	require.Equal(t, 3, sum)
}
