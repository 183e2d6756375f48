// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package sink

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	testCases := []struct {
		Name string
		Mode Mode
	}{
		{Name: "fan-out", Mode: ModeFanOut},
		{Name: "batch", Mode: ModeBatch},
		{Name: "Ordered", Mode: ModeOrdered},
		{Name: "FILTERED-BATCH", Mode: ModeFilteredBatch},
	}

	for _, testCase := range testCases {
		t.Run("will parse "+testCase.Name, func(t *testing.T) {
			m, err := ParseMode(testCase.Name)
			require.NoError(t, err)
			require.Equal(t, testCase.Mode, m)
		})
	}

	t.Run("will return an UnknownModeError", func(t *testing.T) {
		t.Run("if the name is not recognized", func(t *testing.T) {
			_, err := ParseMode("round-robin")

			var uerr UnknownModeError
			require.ErrorAs(t, err, &uerr)
			require.Equal(t, "round-robin", uerr.Mode)
		})
	})
}

func TestStrategyFor(t *testing.T) {
	t.Run("will return the matching strategy", func(t *testing.T) {
		for _, m := range []Mode{ModeFanOut, ModeBatch, ModeOrdered, ModeFilteredBatch} {
			s, err := StrategyFor(m, acceptAll())
			require.NoError(t, err)
			require.Equal(t, m.String(), s.String())
		}
	})

	t.Run("will return a MissingFilterError", func(t *testing.T) {
		t.Run("if filtered-batch is requested without a filter", func(t *testing.T) {
			_, err := StrategyFor[string](ModeFilteredBatch, nil)
			require.ErrorAs(t, err, new(MissingFilterError))
		})
	})

	t.Run("will return an UnknownModeError", func(t *testing.T) {
		t.Run("if the mode is out of range", func(t *testing.T) {
			_, err := StrategyFor[string](Mode(42), nil)
			require.ErrorAs(t, err, new(UnknownModeError))
		})
	})
}
