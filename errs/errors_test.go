package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrProgrammerInvariantWraps(t *testing.T) {
	err := fmt.Errorf("limit %d below one: %w", 0, ErrProgrammerInvariant)
	require.ErrorIs(t, err, ErrProgrammerInvariant)
	require.False(t, errors.Is(err, ErrTransientNode))
}

func TestSentinelsAreDistinct(t *testing.T) {
	require.NotErrorIs(t, ErrTransientNode, ErrProgrammerInvariant)
	require.NotErrorIs(t, ErrMalformedBatch, ErrProgrammerInvariant)
	require.NotErrorIs(t, ErrMalformedBatch, ErrTransientNode)
}
