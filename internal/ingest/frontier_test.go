package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrontierAdvancesOverContiguousPrefix(t *testing.T) {
	t.Parallel()

	f := newFrontier(3)
	require.False(t, f.complete(5))
	require.Equal(t, 3, f.next)
	require.False(t, f.complete(4))
	require.True(t, f.complete(3))
	require.Equal(t, 6, f.next)
	require.False(t, f.complete(1), "indices behind the frontier are ignored")
	require.True(t, f.complete(6))
	require.Equal(t, 7, f.next)
	require.Empty(t, f.done)
}
