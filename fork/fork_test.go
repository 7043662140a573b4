package fork

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCrossesBoundary(t *testing.T) {
	Update(&Config{Boundaries: []uint64{100, 200}})
	defer Update(&Config{})

	require.True(t, CrossesBoundary(90, 150))
	require.False(t, CrossesBoundary(100, 150))
	require.True(t, CrossesBoundary(150, 250))
	require.False(t, CrossesBoundary(300, 400))
}

func TestIsBoundary(t *testing.T) {
	Update(&Config{Boundaries: []uint64{50}})
	defer Update(&Config{})

	require.True(t, IsBoundary(50))
	require.False(t, IsBoundary(51))
}
