package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitReverse64(t *testing.T) {
	require.Equal(t, uint64(0), BitReverse64(0, 3))
	require.Equal(t, uint64(4), BitReverse64(1, 3))
	require.Equal(t, uint64(3), BitReverse64(6, 3))
	for i := uint64(0); i < 16; i++ {
		require.Equal(t, i, BitReverse64(BitReverse64(i, 4), 4))
	}
}

func TestMinMax(t *testing.T) {
	require.Equal(t, 3, Min(3, 5))
	require.Equal(t, 5, Max(3, 5))
	require.Equal(t, -1.5, Min(-1.5, 2.0))
}

func TestIsPowerOfTwo(t *testing.T) {
	require.True(t, IsPowerOfTwo(1))
	require.True(t, IsPowerOfTwo(4096))
	require.False(t, IsPowerOfTwo(0))
	require.False(t, IsPowerOfTwo(12))
	require.False(t, IsPowerOfTwo(-4))
}

func TestDivCeil(t *testing.T) {
	require.Equal(t, 0, DivCeil(0, 4))
	require.Equal(t, 1, DivCeil(1, 4))
	require.Equal(t, 2, DivCeil(5, 4))
}
