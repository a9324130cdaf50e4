package sampling

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThreadSafePRNG(t *testing.T) {
	prng, err := NewPRNG()
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := prng.Read(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
}

func TestKeyedPRNGDeterminism(t *testing.T) {
	key := []byte("seed")

	a, err := NewKeyedPRNG(key)
	require.NoError(t, err)
	b, err := NewKeyedPRNG(key)
	require.NoError(t, err)

	bufA := make([]byte, 128)
	bufB := make([]byte, 128)
	_, err = a.Read(bufA)
	require.NoError(t, err)
	_, err = b.Read(bufB)
	require.NoError(t, err)
	require.Equal(t, bufA, bufB)

	// Reset rewinds the stream.
	a.Reset()
	bufC := make([]byte, 128)
	_, err = a.Read(bufC)
	require.NoError(t, err)
	require.Equal(t, bufA, bufC)

	require.Equal(t, key, a.Key())
}
