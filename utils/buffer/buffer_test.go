package buffer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUint64RoundTrip(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, WriteUint64(buf, 0xdeadbeefcafebabe))
	require.NoError(t, WriteUint8(buf, 7))

	// Little-endian on the wire.
	require.Equal(t, byte(0xbe), buf.Bytes()[0])

	v, err := ReadUint64(buf)
	require.NoError(t, err)
	require.Equal(t, uint64(0xdeadbeefcafebabe), v)

	b, err := ReadUint8(buf)
	require.NoError(t, err)
	require.Equal(t, uint8(7), b)
}

func TestUint64SliceRoundTrip(t *testing.T) {
	// Longer than one internal chunk.
	src := make([]uint64, 1000)
	for i := range src {
		src[i] = uint64(i) * 0x9e3779b97f4a7c15
	}

	buf := new(bytes.Buffer)
	require.NoError(t, WriteUint64Slice(buf, src))
	require.Equal(t, len(src)*8, buf.Len())

	dst := make([]uint64, len(src))
	require.NoError(t, ReadUint64Slice(buf, dst))
	require.Equal(t, src, dst)

	// Short reads surface as errors.
	require.Error(t, ReadUint64Slice(bytes.NewReader(nil), dst))
}
