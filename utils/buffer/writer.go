// Package buffer implements helpers for writing and reading the fixed-width
// little-endian values used by the wire protocol and the on-disk key files.
package buffer

import (
	"encoding/binary"
	"io"
)

const chunkSize = 4096

// WriteUint8 writes a single byte to w.
func WriteUint8(w io.Writer, c uint8) (err error) {
	_, err = w.Write([]byte{c})
	return
}

// WriteUint64 writes c to w in little-endian order.
func WriteUint64(w io.Writer, c uint64) (err error) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], c)
	_, err = w.Write(buf[:])
	return
}

// WriteUint64Slice writes each element of c to w in little-endian order,
// without a length prefix.
func WriteUint64Slice(w io.Writer, c []uint64) (err error) {
	buf := make([]byte, chunkSize)
	for len(c) > 0 {
		n := len(c)
		if n > chunkSize/8 {
			n = chunkSize / 8
		}
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint64(buf[i*8:], c[i])
		}
		if _, err = w.Write(buf[:n*8]); err != nil {
			return
		}
		c = c[n:]
	}
	return
}
