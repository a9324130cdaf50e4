package buffer

import (
	"encoding/binary"
	"io"
)

// ReadUint8 reads a single byte from r.
func ReadUint8(r io.Reader) (c uint8, err error) {
	var buf [1]byte
	if _, err = io.ReadFull(r, buf[:]); err != nil {
		return
	}
	return buf[0], nil
}

// ReadUint64 reads a little-endian uint64 from r.
func ReadUint64(r io.Reader) (c uint64, err error) {
	var buf [8]byte
	if _, err = io.ReadFull(r, buf[:]); err != nil {
		return
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadUint64Slice fills c with little-endian uint64 values read from r.
func ReadUint64Slice(r io.Reader, c []uint64) (err error) {
	buf := make([]byte, chunkSize)
	for len(c) > 0 {
		n := len(c)
		if n > chunkSize/8 {
			n = chunkSize / 8
		}
		if _, err = io.ReadFull(r, buf[:n*8]); err != nil {
			return
		}
		for i := 0; i < n; i++ {
			c[i] = binary.LittleEndian.Uint64(buf[i*8:])
		}
		c = c[n:]
	}
	return
}
