package utils

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// TripleStride is the number of float32 values stored per point in a
// position (x, y, z) or color (r, g, b) buffer.
const TripleStride = 3

// NewTripleBuffer allocates a flat buffer holding n triples.
func NewTripleBuffer(n int) []float32 {
	return make([]float32, n*TripleStride)
}

// PutTriple writes the i-th triple of buf.
func PutTriple(buf []float32, i int, a, b, c float32) {
	base := i * TripleStride
	buf[base+0] = a
	buf[base+1] = b
	buf[base+2] = c
}

// Triple reads the i-th triple of buf.
func Triple(buf []float32, i int) (float32, float32, float32) {
	base := i * TripleStride
	return buf[base+0], buf[base+1], buf[base+2]
}

// FillTriples sets every triple in buf to (a, b, c).
func FillTriples(buf []float32, a, b, c float32) {
	for i := 0; i+TripleStride <= len(buf); i += TripleStride {
		buf[i+0], buf[i+1], buf[i+2] = a, b, c
	}
}

// TripleCount returns how many whole triples buf holds.
func TripleCount(buf []float32) int {
	return len(buf) / TripleStride
}

// CloneBuffer returns a copy of buf so the receiver never aliases the owner's
// backing array.
func CloneBuffer(buf []float32) []float32 {
	if buf == nil {
		return nil
	}
	out := make([]float32, len(buf))
	copy(out, buf)
	return out
}

// EncodeFloat32LE encodes buf as consecutive little-endian IEEE-754 floats,
// the layout GPU vertex buffers expect.
func EncodeFloat32LE(buf []float32) []byte {
	out := make([]byte, len(buf)*4)
	for i, v := range buf {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// DecodeFloat32LE is the inverse of EncodeFloat32LE.
func DecodeFloat32LE(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("buffer length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

// WriteFloat32LE streams buf to w in the EncodeFloat32LE layout.
func WriteFloat32LE(w io.Writer, buf []float32) error {
	_, err := w.Write(EncodeFloat32LE(buf))
	return err
}
