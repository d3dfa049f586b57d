package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTripleBuffer(t *testing.T) {
	buf := NewTripleBuffer(3)
	require.Len(t, buf, 9)
	assert.Equal(t, 3, TripleCount(buf))

	FillTriples(buf, 1, 1, 1)
	PutTriple(buf, 1, 0, 1, 0.5)

	r, g, b := Triple(buf, 0)
	assert.Equal(t, [3]float32{1, 1, 1}, [3]float32{r, g, b})
	r, g, b = Triple(buf, 1)
	assert.Equal(t, [3]float32{0, 1, 0.5}, [3]float32{r, g, b})
	r, g, b = Triple(buf, 2)
	assert.Equal(t, [3]float32{1, 1, 1}, [3]float32{r, g, b})
}

func TestCloneBufferDoesNotAlias(t *testing.T) {
	src := []float32{1, 2, 3}
	dst := CloneBuffer(src)
	dst[0] = 42
	assert.Equal(t, float32(1), src[0])
	assert.Nil(t, CloneBuffer(nil))
}

func TestFloat32LE(t *testing.T) {
	in := []float32{0, 1, -2.5, 139.75}
	b := EncodeFloat32LE(in)
	require.Len(t, b, 16)
	// 1.0 is 0x3f800000
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, b[4:8])

	var w bytes.Buffer
	require.NoError(t, WriteFloat32LE(&w, in))
	assert.Equal(t, b, w.Bytes())

	out, err := DecodeFloat32LE(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = DecodeFloat32LE([]byte{1, 2, 3})
	assert.Error(t, err)
}
