package treehash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSum_SmallInputIsPlainSHA256(t *testing.T) {
	data := []byte("hello glacier")
	got, n, err := Sum(bytes.NewReader(data))
	require.NoError(t, err)

	want := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(want[:]), got)
	assert.Equal(t, int64(len(data)), n)
}

func TestSum_Empty(t *testing.T) {
	got, n, err := Sum(bytes.NewReader(nil))
	require.NoError(t, err)

	want := sha256.Sum256(nil)
	assert.Equal(t, hex.EncodeToString(want[:]), got)
	assert.Zero(t, n)
}

func TestSum_ThreeChunks(t *testing.T) {
	data := bytes.Repeat([]byte{'a'}, 2*ChunkSize+10)

	a := sha256.Sum256(data[:ChunkSize])
	b := sha256.Sum256(data[ChunkSize : 2*ChunkSize])
	c := sha256.Sum256(data[2*ChunkSize:])
	ab := sha256.Sum256(append(a[:], b[:]...))
	root := sha256.Sum256(append(ab[:], c[:]...))

	got, _, err := Sum(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(root[:]), got)
}

func TestCombine_PartHashesMatchWholeHash(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), (5*ChunkSize)/16+3)
	partSize := 2 * ChunkSize

	var parts [][]byte
	for off := 0; off < len(data); off += partSize {
		end := off + partSize
		if end > len(data) {
			end = len(data)
		}
		leaves, _, err := Leaves(bytes.NewReader(data[off:end]))
		require.NoError(t, err)
		parts = append(parts, Combine(leaves))
	}

	whole, _, err := Sum(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, whole, Hex(Combine(parts)))
}
