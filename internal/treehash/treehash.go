// Package treehash computes the SHA-256 tree hash Glacier uses to verify
// archive and part content.
package treehash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// ChunkSize is the leaf size of the tree.
const ChunkSize = 1 << 20

// Leaves returns the SHA-256 of each 1 MiB chunk read from r.
// An empty reader yields a single hash of the empty input.
func Leaves(r io.Reader) ([][]byte, int64, error) {
	var (
		leaves [][]byte
		total  int64
		buf    = make([]byte, ChunkSize)
	)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			sum := sha256.Sum256(buf[:n])
			leaves = append(leaves, sum[:])
			total += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, total, fmt.Errorf("hashing: %w", err)
		}
	}
	if len(leaves) == 0 {
		sum := sha256.Sum256(nil)
		leaves = append(leaves, sum[:])
	}
	return leaves, total, nil
}

// Combine folds hashes pairwise until a single root remains. Part hashes of
// a multipart upload combine into the archive hash the same way, as long as
// the part size is a power-of-two multiple of ChunkSize.
func Combine(hashes [][]byte) []byte {
	if len(hashes) == 0 {
		sum := sha256.Sum256(nil)
		return sum[:]
	}
	level := hashes
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			h := sha256.New()
			h.Write(level[i])
			h.Write(level[i+1])
			next = append(next, h.Sum(nil))
		}
		level = next
	}
	return level[0]
}

// Sum returns the hex tree hash of everything read from r and its length.
func Sum(r io.Reader) (string, int64, error) {
	leaves, n, err := Leaves(r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(Combine(leaves)), n, nil
}

// Hex encodes a raw tree hash.
func Hex(h []byte) string {
	return hex.EncodeToString(h)
}
