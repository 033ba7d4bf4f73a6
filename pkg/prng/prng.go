// Package prng provides a seeded io.Reader so fixture generators such as
// faker produce the same data on every run.
package prng

import (
	"encoding/binary"
	"io"
	"math/rand"
)

// Reader is a deterministic io.Reader backed by a math/rand RNG.
type Reader struct {
	r *rand.Rand
}

// New returns a new deterministic PRNG reader seeded by an integer.
func New(seed int64) io.Reader {
	return &Reader{r: rand.New(rand.NewSource(seed))}
}

// Read fills p with pseudorandom bytes.
func (r *Reader) Read(p []byte) (int, error) {
	var buf [8]byte
	for i := 0; i < len(p); i += 8 {
		binary.LittleEndian.PutUint64(buf[:], uint64(r.r.Int63()))
		copy(p[i:], buf[:])
	}
	return len(p), nil
}
