// Package random provides the seedable randomness used by the generator.
//
// Every decision the generator makes (tenant choice, duplicate and malformed
// injection, event contents, idempotency keys) draws from a Source so that a
// run can be reproduced from its seed and tests can script exact sequences.
package random

import (
	"io"
	"math/rand/v2"
	"time"
)

// Source is the random number source consumed by the generator.
//
// *rand.Rand from math/rand/v2 satisfies it, and because it includes
// Uint64 it is also a rand.Source for libraries that accept one.
type Source interface {
	Uint64() uint64
	Float64() float64
	IntN(n int) int
}

// New returns a PCG-backed Source seeded with seed.
func New(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewSeed returns a seed derived from the wall clock, for runs where no
// seed was requested.
func NewSeed() uint64 {
	return uint64(time.Now().UnixNano())
}

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// String returns n characters drawn uniformly from [a-z0-9].
func String(src Source, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[src.IntN(len(alphabet))]
	}
	return string(b)
}

// Reader adapts a Source to io.Reader so byte-oriented generators
// (uuid.NewRandomFromReader) stay reproducible under a seed.
func Reader(src Source) io.Reader {
	return &reader{src: src}
}

type reader struct {
	src Source
}

func (r *reader) Read(p []byte) (int, error) {
	for i := 0; i < len(p); i += 8 {
		v := r.src.Uint64()
		for j := 0; j < 8 && i+j < len(p); j++ {
			p[i+j] = byte(v >> (8 * j))
		}
	}
	return len(p), nil
}
