// Package oblivious provides branchless selection helpers and unbiased
// bounded random draws. The settlement buffer uses these so the sequence and
// shape of its memory accesses never depends on secret values.
package oblivious

import (
	"crypto/subtle"
	"errors"
)

// ErrInvalidRange is returned when the bounds given to UniformInRange are
// not an ascending, non-empty range.
var ErrInvalidRange = errors.New("invalid range")

// Source represents the behavior required of a random source used by
// UniformInRange.
type Source interface {
	Uint64() uint64
}

// IsNonzero returns 1 if v is not zero and 0 otherwise, computed
// arithmetically from the sign bits rather than with a comparison branch.
func IsNonzero(v int64) int {
	return int(((v | -v) >> 63) & 1)
}

// Select returns a when cond is 1 and b when cond is 0. cond must be 0 or 1.
func Select(cond int, a int, b int) int {
	return a*cond | b*(1-cond)
}

// SelectUint16 returns a when cond is 1 and b when cond is 0.
func SelectUint16(cond int, a uint16, b uint16) uint16 {
	c := uint16(cond)
	return a*c | b*(1-c)
}

// Equal compares two equal-length byte slices in constant time, returning
// 1 when they match and 0 otherwise. Slices of different lengths compare
// to 0.
func Equal(x []byte, y []byte) int {
	return subtle.ConstantTimeCompare(x, y)
}

// UniformInRange returns a value uniformly distributed in [low, high) drawn
// from the source. Rejection sampling against a threshold prevents modulo
// bias. The loop consumes only fresh randomness, never secret state, so its
// iteration count (almost always one) leaks nothing about ledger contents.
func UniformInRange(src Source, low uint32, high uint32) (uint32, error) {
	if high <= low {
		return 0, ErrInvalidRange
	}

	rangeSize := uint64(high - low)
	threshold := ^uint64(0) - rangeSize

	for {
		r := src.Uint64()
		if r < threshold {
			return uint32(r%rangeSize) + low, nil
		}
	}
}
