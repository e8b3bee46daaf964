package turbo

import (
	"fmt"
	"math"
	"strings"
)

// Algorithm names a pinned permutation generator. Encoder and decoder must
// agree on it; it is part of the wire contract together with the seed.
type Algorithm string

const (
	// AlgorithmMT19937 shuffles with MT19937 the way numpy's legacy
	// RandomState.permutation does. Seeds must fit in 32 bits.
	AlgorithmMT19937 Algorithm = "mt19937"

	// AlgorithmSplitMix64 shuffles with SplitMix64 and unbiased modulo
	// rejection.
	AlgorithmSplitMix64 Algorithm = "splitmix64"

	DefaultAlgorithm = AlgorithmMT19937
	DefaultSeed      = 1346
)

// ParseAlgorithm maps a configuration string to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(name))) {
	case AlgorithmMT19937, "":
		return AlgorithmMT19937, nil
	case AlgorithmSplitMix64:
		return AlgorithmSplitMix64, nil
	default:
		return "", configErrorf("interleaver", "unknown algorithm %q (must be one of: %s, %s)",
			name, AlgorithmMT19937, AlgorithmSplitMix64)
	}
}

// Interleaver is a fixed bijection π over [0, N). Apply maps
// out[i] = in[π(i)], Invert undoes it. It is immutable once built.
type Interleaver struct {
	perm []int
	inv  []int
}

// NewInterleaver builds the permutation for (length, seed, alg). Two calls
// with the same arguments always produce identical permutations.
func NewInterleaver(length int, seed uint64, alg Algorithm) (*Interleaver, error) {
	if length <= 0 {
		return nil, configErrorf("interleaver length", "must be positive, got %d", length)
	}

	var perm []int
	switch alg {
	case AlgorithmMT19937:
		if seed > math.MaxUint32 {
			return nil, configErrorf("seed", "%d exceeds 32 bits required by %s", seed, alg)
		}
		if uint64(length) > math.MaxUint32 {
			return nil, configErrorf("interleaver length", "%d exceeds 32 bits required by %s", length, alg)
		}
		perm = mt19937Permutation(length, uint32(seed))
	case AlgorithmSplitMix64:
		perm = splitMix64Permutation(length, seed)
	default:
		return nil, configErrorf("interleaver", "unknown algorithm %q", alg)
	}

	return newInterleaverFromPermutation(perm), nil
}

func newInterleaverFromPermutation(perm []int) *Interleaver {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return &Interleaver{perm: perm, inv: inv}
}

// Len returns N.
func (il *Interleaver) Len() int { return len(il.perm) }

// Permutation returns a copy of π.
func (il *Interleaver) Permutation() []int {
	return append([]int(nil), il.perm...)
}

// Apply reorders a bit sequence by π.
func (il *Interleaver) Apply(bits []uint8) ([]uint8, error) {
	return Interleave(il, bits)
}

// Invert reorders a bit sequence by π⁻¹.
func (il *Interleaver) Invert(bits []uint8) ([]uint8, error) {
	return Deinterleave(il, bits)
}

// Interleave returns seq reordered by π.
func Interleave[T any](il *Interleaver, seq []T) ([]T, error) {
	if len(seq) != len(il.perm) {
		return nil, fmt.Errorf("interleave: sequence length %d != interleaver length %d", len(seq), len(il.perm))
	}
	out := make([]T, len(seq))
	interleaveInto(il, out, seq)
	return out, nil
}

// Deinterleave returns seq reordered by π⁻¹.
func Deinterleave[T any](il *Interleaver, seq []T) ([]T, error) {
	if len(seq) != len(il.perm) {
		return nil, fmt.Errorf("deinterleave: sequence length %d != interleaver length %d", len(seq), len(il.perm))
	}
	out := make([]T, len(seq))
	deinterleaveInto(il, out, seq)
	return out, nil
}

// interleaveInto and deinterleaveInto assume len(dst) == len(src) == N.
func interleaveInto[T any](il *Interleaver, dst, src []T) {
	for i, p := range il.perm {
		dst[i] = src[p]
	}
}

func deinterleaveInto[T any](il *Interleaver, dst, src []T) {
	for i, q := range il.inv {
		dst[i] = src[q]
	}
}

func identity(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	return perm
}
