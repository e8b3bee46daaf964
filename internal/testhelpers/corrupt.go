package testhelpers

import (
	"math/bits"
	"math/rand"
)

// FlipBits returns a copy of packet with the given bit positions inverted.
// Position p addresses bit 7-(p%8) of byte p/8, so bit 0 is the MSB of the
// first byte.
func FlipBits(packet []byte, positions ...int) []byte {
	out := append([]byte(nil), packet...)
	for _, p := range positions {
		out[p/8] ^= 0x80 >> uint(p%8)
	}
	return out
}

// OverwriteBytes returns a copy of packet with values written at offset.
func OverwriteBytes(packet []byte, offset int, values ...byte) []byte {
	out := append([]byte(nil), packet...)
	copy(out[offset:], values)
	return out
}

// RandomBitPositions picks n distinct bit positions in [from, to) using rng.
func RandomBitPositions(rng *rand.Rand, n, from, to int) []int {
	seen := make(map[int]struct{}, n)
	positions := make([]int, 0, n)
	for len(positions) < n && len(seen) < to-from {
		p := from + rng.Intn(to-from)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		positions = append(positions, p)
	}
	return positions
}

// BitErrors counts the differing bits of a and b over their common prefix
// plus 8 per byte of length difference.
func BitErrors(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	errs := 0
	for i := 0; i < n; i++ {
		errs += bits.OnesCount8(a[i] ^ b[i])
	}
	diff := len(a) - len(b)
	if diff < 0 {
		diff = -diff
	}
	return errs + 8*diff
}
