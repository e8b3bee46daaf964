package turbo

// SplitMix64 (Steele, Lea & Flood, 2014). Small, fully specified and easy to
// reproduce in any language with 64-bit unsigned arithmetic.

const splitMixGamma = 0x9E3779B97F4A7C15

type splitMix64 struct {
	state uint64
}

func (s *splitMix64) Uint64() uint64 {
	s.state += splitMixGamma
	z := s.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// bounded returns a uniform value in [0, bound) by rejecting draws below
// 2^64 mod bound.
func (s *splitMix64) bounded(bound uint64) uint64 {
	threshold := -bound % bound
	for {
		r := s.Uint64()
		if r >= threshold {
			return r % bound
		}
	}
}

func splitMix64Permutation(n int, seed uint64) []int {
	perm := identity(n)
	rng := &splitMix64{state: seed}
	for i := n - 1; i >= 1; i-- {
		j := int(rng.bounded(uint64(i) + 1))
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}
