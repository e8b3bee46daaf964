package turbo

// MT19937 (Matsumoto & Nishimura, 1998) seeded with init_genrand. The
// interleaver draws bounded integers from it exactly like numpy's legacy
// RandomState, so permutations match RandomState(seed).permutation(n).

const (
	mtN         = 624
	mtM         = 397
	mtMatrixA   = 0x9908b0df
	mtUpperMask = 0x80000000
	mtLowerMask = 0x7fffffff
)

type mt19937 struct {
	state [mtN]uint32
	index int
}

func newMT19937(seed uint32) *mt19937 {
	m := &mt19937{index: mtN}
	m.state[0] = seed
	for i := 1; i < mtN; i++ {
		prev := m.state[i-1]
		m.state[i] = 1812433253*(prev^(prev>>30)) + uint32(i)
	}
	return m
}

func (m *mt19937) twist() {
	for i := 0; i < mtN; i++ {
		y := (m.state[i] & mtUpperMask) | (m.state[(i+1)%mtN] & mtLowerMask)
		v := m.state[(i+mtM)%mtN] ^ (y >> 1)
		if y&1 != 0 {
			v ^= mtMatrixA
		}
		m.state[i] = v
	}
	m.index = 0
}

// Uint32 returns the next tempered output.
func (m *mt19937) Uint32() uint32 {
	if m.index >= mtN {
		m.twist()
	}
	y := m.state[m.index]
	m.index++

	y ^= y >> 11
	y ^= (y << 7) & 0x9d2c5680
	y ^= (y << 15) & 0xefc60000
	y ^= y >> 18
	return y
}

// interval returns a uniform value in [0, limit] using masked rejection.
func (m *mt19937) interval(limit uint32) uint32 {
	if limit == 0 {
		return 0
	}
	mask := limit
	mask |= mask >> 1
	mask |= mask >> 2
	mask |= mask >> 4
	mask |= mask >> 8
	mask |= mask >> 16
	for {
		v := m.Uint32() & mask
		if v <= limit {
			return v
		}
	}
}

func mt19937Permutation(n int, seed uint32) []int {
	perm := identity(n)
	rng := newMT19937(seed)
	for i := n - 1; i >= 1; i-- {
		j := int(rng.interval(uint32(i)))
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}
