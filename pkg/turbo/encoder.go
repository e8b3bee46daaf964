package turbo

import "fmt"

// Streams holds the three rate-1/3 output streams, each N bits long.
type Streams struct {
	Systematic []uint8
	Parity1    []uint8
	Parity2    []uint8
}

// Len returns N.
func (s Streams) Len() int { return len(s.Systematic) }

// Encode turbo-encodes msg. Encoder #1 sees msg directly, encoder #2 sees
// msg interleaved; only the systematic stream of encoder #1 is kept.
func Encode(msg []uint8, t1, t2 *Trellis, il *Interleaver) (Streams, error) {
	if len(msg) == 0 {
		return Streams{Systematic: []uint8{}, Parity1: []uint8{}, Parity2: []uint8{}}, nil
	}
	if il == nil || il.Len() != len(msg) {
		return Streams{}, fmt.Errorf("turbo encode: interleaver does not cover %d bits", len(msg))
	}

	systematic, parity1 := EncodeRSC(msg, t1)

	permuted := make([]uint8, len(msg))
	interleaveInto(il, permuted, systematic)
	_, parity2 := EncodeRSC(permuted, t2)

	return Streams{
		Systematic: systematic,
		Parity1:    parity1,
		Parity2:    parity2,
	}, nil
}
