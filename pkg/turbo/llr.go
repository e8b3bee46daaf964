package turbo

import "math"

// LLRMapper turns received hard bits into channel LLRs. The channel model is
// the caller's concern; the decoder only sees LLRs.
type LLRMapper interface {
	Map(bits []uint8) []float64
}

// UnitReliability maps 0 ⇒ +1 and 1 ⇒ -1.
type UnitReliability struct{}

func (UnitReliability) Map(bits []uint8) []float64 {
	return ChannelReliability{Lc: 1}.Map(bits)
}

// ChannelReliability maps 0 ⇒ +Lc and 1 ⇒ -Lc.
type ChannelReliability struct {
	Lc float64
}

func (c ChannelReliability) Map(bits []uint8) []float64 {
	out := make([]float64, len(bits))
	for i, b := range bits {
		if b&1 == 0 {
			out[i] = c.Lc
		} else {
			out[i] = -c.Lc
		}
	}
	return out
}

// NewAWGNReliability returns the BPSK/AWGN channel reliability
// Lc = 4·Es/N0 for an SNR given in dB.
func NewAWGNReliability(snrDB float64) ChannelReliability {
	return ChannelReliability{Lc: 4 * math.Pow(10, snrDB/10)}
}
