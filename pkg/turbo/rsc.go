package turbo

// EncodeRSC runs bits through the trellis starting from state 0 and returns
// the systematic stream (the input, unchanged) and the parity stream.
//
// The register is not driven back to zero after the last bit. Without tail
// bits the decoder cannot assume a known end state, which costs a little
// reliability on the final few bits of a block.
func EncodeRSC(bits []uint8, t *Trellis) (systematic, parity []uint8) {
	systematic = make([]uint8, len(bits))
	parity = make([]uint8, len(bits))

	state := 0
	for i, b := range bits {
		b &= 1
		systematic[i] = b
		parity[i] = t.Parity(state, b)
		state = t.NextState(state, b)
	}

	return systematic, parity
}
