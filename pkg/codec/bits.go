package codec

// Bit packing shared by the encoder and decoder. Bits are packed MSB-first
// and the last byte is zero padded.

// PackBits converts a bit sequence to bytes.
func PackBits(bits []uint8) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit&1 != 0 {
			out[i/8] |= 0x80 >> uint(i%8)
		}
	}
	return out
}

// UnpackBits returns the first n bits of data. Missing bits read as zero.
func UnpackBits(data []byte, n int) []uint8 {
	bits := make([]uint8, n)
	for i := 0; i < n && i < len(data)*8; i++ {
		bits[i] = (data[i/8] >> uint(7-i%8)) & 1
	}
	return bits
}

// BytesToBits unpacks every bit of data.
func BytesToBits(data []byte) []uint8 {
	return UnpackBits(data, len(data)*8)
}
