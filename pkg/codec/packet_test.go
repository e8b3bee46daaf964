package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbehnke/turbocodec/pkg/turbo"
)

func TestPackBitsPadsLastByte(t *testing.T) {
	bits := []uint8{1, 0, 1, 1, 0, 0, 1, 1, 1, 0, 1}
	packed := PackBits(bits)

	assert.Equal(t, []byte{0xb3, 0xa0}, packed)
	assert.Equal(t, bits, UnpackBits(packed, len(bits)))
}

func TestPackBitsPaddingRoundTrip(t *testing.T) {
	for n := 0; n <= 17; n++ {
		bits := make([]uint8, n)
		for i := range bits {
			bits[i] = uint8((i*5 + 1) % 3 % 2)
		}
		packed := PackBits(bits)
		require.Len(t, packed, (n+7)/8)
		assert.Equal(t, bits, UnpackBits(packed, n), "n=%d", n)
	}
}

func TestBytesToBits(t *testing.T) {
	assert.Equal(t, []uint8{0, 1, 0, 0, 1, 0, 0, 0}, BytesToBits([]byte("H")))
	assert.Empty(t, BytesToBits(nil))
}

func TestPacketRoundTripUnalignedLength(t *testing.T) {
	s := turbo.Streams{
		Systematic: []uint8{1, 0, 1, 1, 0, 1, 1, 1, 0, 1, 0},
		Parity1:    []uint8{0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 1},
		Parity2:    []uint8{1, 1, 1, 1, 0, 0, 0, 0, 1, 0, 1},
	}

	packet, err := MarshalPacket(s)
	require.NoError(t, err)
	require.Len(t, packet, HeaderSize+3*2)
	assert.Equal(t, []byte{0, 0, 0, 11}, packet[:HeaderSize])

	got, err := UnmarshalPacket(packet)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestMarshalPacketRejectsUnevenStreams(t *testing.T) {
	_, err := MarshalPacket(turbo.Streams{
		Systematic: []uint8{1, 0},
		Parity1:    []uint8{1},
		Parity2:    []uint8{1, 0},
	})
	assert.Error(t, err)
}

func TestUnmarshalPacketRejectsMalformed(t *testing.T) {
	tests := []struct {
		name     string
		packet   []byte
		declared uint64
	}{
		{"empty", nil, 0},
		{"short header", []byte{0, 0, 1}, 0},
		{"header only", []byte{0, 0, 0, 8}, 8},
		{"one stream short", []byte{0, 0, 0, 16, 1, 2, 3, 4, 5}, 16},
		{"huge length", []byte{0xff, 0xff, 0xff, 0xff, 0, 0, 0}, 1<<32 - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalPacket(tt.packet)
			var malformed *MalformedPacketError
			require.True(t, errors.As(err, &malformed), "got %v", err)
			assert.Equal(t, tt.declared, malformed.Declared)
		})
	}
}

func TestUnmarshalPacketAcceptsEmptyMessage(t *testing.T) {
	s, err := UnmarshalPacket([]byte{0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestUnmarshalPacketIgnoresTrailingBytes(t *testing.T) {
	s, err := UnmarshalPacket([]byte{0, 0, 0, 8, 0xf0, 0x0f, 0xaa, 0xff, 0xff})
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 1, 1, 1, 0, 0, 0, 0}, s.Systematic)
	assert.Equal(t, []uint8{0, 0, 0, 0, 1, 1, 1, 1}, s.Parity1)
	assert.Equal(t, []uint8{1, 0, 1, 0, 1, 0, 1, 0}, s.Parity2)
}

func TestDeclaredBits(t *testing.T) {
	n, err := DeclaredBits([]byte{0x00, 0x2a, 0xf8, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint64(2816000), n)

	_, err = DeclaredBits([]byte{0, 0, 1})
	var malformed *MalformedPacketError
	assert.True(t, errors.As(err, &malformed))
}
