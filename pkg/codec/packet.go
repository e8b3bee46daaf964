package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/dbehnke/turbocodec/pkg/turbo"
)

// Packet layout:
//
//	[N: uint32 big-endian][pack(systematic)][pack(parity1)][pack(parity2)]
//
// Each stream is padded to a byte boundary on its own, so every stream
// occupies ceil(N/8) bytes. Trailing bytes after the third stream are
// ignored.
const HeaderSize = 4

// MaxMessageBits is the largest N the header can carry.
const MaxMessageBits = 1<<32 - 1

// MalformedPacketError reports a packet whose header does not match its
// payload. Decoding stops before any BCJR work is done.
type MalformedPacketError struct {
	Declared  uint64 // message bits declared in the header
	Available uint64 // payload bits present
	Reason    string
}

func (e *MalformedPacketError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("malformed packet: %s", e.Reason)
	}
	return fmt.Sprintf("malformed packet: header declares %d bits per stream, payload holds %d bits (need %d)",
		e.Declared, e.Available, 3*StreamBytes(e.Declared)*8)
}

// StreamBytes is the packed size of one n-bit stream.
func StreamBytes(n uint64) uint64 {
	return (n + 7) / 8
}

// MarshalPacket frames the three encoder streams.
func MarshalPacket(s turbo.Streams) ([]byte, error) {
	n := s.Len()
	if len(s.Parity1) != n || len(s.Parity2) != n {
		return nil, fmt.Errorf("marshal packet: stream lengths differ (%d, %d, %d)", n, len(s.Parity1), len(s.Parity2))
	}
	if uint64(n) > MaxMessageBits {
		return nil, fmt.Errorf("marshal packet: %d bits exceed header capacity", n)
	}

	packet := make([]byte, HeaderSize, HeaderSize+3*int(StreamBytes(uint64(n))))
	binary.BigEndian.PutUint32(packet, uint32(n))
	packet = append(packet, PackBits(s.Systematic)...)
	packet = append(packet, PackBits(s.Parity1)...)
	packet = append(packet, PackBits(s.Parity2)...)
	return packet, nil
}

// DeclaredBits reads N from the packet header without touching the payload.
func DeclaredBits(packet []byte) (uint64, error) {
	if len(packet) < HeaderSize {
		return 0, &MalformedPacketError{
			Reason: fmt.Sprintf("packet too small: %d bytes, header needs %d", len(packet), HeaderSize),
		}
	}
	return uint64(binary.BigEndian.Uint32(packet[:HeaderSize])), nil
}

// UnmarshalPacket recovers N and the three N-bit received streams.
func UnmarshalPacket(packet []byte) (turbo.Streams, error) {
	declared, err := DeclaredBits(packet)
	if err != nil {
		return turbo.Streams{}, err
	}

	payload := packet[HeaderSize:]
	size := StreamBytes(declared)
	if uint64(len(payload)) < 3*size {
		return turbo.Streams{}, &MalformedPacketError{Declared: declared, Available: uint64(len(payload)) * 8}
	}

	n, step := int(declared), int(size)
	return turbo.Streams{
		Systematic: UnpackBits(payload[:step], n),
		Parity1:    UnpackBits(payload[step:2*step], n),
		Parity2:    UnpackBits(payload[2*step:3*step], n),
	}, nil
}
