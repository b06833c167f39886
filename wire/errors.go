package wire

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel decode errors. Callers distinguish them with errors.Is; the
// listener and session layers treat all of them as "drop this datagram",
// per spec.md §7.
var (
	// ErrUnexpectedEOF is returned when a primitive needs more bytes than
	// remain in the buffer.
	ErrUnexpectedEOF = errors.New("wire: unexpected end of buffer")
	// ErrVarIntExceedsLimit is returned when a VarUInt/VarInt's tenth byte
	// is anything but 0x00 or 0x01 (the value would pass 64 bits, or the
	// continuation bit is still set); at most 10 bytes are read.
	ErrVarIntExceedsLimit = errors.New("wire: varint exceeds 64 bits")
	// ErrInvalidAddrVersion is returned when a SocketAddr's version byte is
	// neither 4 nor 6.
	ErrInvalidAddrVersion = errors.New("wire: invalid address version")
	// ErrUnknownDisconnectReason is returned when a DisconnectReason byte
	// does not map to a named reason.
	ErrUnknownDisconnectReason = errors.New("wire: unknown disconnect reason")
	// ErrUnknownReliability is returned when a reliability nibble is not
	// one of the seven defined variants.
	ErrUnknownReliability = errors.New("wire: unknown reliability")
	// ErrBadMagic is returned when the 16-byte offline magic does not match.
	ErrBadMagic = errors.New("wire: bad magic")
)

// UnimplementedPacketError carries the raw bytes of a decoded-but-not-handled
// packet ID so callers can log it without losing the payload.
type UnimplementedPacketError struct {
	ID      byte
	Payload []byte
}

func (e *UnimplementedPacketError) Error() string {
	return fmt.Sprintf("wire: unimplemented packet id 0x%02x (%d bytes)", e.ID, len(e.Payload))
}

// UnknownIDError is returned by the protocol registry for an ID byte that is
// neither a known control packet nor in the user-data range (>= 0x80).
type UnknownIDError struct {
	ID byte
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("wire: unknown packet id 0x%02x", e.ID)
}
