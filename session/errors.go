package session

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/ventral/goraknet/protocol"
)

// Sentinel terminal errors surfaced to the application when a session
// ends (spec.md §7).
var (
	// ErrConnectionClosed is returned once a session has fully closed and
	// no disconnect reason is more specific.
	ErrConnectionClosed = errors.New("session: connection closed")
	// ErrTimeout is returned when a session is torn down by SessionTimeout.
	ErrTimeout = errors.New("session: timed out")
	// ErrConnectionRequestFailed is returned when the offline handshake
	// exhausts MaximumConnectionAttempts without completing.
	ErrConnectionRequestFailed = errors.New("session: connection request failed")
)

// DisconnectedError wraps the specific reason a peer or the local side
// closed an established session.
type DisconnectedError struct {
	Reason protocol.DisconnectReason
}

func (e *DisconnectedError) Error() string {
	return fmt.Sprintf("session: disconnected: %s", e.Reason)
}

// Unwrap exposes the stable sentinel behind well-known reasons, so callers
// can use errors.Is(err, ErrTimeout) instead of switching on Reason.
func (e *DisconnectedError) Unwrap() error {
	switch e.Reason {
	case protocol.TimedOut:
		return ErrTimeout
	case protocol.ConnectionRequestFailedReason:
		return ErrConnectionRequestFailed
	default:
		return nil
	}
}

// ErrBadPacket is returned by HandleOnlineDatagram when a datagram from an
// established session fails to decode; the caller drops the session per
// spec.md §4.6 item 1.
var ErrBadPacket = errors.New("session: bad packet")
