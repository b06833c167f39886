package protocol

import "github.com/ventral/goraknet/wire"

// DisconnectReason is the terminal reason a session closed, reported to
// the application in session.DisconnectedError (spec.md §7). The 11 named
// values, numbered 0-10 in this order, are ClosedByRemotePeer,
// ShuttingDown, Disconnected, TimedOut, ConnectionRequestFailed,
// AlreadyConnected, NoFreeIncomingConnections,
// IncompatibleProtocolVersion, IPRecentlyConnected, BadPacket and
// QueueTooLong.
type DisconnectReason uint8

const (
	ClosedByRemotePeer DisconnectReason = iota
	ShuttingDown
	Disconnected
	TimedOut
	ConnectionRequestFailedReason
	AlreadyConnectedReason
	NoFreeIncomingConnectionsReason
	IncompatibleProtocolVersionReason
	IPRecentlyConnectedReason
	BadPacket
	QueueTooLong
)

const maxDisconnectReason = QueueTooLong

func (r DisconnectReason) String() string {
	switch r {
	case ClosedByRemotePeer:
		return "ClosedByRemotePeer"
	case ShuttingDown:
		return "ShuttingDown"
	case Disconnected:
		return "Disconnected"
	case TimedOut:
		return "TimedOut"
	case ConnectionRequestFailedReason:
		return "ConnectionRequestFailed"
	case AlreadyConnectedReason:
		return "AlreadyConnected"
	case NoFreeIncomingConnectionsReason:
		return "NoFreeIncomingConnections"
	case IncompatibleProtocolVersionReason:
		return "IncompatibleProtocolVersion"
	case IPRecentlyConnectedReason:
		return "IPRecentlyConnected"
	case BadPacket:
		return "BadPacket"
	case QueueTooLong:
		return "QueueTooLong"
	default:
		return "Unknown"
	}
}

// Encode writes the reason as a single byte.
func (r DisconnectReason) Encode(w *wire.Writer) {
	w.U8(uint8(r))
}

// DecodeDisconnectReason reads a single byte and rejects values outside the
// 11 named reasons with wire.ErrUnknownDisconnectReason.
func DecodeDisconnectReason(r *wire.Reader) (DisconnectReason, error) {
	v, err := r.U8()
	if err != nil {
		return 0, err
	}
	if v > uint8(maxDisconnectReason) {
		return 0, wire.ErrUnknownDisconnectReason
	}
	return DisconnectReason(v), nil
}
