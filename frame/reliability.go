// Package frame implements the encapsulated-packet and datagram framing
// that every reliable UDP datagram carries (spec.md §4.3, §3 Datagram).
package frame

import "github.com/ventral/goraknet/wire"

// Reliability selects how an encapsulated packet is delivered. The seven
// variants and their numeric IDs are wire-significant (spec.md §3).
type Reliability byte

const (
	Unreliable Reliability = iota
	UnreliableSequenced
	Reliable
	ReliableOrdered
	ReliableSequenced
	UnreliableWithAckReceipt
	ReliableWithAckReceipt
)

// Valid reports whether r is one of the seven defined variants.
func (r Reliability) Valid() bool {
	return r <= ReliableWithAckReceipt
}

// IsReliable reports whether frames of this reliability carry a
// reliable_index and participate in duplicate suppression / retransmission.
func (r Reliability) IsReliable() bool {
	switch r {
	case Reliable, ReliableOrdered, ReliableSequenced, ReliableWithAckReceipt:
		return true
	}
	return false
}

// IsSequenced reports whether frames of this reliability carry a
// sequence_index and are delivered latest-wins rather than gap-filled.
func (r Reliability) IsSequenced() bool {
	switch r {
	case UnreliableSequenced, ReliableSequenced:
		return true
	}
	return false
}

// IsOrdered reports whether frames of this reliability carry an
// ordering_index/channel and are queued for strict in-order delivery.
func (r Reliability) IsOrdered() bool {
	return r == ReliableOrdered
}

// IsOrderedOrSequenced reports whether an ordering_index + channel is
// present on the wire — both sequenced and ordered variants carry one,
// per spec.md §4.3 encode step 5.
func (r Reliability) IsOrderedOrSequenced() bool {
	return r.IsOrdered() || r.IsSequenced()
}

// String renders a human-readable name, used in logs.
func (r Reliability) String() string {
	switch r {
	case Unreliable:
		return "Unreliable"
	case UnreliableSequenced:
		return "UnreliableSequenced"
	case Reliable:
		return "Reliable"
	case ReliableOrdered:
		return "ReliableOrdered"
	case ReliableSequenced:
		return "ReliableSequenced"
	case UnreliableWithAckReceipt:
		return "UnreliableWithAckReceipt"
	case ReliableWithAckReceipt:
		return "ReliableWithAckReceipt"
	default:
		return "Unknown"
	}
}

func decodeReliability(b byte) (Reliability, error) {
	r := Reliability(b)
	if !r.Valid() {
		return 0, wire.ErrUnknownReliability
	}
	return r, nil
}
