// Package session implements the per-peer RakNet state machine: offline
// handshake, online lifecycle, idle timeouts and the bridge into the
// reliability engine (spec.md §4.5).
package session

import (
	"time"
)

// State is a session's position in the handshake/lifecycle state machine
// (spec.md §4.5). The same enum serves both client and server roles; not
// every state is reachable from every role.
type State int

const (
	StateUnconnected State = iota
	StateHandshake1
	StateHandshake2
	StateConnecting // client only: ConnectionRequest sent, awaiting Accepted
	StateConnected
	StateDisconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "Unconnected"
	case StateHandshake1:
		return "Handshake1"
	case StateHandshake2:
		return "Handshake2"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Timing constants governing the handshake and idle lifecycle (spec.md §6).
const (
	TimeBetweenConnectionAttempts = time.Second
	MaximumConnectionAttempts     = 10
	SessionStale                  = 5 * time.Second
	SessionTimeout                = 10 * time.Second
)

// MTUCandidates is the stepdown ladder probed during the offline
// handshake (spec.md §6).
var MTUCandidates = []uint16{1400, 1200, 576}

// MaximumMTU is the ceiling negotiated MTU a server ever agrees to, even
// if the client's probe implied a larger path MTU.
const MaximumMTU = 1400

// Role distinguishes which side of the handshake this session plays;
// several states and transitions only apply to one role.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)
