// Package protocol implements the typed bodies for every RakNet control
// packet (IDs 0x00-0x1F) plus a dispatch registry over them and opaque
// user data for IDs >= 0x80 (spec.md §4.2).
package protocol

// Control packet IDs. Unlisted IDs in [0x00, 0x7F] are rejected by the
// registry with wire.UnknownIDError; IDs >= 0x80 decode as UserData.
const (
	IDConnectedPing                = 0x00
	IDUnconnectedPing              = 0x01
	IDUnconnectedPingOpenConn      = 0x02
	IDConnectedPong                = 0x03
	IDOpenConnectionRequest1       = 0x05
	IDOpenConnectionReply1         = 0x06
	IDOpenConnectionRequest2       = 0x07
	IDOpenConnectionReply2         = 0x08
	IDConnectionRequest            = 0x09
	IDConnectionRequestAccepted    = 0x10
	IDConnectionRequestFailed      = 0x11
	IDAlreadyConnected             = 0x12
	IDNewIncomingConnection        = 0x13
	IDNoFreeIncomingConnections    = 0x14
	IDDisconnectionNotification    = 0x15
	IDConnectionLost               = 0x16
	IDConnectionBanned             = 0x17
	IDIncompatibleProtocolVersion  = 0x19
	IDIPRecentlyConnected          = 0x1A
	IDUnconnectedPong              = 0x1C
	IDAdvertiseSystem              = 0x1D

	// UserDataIDThreshold is the first ID treated as opaque application
	// data rather than a RakNet control packet.
	UserDataIDThreshold = 0x80

	// IDUserPacketEnum is the first ID vanilla RakNet leaves free for
	// applications to enumerate their own packet types from. listener.Conn
	// and client.Conn use it as the fixed prefix for every payload passed
	// through Write, so callers never see RakNet's ID framing.
	IDUserPacketEnum = 0x86
)

// RaknetProtocolVersion is the vanilla RakNet wire protocol version this
// module speaks (spec.md §6). Mismatches get IncompatibleProtocolVersion.
const RaknetProtocolVersion = 11

// SystemAddressCount is the fixed number of addresses carried by
// ConnectionRequestAccepted and NewIncomingConnection (spec.md §4.2).
const SystemAddressCount = 10
