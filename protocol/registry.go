package protocol

import "github.com/ventral/goraknet/wire"

// RaknetPacket is the decoded form of any packet this module understands:
// a typed control packet body, or opaque UserData for application IDs
// (spec.md §4.2). Its only method is the unexported body encoder, so only
// this package's types implement it; callers type-switch on it.
type RaknetPacket interface {
	encodeBody(w *wire.Writer)
}

// ID returns the wire ID a RaknetPacket encodes under. UserData is the one
// variant whose ID is data-dependent rather than fixed by its Go type.
func ID(p RaknetPacket) byte {
	if u, ok := p.(*UserData); ok {
		return u.ID
	}
	switch p.(type) {
	case *ConnectedPing:
		return IDConnectedPing
	case *UnconnectedPing:
		return IDUnconnectedPing
	case *ConnectedPong:
		return IDConnectedPong
	case *OpenConnectionRequest1:
		return IDOpenConnectionRequest1
	case *OpenConnectionReply1:
		return IDOpenConnectionReply1
	case *OpenConnectionRequest2:
		return IDOpenConnectionRequest2
	case *OpenConnectionReply2:
		return IDOpenConnectionReply2
	case *ConnectionRequest:
		return IDConnectionRequest
	case *ConnectionRequestAccepted:
		return IDConnectionRequestAccepted
	case *ConnectionRequestFailed:
		return IDConnectionRequestFailed
	case *AlreadyConnected:
		return IDAlreadyConnected
	case *NewIncomingConnection:
		return IDNewIncomingConnection
	case *NoFreeIncomingConnections:
		return IDNoFreeIncomingConnections
	case *DisconnectionNotification:
		return IDDisconnectionNotification
	case *ConnectionLost:
		return IDConnectionLost
	case *ConnectionBanned:
		return IDConnectionBanned
	case *IncompatibleProtocolVersion:
		return IDIncompatibleProtocolVersion
	case *IPRecentlyConnected:
		return IDIPRecentlyConnected
	case *UnconnectedPong:
		return IDUnconnectedPong
	default:
		panic("protocol: ID called on unregistered RaknetPacket type")
	}
}

// Encode writes the ID byte followed by the packet's body.
func Encode(p RaknetPacket) []byte {
	w := wire.NewWriter()
	w.Byte(ID(p))
	p.encodeBody(w)
	return w.Bytes()
}

// Decode reads the ID byte and dispatches to the matching body decoder.
// IDs at or above UserDataIDThreshold decode as UserData with the raw
// remainder as Payload. IDUnconnectedPingOpenConn is recognized but its
// body is never decoded, matching vanilla RakNet (spec.md Design Notes);
// callers see wire.UnimplementedPacketError and may drop the datagram.
// Any other ID outside the known set is wire.UnknownIDError.
func Decode(data []byte) (RaknetPacket, error) {
	if len(data) == 0 {
		return nil, wire.ErrUnexpectedEOF
	}
	id := data[0]
	r := wire.NewReader(data[1:])

	if id >= UserDataIDThreshold {
		payload, err := r.Bytes(r.Remaining())
		if err != nil {
			return nil, err
		}
		return &UserData{ID: id, Payload: payload}, nil
	}

	switch id {
	case IDConnectedPing:
		return decodeConnectedPing(r)
	case IDUnconnectedPing:
		return decodeUnconnectedPing(r)
	case IDUnconnectedPingOpenConn:
		return nil, &wire.UnimplementedPacketError{ID: id, Payload: data[1:]}
	case IDConnectedPong:
		return decodeConnectedPong(r)
	case IDOpenConnectionRequest1:
		return decodeOpenConnectionRequest1(r)
	case IDOpenConnectionReply1:
		return decodeOpenConnectionReply1(r)
	case IDOpenConnectionRequest2:
		return decodeOpenConnectionRequest2(r)
	case IDOpenConnectionReply2:
		return decodeOpenConnectionReply2(r)
	case IDConnectionRequest:
		return decodeConnectionRequest(r)
	case IDConnectionRequestAccepted:
		return decodeConnectionRequestAccepted(r)
	case IDConnectionRequestFailed:
		return decodeConnectionRequestFailed(r)
	case IDAlreadyConnected:
		return decodeAlreadyConnected(r)
	case IDNewIncomingConnection:
		return decodeNewIncomingConnection(r)
	case IDNoFreeIncomingConnections:
		return decodeNoFreeIncomingConnections(r)
	case IDDisconnectionNotification:
		return decodeDisconnectionNotification(r)
	case IDConnectionLost:
		return decodeConnectionLost(r)
	case IDConnectionBanned:
		return decodeConnectionBanned(r)
	case IDIncompatibleProtocolVersion:
		return decodeIncompatibleProtocolVersion(r)
	case IDIPRecentlyConnected:
		return decodeIPRecentlyConnected(r)
	case IDUnconnectedPong:
		return decodeUnconnectedPong(r)
	case IDAdvertiseSystem:
		return nil, &wire.UnimplementedPacketError{ID: id, Payload: data[1:]}
	default:
		return nil, &wire.UnknownIDError{ID: id}
	}
}
