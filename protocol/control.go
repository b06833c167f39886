package protocol

import (
	"github.com/pkg/errors"
	"github.com/ventral/goraknet/wire"
)

// RaknetTime is the offline-handshake timestamp type: an unsigned 64-bit
// millisecond count, big-endian on the wire (spec.md §3).
type RaknetTime uint64

func (t RaknetTime) encode(w *wire.Writer) { w.U64(uint64(t)) }

func decodeRaknetTime(r *wire.Reader) (RaknetTime, error) {
	v, err := r.U64()
	return RaknetTime(v), err
}

func systemAddressArray() [SystemAddressCount]wire.SocketAddr {
	var arr [SystemAddressCount]wire.SocketAddr
	arr[0] = wire.LoopbackSocketAddr(0)
	for i := 1; i < SystemAddressCount; i++ {
		arr[i] = wire.UnspecifiedIPv4SocketAddr()
	}
	return arr
}

func encodeSystemAddresses(w *wire.Writer, addrs [SystemAddressCount]wire.SocketAddr) {
	for _, a := range addrs {
		a.Encode(w)
	}
}

func decodeSystemAddresses(r *wire.Reader) ([SystemAddressCount]wire.SocketAddr, error) {
	var arr [SystemAddressCount]wire.SocketAddr
	for i := range arr {
		a, err := wire.DecodeSocketAddr(r)
		if err != nil {
			return arr, errors.Wrapf(err, "system_addresses[%d]", i)
		}
		arr[i] = a
	}
	return arr, nil
}

// ConnectedPing is sent periodically to keep a connected session alive and
// to sample RTT (spec.md §4.5).
type ConnectedPing struct {
	PingTime RaknetTime
}

func (p *ConnectedPing) encodeBody(w *wire.Writer) { p.PingTime.encode(w) }

func decodeConnectedPing(r *wire.Reader) (*ConnectedPing, error) {
	t, err := decodeRaknetTime(r)
	if err != nil {
		return nil, err
	}
	return &ConnectedPing{PingTime: t}, nil
}

// ConnectedPong answers ConnectedPing, echoing its timestamp alongside the
// reply time.
type ConnectedPong struct {
	PingTime RaknetTime
	PongTime RaknetTime
}

func (p *ConnectedPong) encodeBody(w *wire.Writer) {
	p.PingTime.encode(w)
	p.PongTime.encode(w)
}

func decodeConnectedPong(r *wire.Reader) (*ConnectedPong, error) {
	pt, err := decodeRaknetTime(r)
	if err != nil {
		return nil, err
	}
	pg, err := decodeRaknetTime(r)
	if err != nil {
		return nil, err
	}
	return &ConnectedPong{PingTime: pt, PongTime: pg}, nil
}

// UnconnectedPing requests an UnconnectedPong advertisement from a
// listener that has not yet established a session (spec.md §4.5, §6 S6).
type UnconnectedPing struct {
	PingTime RaknetTime
}

func (p *UnconnectedPing) encodeBody(w *wire.Writer) {
	p.PingTime.encode(w)
	wire.WriteMagic(w)
}

func decodeUnconnectedPing(r *wire.Reader) (*UnconnectedPing, error) {
	t, err := decodeRaknetTime(r)
	if err != nil {
		return nil, err
	}
	if err := wire.ReadMagic(r); err != nil {
		return nil, err
	}
	return &UnconnectedPing{PingTime: t}, nil
}

// UnconnectedPong answers UnconnectedPing, carrying the server's GUID and
// advertisement bytes (spec.md S6).
type UnconnectedPong struct {
	PingTime      RaknetTime
	ServerGUID    uint64
	Advertisement wire.Advertisement
}

func (p *UnconnectedPong) encodeBody(w *wire.Writer) {
	p.PingTime.encode(w)
	w.U64(p.ServerGUID)
	wire.WriteMagic(w)
	if p.Advertisement != nil {
		wire.WriteAdvertisement(w, p.Advertisement)
	}
}

func decodeUnconnectedPong(r *wire.Reader) (*UnconnectedPong, error) {
	t, err := decodeRaknetTime(r)
	if err != nil {
		return nil, err
	}
	guid, err := r.U64()
	if err != nil {
		return nil, err
	}
	if err := wire.ReadMagic(r); err != nil {
		return nil, err
	}
	adv, err := wire.ReadAdvertisement(r)
	if err != nil {
		return nil, err
	}
	return &UnconnectedPong{PingTime: t, ServerGUID: guid, Advertisement: adv}, nil
}

// OpenConnectionRequest1 opens the offline handshake and probes the path
// MTU: its padding length is what sizes the candidate MTU (spec.md §4.2).
type OpenConnectionRequest1 struct {
	ProtocolVersion uint8
	PaddingLength   int
}

func (p *OpenConnectionRequest1) encodeBody(w *wire.Writer) {
	wire.WriteMagic(w)
	w.U8(p.ProtocolVersion)
	w.EoBPadding(p.PaddingLength)
}

func decodeOpenConnectionRequest1(r *wire.Reader) (*OpenConnectionRequest1, error) {
	if err := wire.ReadMagic(r); err != nil {
		return nil, err
	}
	v, err := r.U8()
	if err != nil {
		return nil, err
	}
	pad := r.EoBPadding()
	return &OpenConnectionRequest1{ProtocolVersion: v, PaddingLength: pad}, nil
}

// OpenConnectionReply1 answers OpenConnectionRequest1 with the negotiated
// MTU and an optional anti-amplification cookie.
type OpenConnectionReply1 struct {
	ServerGUID uint64
	Cookie     *uint32
	MTU        uint16
}

func (p *OpenConnectionReply1) encodeBody(w *wire.Writer) {
	wire.WriteMagic(w)
	w.U64(p.ServerGUID)
	w.Bool(p.Cookie != nil)
	if p.Cookie != nil {
		w.U32(*p.Cookie)
	}
	w.U16(p.MTU)
}

func decodeOpenConnectionReply1(r *wire.Reader) (*OpenConnectionReply1, error) {
	if err := wire.ReadMagic(r); err != nil {
		return nil, err
	}
	guid, err := r.U64()
	if err != nil {
		return nil, err
	}
	secure, err := r.Bool()
	if err != nil {
		return nil, err
	}
	var cookie *uint32
	if secure {
		c, err := r.U32()
		if err != nil {
			return nil, err
		}
		cookie = &c
	}
	mtu, err := r.U16()
	if err != nil {
		return nil, err
	}
	return &OpenConnectionReply1{ServerGUID: guid, Cookie: cookie, MTU: mtu}, nil
}

// OpenConnectionRequest2 finishes the MTU negotiation and supplies the
// client GUID. It has two wire layouts (spec.md Design Notes): with a
// cookie+proof pair, or the legacy addr+mtu+guid layout with neither. The
// decoder tries the cookie layout first and falls back on failure.
type OpenConnectionRequest2 struct {
	Cookie      *uint32
	ClientProof bool
	ServerAddr  wire.SocketAddr
	MTU         uint16
	ClientGUID  uint64
}

func (p *OpenConnectionRequest2) encodeBody(w *wire.Writer) {
	wire.WriteMagic(w)
	if p.Cookie != nil {
		w.U32(*p.Cookie)
		w.Bool(p.ClientProof)
	}
	p.ServerAddr.Encode(w)
	w.U16(p.MTU)
	w.U64(p.ClientGUID)
}

func decodeOpenConnectionRequest2(r *wire.Reader) (*OpenConnectionRequest2, error) {
	if err := wire.ReadMagic(r); err != nil {
		return nil, err
	}
	rest, err := r.Bytes(r.Remaining())
	if err != nil {
		return nil, err
	}

	if len(rest) >= 5 {
		attempt := wire.NewReader(rest)
		cookie, err1 := attempt.U32()
		proof, err2 := attempt.Bool()
		addr, err3 := wire.DecodeSocketAddr(attempt)
		mtu, err4 := attempt.U16()
		guid, err5 := attempt.U64()
		if err1 == nil && err2 == nil && err3 == nil && err4 == nil && err5 == nil {
			return &OpenConnectionRequest2{
				Cookie:      &cookie,
				ClientProof: proof,
				ServerAddr:  addr,
				MTU:         mtu,
				ClientGUID:  guid,
			}, nil
		}
	}

	fallback := wire.NewReader(rest)
	addr, err := wire.DecodeSocketAddr(fallback)
	if err != nil {
		return nil, err
	}
	mtu, err := fallback.U16()
	if err != nil {
		return nil, err
	}
	guid, err := fallback.U64()
	if err != nil {
		return nil, err
	}
	return &OpenConnectionRequest2{ServerAddr: addr, MTU: mtu, ClientGUID: guid}, nil
}

// OpenConnectionReply2 confirms the negotiated MTU and whether security
// (cookie validation) is in effect.
type OpenConnectionReply2 struct {
	ServerGUID uint64
	ServerAddr wire.SocketAddr
	MTU        uint16
	Security   bool
}

func (p *OpenConnectionReply2) encodeBody(w *wire.Writer) {
	wire.WriteMagic(w)
	w.U64(p.ServerGUID)
	p.ServerAddr.Encode(w)
	w.U16(p.MTU)
	w.Bool(p.Security)
}

func decodeOpenConnectionReply2(r *wire.Reader) (*OpenConnectionReply2, error) {
	if err := wire.ReadMagic(r); err != nil {
		return nil, err
	}
	guid, err := r.U64()
	if err != nil {
		return nil, err
	}
	addr, err := wire.DecodeSocketAddr(r)
	if err != nil {
		return nil, err
	}
	mtu, err := r.U16()
	if err != nil {
		return nil, err
	}
	secure, err := r.Bool()
	if err != nil {
		return nil, err
	}
	return &OpenConnectionReply2{ServerGUID: guid, ServerAddr: addr, MTU: mtu, Security: secure}, nil
}

// IncompatibleProtocolVersion rejects a handshake whose protocol_version
// did not match RaknetProtocolVersion (spec.md S2).
type IncompatibleProtocolVersion struct {
	Protocol   uint8
	ServerGUID uint64
}

func (p *IncompatibleProtocolVersion) encodeBody(w *wire.Writer) {
	w.U8(p.Protocol)
	wire.WriteMagic(w)
	w.U64(p.ServerGUID)
}

func decodeIncompatibleProtocolVersion(r *wire.Reader) (*IncompatibleProtocolVersion, error) {
	v, err := r.U8()
	if err != nil {
		return nil, err
	}
	if err := wire.ReadMagic(r); err != nil {
		return nil, err
	}
	guid, err := r.U64()
	if err != nil {
		return nil, err
	}
	return &IncompatibleProtocolVersion{Protocol: v, ServerGUID: guid}, nil
}

// AlreadyConnected is sent when a handshake arrives for a peer address
// that already has an established session.
type AlreadyConnected struct {
	ServerGUID uint64
}

func (p *AlreadyConnected) encodeBody(w *wire.Writer) {
	wire.WriteMagic(w)
	w.U64(p.ServerGUID)
}

func decodeAlreadyConnected(r *wire.Reader) (*AlreadyConnected, error) {
	if err := wire.ReadMagic(r); err != nil {
		return nil, err
	}
	guid, err := r.U64()
	if err != nil {
		return nil, err
	}
	return &AlreadyConnected{ServerGUID: guid}, nil
}

// ConnectionRequest is the first reliable-ordered online packet, sent by
// the client once the offline handshake completes (spec.md §4.5 S1).
type ConnectionRequest struct {
	ClientGUID uint64
	Timestamp  RaknetTime
	Secure     bool
}

func (p *ConnectionRequest) encodeBody(w *wire.Writer) {
	w.U64(p.ClientGUID)
	p.Timestamp.encode(w)
	w.Bool(p.Secure)
}

func decodeConnectionRequest(r *wire.Reader) (*ConnectionRequest, error) {
	guid, err := r.U64()
	if err != nil {
		return nil, err
	}
	ts, err := decodeRaknetTime(r)
	if err != nil {
		return nil, err
	}
	secure, err := r.Bool()
	if err != nil {
		return nil, err
	}
	return &ConnectionRequest{ClientGUID: guid, Timestamp: ts, Secure: secure}, nil
}

// ConnectionRequestAccepted confirms the session is online (spec.md S1).
type ConnectionRequestAccepted struct {
	ClientAddress     wire.SocketAddr
	SystemIndex       uint16
	SystemAddresses   [SystemAddressCount]wire.SocketAddr
	RequestTimestamp  RaknetTime
	AcceptedTimestamp RaknetTime
}

func (p *ConnectionRequestAccepted) encodeBody(w *wire.Writer) {
	p.ClientAddress.Encode(w)
	w.U16(p.SystemIndex)
	encodeSystemAddresses(w, p.SystemAddresses)
	p.RequestTimestamp.encode(w)
	p.AcceptedTimestamp.encode(w)
}

func decodeConnectionRequestAccepted(r *wire.Reader) (*ConnectionRequestAccepted, error) {
	addr, err := wire.DecodeSocketAddr(r)
	if err != nil {
		return nil, err
	}
	idx, err := r.U16()
	if err != nil {
		return nil, err
	}
	sys, err := decodeSystemAddresses(r)
	if err != nil {
		return nil, err
	}
	reqTS, err := decodeRaknetTime(r)
	if err != nil {
		return nil, err
	}
	accTS, err := decodeRaknetTime(r)
	if err != nil {
		return nil, err
	}
	return &ConnectionRequestAccepted{
		ClientAddress:     addr,
		SystemIndex:       idx,
		SystemAddresses:   sys,
		RequestTimestamp:  reqTS,
		AcceptedTimestamp: accTS,
	}, nil
}

// NewIncomingConnection is the client's acknowledgement of
// ConnectionRequestAccepted, after which both sides are Connected.
type NewIncomingConnection struct {
	ServerAddress     wire.SocketAddr
	SystemAddresses   [SystemAddressCount]wire.SocketAddr
	RequestTimestamp  RaknetTime
	AcceptedTimestamp RaknetTime
}

func (p *NewIncomingConnection) encodeBody(w *wire.Writer) {
	p.ServerAddress.Encode(w)
	encodeSystemAddresses(w, p.SystemAddresses)
	p.RequestTimestamp.encode(w)
	p.AcceptedTimestamp.encode(w)
}

func decodeNewIncomingConnection(r *wire.Reader) (*NewIncomingConnection, error) {
	addr, err := wire.DecodeSocketAddr(r)
	if err != nil {
		return nil, err
	}
	sys, err := decodeSystemAddresses(r)
	if err != nil {
		return nil, err
	}
	reqTS, err := decodeRaknetTime(r)
	if err != nil {
		return nil, err
	}
	accTS, err := decodeRaknetTime(r)
	if err != nil {
		return nil, err
	}
	return &NewIncomingConnection{
		ServerAddress:     addr,
		SystemAddresses:   sys,
		RequestTimestamp:  reqTS,
		AcceptedTimestamp: accTS,
	}, nil
}

// ConnectionRequestFailed is sent when MAXIMUM_CONNECTION_ATTEMPTS is
// exhausted during the offline handshake.
type ConnectionRequestFailed struct {
	ServerGUID uint64
}

func (p *ConnectionRequestFailed) encodeBody(w *wire.Writer) {
	wire.WriteMagic(w)
	w.U64(p.ServerGUID)
}

func decodeConnectionRequestFailed(r *wire.Reader) (*ConnectionRequestFailed, error) {
	if err := wire.ReadMagic(r); err != nil {
		return nil, err
	}
	guid, err := r.U64()
	if err != nil {
		return nil, err
	}
	return &ConnectionRequestFailed{ServerGUID: guid}, nil
}

// NoFreeIncomingConnections is sent when a listener is at capacity.
type NoFreeIncomingConnections struct {
	ServerGUID uint64
}

func (p *NoFreeIncomingConnections) encodeBody(w *wire.Writer) {
	wire.WriteMagic(w)
	w.U64(p.ServerGUID)
}

func decodeNoFreeIncomingConnections(r *wire.Reader) (*NoFreeIncomingConnections, error) {
	if err := wire.ReadMagic(r); err != nil {
		return nil, err
	}
	guid, err := r.U64()
	if err != nil {
		return nil, err
	}
	return &NoFreeIncomingConnections{ServerGUID: guid}, nil
}

// DisconnectionNotification carries no body; either peer may send it to
// close a session cleanly (spec.md §4.5).
type DisconnectionNotification struct{}

func (p *DisconnectionNotification) encodeBody(w *wire.Writer) {}

func decodeDisconnectionNotification(r *wire.Reader) (*DisconnectionNotification, error) {
	return &DisconnectionNotification{}, nil
}

// ConnectionLost and IPRecentlyConnected carry only the magic, and
// ConnectionBanned the magic plus the server GUID, matching vanilla
// RakNet's minimal bodies for these rare control packets.
type ConnectionLost struct{}

func (p *ConnectionLost) encodeBody(w *wire.Writer) { wire.WriteMagic(w) }

func decodeConnectionLost(r *wire.Reader) (*ConnectionLost, error) {
	if err := wire.ReadMagic(r); err != nil {
		return nil, err
	}
	return &ConnectionLost{}, nil
}

type ConnectionBanned struct {
	ServerGUID uint64
}

func (p *ConnectionBanned) encodeBody(w *wire.Writer) {
	wire.WriteMagic(w)
	w.U64(p.ServerGUID)
}

func decodeConnectionBanned(r *wire.Reader) (*ConnectionBanned, error) {
	if err := wire.ReadMagic(r); err != nil {
		return nil, err
	}
	guid, err := r.U64()
	if err != nil {
		return nil, err
	}
	return &ConnectionBanned{ServerGUID: guid}, nil
}

type IPRecentlyConnected struct{}

func (p *IPRecentlyConnected) encodeBody(w *wire.Writer) { wire.WriteMagic(w) }

func decodeIPRecentlyConnected(r *wire.Reader) (*IPRecentlyConnected, error) {
	if err := wire.ReadMagic(r); err != nil {
		return nil, err
	}
	return &IPRecentlyConnected{}, nil
}
