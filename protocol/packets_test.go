package protocol

import (
	"bytes"
	"net"
	"testing"

	"github.com/ventral/goraknet/wire"
)

func roundTrip(t *testing.T, p RaknetPacket) RaknetPacket {
	t.Helper()
	encoded := Encode(p)
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return decoded
}

func TestConnectedPingPongRoundTrip(t *testing.T) {
	ping := &ConnectedPing{PingTime: 123456}
	got := roundTrip(t, ping).(*ConnectedPing)
	if got.PingTime != ping.PingTime {
		t.Fatalf("got %+v, want %+v", got, ping)
	}

	pong := &ConnectedPong{PingTime: 1, PongTime: 2}
	gotPong := roundTrip(t, pong).(*ConnectedPong)
	if gotPong.PingTime != pong.PingTime || gotPong.PongTime != pong.PongTime {
		t.Fatalf("got %+v, want %+v", gotPong, pong)
	}
}

func TestUnconnectedPingPongRoundTrip(t *testing.T) {
	ping := &UnconnectedPing{PingTime: 42}
	got := roundTrip(t, ping).(*UnconnectedPing)
	if got.PingTime != ping.PingTime {
		t.Fatalf("got %+v, want %+v", got, ping)
	}

	pong := &UnconnectedPong{
		PingTime:      42,
		ServerGUID:    0xdeadbeef,
		Advertisement: wire.Advertisement("MCPE;Server;19132"),
	}
	gotPong := roundTrip(t, pong).(*UnconnectedPong)
	if gotPong.PingTime != pong.PingTime || gotPong.ServerGUID != pong.ServerGUID {
		t.Fatalf("got %+v, want %+v", gotPong, pong)
	}
	if !bytes.Equal(gotPong.Advertisement, pong.Advertisement) {
		t.Fatalf("advertisement mismatch: got %q want %q", gotPong.Advertisement, pong.Advertisement)
	}
}

func TestUnconnectedPongNoAdvertisement(t *testing.T) {
	pong := &UnconnectedPong{PingTime: 1, ServerGUID: 2}
	got := roundTrip(t, pong).(*UnconnectedPong)
	if len(got.Advertisement) != 0 {
		t.Fatalf("expected no advertisement, got %v", got.Advertisement)
	}
}

func TestOpenConnectionRequest1RoundTrip(t *testing.T) {
	req := &OpenConnectionRequest1{ProtocolVersion: RaknetProtocolVersion, PaddingLength: 20}
	got := roundTrip(t, req).(*OpenConnectionRequest1)
	if got.ProtocolVersion != req.ProtocolVersion || got.PaddingLength != req.PaddingLength {
		t.Fatalf("got %+v, want %+v", got, req)
	}
}

func TestOpenConnectionReply1RoundTripNoCookie(t *testing.T) {
	rep := &OpenConnectionReply1{ServerGUID: 999, MTU: 1400}
	got := roundTrip(t, rep).(*OpenConnectionReply1)
	if got.ServerGUID != rep.ServerGUID || got.MTU != rep.MTU || got.Cookie != nil {
		t.Fatalf("got %+v, want %+v", got, rep)
	}
}

func TestOpenConnectionReply1RoundTripWithCookie(t *testing.T) {
	cookie := uint32(0x1234)
	rep := &OpenConnectionReply1{ServerGUID: 999, Cookie: &cookie, MTU: 1200}
	got := roundTrip(t, rep).(*OpenConnectionReply1)
	if got.Cookie == nil || *got.Cookie != cookie {
		t.Fatalf("cookie mismatch: got %+v, want %+v", got, rep)
	}
}

func TestOpenConnectionRequest2RoundTripLegacyLayout(t *testing.T) {
	req := &OpenConnectionRequest2{
		ServerAddr: wire.SocketAddr{IP: net.IPv4(127, 0, 0, 1), Port: 19132},
		MTU:        1400,
		ClientGUID: 0xabcdef,
	}
	got := roundTrip(t, req).(*OpenConnectionRequest2)
	if got.Cookie != nil {
		t.Fatalf("expected no cookie, got %+v", got.Cookie)
	}
	if got.MTU != req.MTU || got.ClientGUID != req.ClientGUID {
		t.Fatalf("got %+v, want %+v", got, req)
	}
	if !got.ServerAddr.IP.Equal(req.ServerAddr.IP) || got.ServerAddr.Port != req.ServerAddr.Port {
		t.Fatalf("addr mismatch: got %+v, want %+v", got.ServerAddr, req.ServerAddr)
	}
}

func TestOpenConnectionRequest2RoundTripCookieLayout(t *testing.T) {
	cookie := uint32(0x77)
	req := &OpenConnectionRequest2{
		Cookie:      &cookie,
		ClientProof: true,
		ServerAddr:  wire.SocketAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1234},
		MTU:         576,
		ClientGUID:  55,
	}
	got := roundTrip(t, req).(*OpenConnectionRequest2)
	if got.Cookie == nil || *got.Cookie != cookie || got.ClientProof != req.ClientProof {
		t.Fatalf("got %+v, want %+v", got, req)
	}
	if got.MTU != req.MTU || got.ClientGUID != req.ClientGUID {
		t.Fatalf("got %+v, want %+v", got, req)
	}
}

func TestOpenConnectionReply2RoundTrip(t *testing.T) {
	rep := &OpenConnectionReply2{
		ServerGUID: 1,
		ServerAddr: wire.SocketAddr{IP: net.IPv4(8, 8, 8, 8), Port: 53},
		MTU:        1400,
		Security:   true,
	}
	got := roundTrip(t, rep).(*OpenConnectionReply2)
	if got.ServerGUID != rep.ServerGUID || got.MTU != rep.MTU || got.Security != rep.Security {
		t.Fatalf("got %+v, want %+v", got, rep)
	}
}

func TestConnectionRequestAcceptedRoundTrip(t *testing.T) {
	acc := &ConnectionRequestAccepted{
		ClientAddress:     wire.SocketAddr{IP: net.IPv4(1, 2, 3, 4), Port: 5555},
		SystemIndex:       0,
		SystemAddresses:   systemAddressArray(),
		RequestTimestamp:  100,
		AcceptedTimestamp: 200,
	}
	got := roundTrip(t, acc).(*ConnectionRequestAccepted)
	if got.SystemIndex != acc.SystemIndex {
		t.Fatalf("got %+v, want %+v", got, acc)
	}
	if got.RequestTimestamp != acc.RequestTimestamp || got.AcceptedTimestamp != acc.AcceptedTimestamp {
		t.Fatalf("timestamp mismatch: got %+v, want %+v", got, acc)
	}
}

func TestNewIncomingConnectionRoundTrip(t *testing.T) {
	nic := &NewIncomingConnection{
		ServerAddress:     wire.SocketAddr{IP: net.IPv4(1, 2, 3, 4), Port: 19132},
		SystemAddresses:   systemAddressArray(),
		RequestTimestamp:  1,
		AcceptedTimestamp: 2,
	}
	got := roundTrip(t, nic).(*NewIncomingConnection)
	if got.RequestTimestamp != nic.RequestTimestamp || got.AcceptedTimestamp != nic.AcceptedTimestamp {
		t.Fatalf("got %+v, want %+v", got, nic)
	}
}

func TestConnectionRequestRoundTrip(t *testing.T) {
	req := &ConnectionRequest{ClientGUID: 7, Timestamp: 88, Secure: false}
	got := roundTrip(t, req).(*ConnectionRequest)
	if got.ClientGUID != req.ClientGUID || got.Timestamp != req.Timestamp || got.Secure != req.Secure {
		t.Fatalf("got %+v, want %+v", got, req)
	}
}

func TestDisconnectionNotificationRoundTrip(t *testing.T) {
	n := &DisconnectionNotification{}
	if _, ok := roundTrip(t, n).(*DisconnectionNotification); !ok {
		t.Fatalf("expected *DisconnectionNotification")
	}
}

func TestIncompatibleProtocolVersionRoundTrip(t *testing.T) {
	p := &IncompatibleProtocolVersion{Protocol: 5, ServerGUID: 42}
	got := roundTrip(t, p).(*IncompatibleProtocolVersion)
	if got.Protocol != p.Protocol || got.ServerGUID != p.ServerGUID {
		t.Fatalf("got %+v, want %+v", got, p)
	}
}

func TestUnconnectedPingOpenConnIsUnimplemented(t *testing.T) {
	data := append([]byte{IDUnconnectedPingOpenConn}, []byte{1, 2, 3}...)
	_, err := Decode(data)
	if err == nil {
		t.Fatal("expected UnimplementedPacketError")
	}
	if _, ok := err.(*wire.UnimplementedPacketError); !ok {
		t.Fatalf("expected *wire.UnimplementedPacketError, got %T: %v", err, err)
	}
}

func TestUnknownIDRejected(t *testing.T) {
	_, err := Decode([]byte{0x7E})
	if err == nil {
		t.Fatal("expected UnknownIDError")
	}
	if _, ok := err.(*wire.UnknownIDError); !ok {
		t.Fatalf("expected *wire.UnknownIDError, got %T: %v", err, err)
	}
}

func TestUserDataDecode(t *testing.T) {
	data := []byte{0x85, 'h', 'i'}
	p, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ud, ok := p.(*UserData)
	if !ok {
		t.Fatalf("expected *UserData, got %T", p)
	}
	if ud.ID != 0x85 || string(ud.Payload) != "hi" {
		t.Fatalf("got %+v", ud)
	}
}

func TestDisconnectReasonRoundTrip(t *testing.T) {
	w := wire.NewWriter()
	QueueTooLong.Encode(w)
	r := wire.NewReader(w.Bytes())
	got, err := DecodeDisconnectReason(r)
	if err != nil {
		t.Fatalf("DecodeDisconnectReason: %v", err)
	}
	if got != QueueTooLong {
		t.Fatalf("got %v, want %v", got, QueueTooLong)
	}
}

func TestDisconnectReasonRejectsOutOfRange(t *testing.T) {
	w := wire.NewWriter()
	w.U8(200)
	r := wire.NewReader(w.Bytes())
	if _, err := DecodeDisconnectReason(r); err != wire.ErrUnknownDisconnectReason {
		t.Fatalf("got %v, want ErrUnknownDisconnectReason", err)
	}
}
