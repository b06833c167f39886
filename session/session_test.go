package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ventral/goraknet/protocol"
	"github.com/ventral/goraknet/wire"
)

func udpAddr(port int) wire.SocketAddr {
	return wire.SocketAddr{IP: []byte{127, 0, 0, 1}, Port: uint16(port)}
}

// driveHandshake runs the full offline-then-online handshake between a
// server and client session, ping-ponging every packet produced (including
// flushing each side's reliability engine) until both sessions reach
// StateConnected.
func driveHandshake(t *testing.T, srv, cli *Session, now time.Time) {
	t.Helper()

	route := func(to *Session, payload []byte) [][]byte {
		if len(payload) == 0 {
			return nil
		}
		if payload[0]&0x80 == 0 {
			pkt, err := protocol.Decode(payload)
			require.NoError(t, err)
			return to.HandleOffline(pkt, now)
		}
		require.NoError(t, to.HandleOnlineDatagram(payload, now))
		return nil
	}

	queue := [][]byte{cli.BeginHandshake(now)}
	dir := []*Session{srv} // queue[i] is destined for dir[i]

	for round := 0; round < 12 && len(queue) > 0; round++ {
		payload := queue[0]
		to := dir[0]
		queue = queue[1:]
		dir = dir[1:]

		replies := route(to, payload)
		for _, r := range replies {
			next := cli
			if to == cli {
				next = srv
			}
			queue = append(queue, r)
			dir = append(dir, next)
		}

		// Flushing both sides' engines after every exchange mimics the
		// periodic Tick a listener/client mainLoop runs, draining anything
		// queued-but-not-yet-sent (ConnectionRequestAccepted, NewIncomingConnection).
		for _, pair := range []struct {
			s    *Session
			peer *Session
		}{{srv, cli}, {cli, srv}} {
			if pair.s.State != StateConnected && pair.s.State != StateDisconnecting {
				continue
			}
			var out []byte
			_ = pair.s.Tick(now, func(b []byte) error { out = b; return nil })
			if out != nil {
				queue = append(queue, out)
				dir = append(dir, pair.peer)
			}
		}

		if srv.State == StateConnected && cli.State == StateConnected {
			return
		}
	}
	t.Fatalf("handshake did not converge: server=%s client=%s", srv.State, cli.State)
}

func TestServerSideHandshakeTransitions(t *testing.T) {
	now := time.Now()
	remote := udpAddr(1)
	srv := NewServerSession(remote, 1)
	require.Equal(t, StateUnconnected, srv.State)

	req1 := &protocol.OpenConnectionRequest1{ProtocolVersion: protocol.RaknetProtocolVersion, PaddingLength: 100}
	replies := srv.HandleOffline(req1, now)
	require.Len(t, replies, 1)
	require.Equal(t, StateHandshake1, srv.State)

	reply1, err := protocol.Decode(replies[0])
	require.NoError(t, err)
	_, ok := reply1.(*protocol.OpenConnectionReply1)
	require.True(t, ok)

	req2 := &protocol.OpenConnectionRequest2{ServerAddr: remote, MTU: srv.MTU(), ClientGUID: 2}
	replies = srv.HandleOffline(req2, now)
	require.Len(t, replies, 1)
	require.Equal(t, StateHandshake2, srv.State)

	reply2, err := protocol.Decode(replies[0])
	require.NoError(t, err)
	_, ok = reply2.(*protocol.OpenConnectionReply2)
	require.True(t, ok)
}

func TestServerRejectsIncompatibleProtocolVersion(t *testing.T) {
	now := time.Now()
	srv := NewServerSession(udpAddr(1), 1)

	req1 := &protocol.OpenConnectionRequest1{ProtocolVersion: protocol.RaknetProtocolVersion + 1, PaddingLength: 0}
	replies := srv.HandleOffline(req1, now)
	require.Len(t, replies, 1)
	require.Equal(t, StateUnconnected, srv.State)

	pkt, err := protocol.Decode(replies[0])
	require.NoError(t, err)
	_, ok := pkt.(*protocol.IncompatibleProtocolVersion)
	require.True(t, ok)
}

func TestFullHandshakeBothSidesConnect(t *testing.T) {
	now := time.Now()
	srv := NewServerSession(udpAddr(2), 100)
	cli := NewClientSession(udpAddr(1), 200)

	driveHandshake(t, srv, cli, now)

	require.Equal(t, StateConnected, srv.State)
	require.Equal(t, StateConnected, cli.State)
}

func TestSendBeforeConnectedFails(t *testing.T) {
	cli := NewClientSession(udpAddr(1), 1)
	err := cli.Send([]byte("hi"), 0, 0, 0)
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestTickHandshakeRetriesUntilAttemptsExhausted(t *testing.T) {
	now := time.Now()
	cli := NewClientSession(udpAddr(1), 1)
	cli.BeginHandshake(now)

	send := func(b []byte) error { return nil }

	for i := 0; i <= MaximumConnectionAttempts*(len(MTUCandidates)+1)+5; i++ {
		now = now.Add(TimeBetweenConnectionAttempts)
		require.NoError(t, cli.Tick(now, send))
		if closed, _ := cli.Closed(); closed {
			break
		}
	}

	closed, reason := cli.Closed()
	require.True(t, closed)
	require.Equal(t, protocol.ConnectionRequestFailedReason, reason)

	msg := <-cli.Inbox
	require.Error(t, msg.Err)
}

func TestIdleTimeoutClosesConnectedSession(t *testing.T) {
	now := time.Now()
	srv := NewServerSession(udpAddr(2), 100)
	cli := NewClientSession(udpAddr(1), 200)
	driveHandshake(t, srv, cli, now)

	now = now.Add(SessionTimeout + time.Second)
	require.NoError(t, srv.Tick(now, func(b []byte) error { return nil }))

	closed, reason := srv.Closed()
	require.True(t, closed)
	require.Equal(t, protocol.TimedOut, reason)
}

func TestCloseSendsDisconnectionNotification(t *testing.T) {
	now := time.Now()
	srv := NewServerSession(udpAddr(2), 100)
	cli := NewClientSession(udpAddr(1), 200)
	driveHandshake(t, srv, cli, now)

	var out []byte
	require.NoError(t, srv.Close(now, func(b []byte) error {
		out = b
		return nil
	}))
	require.NotNil(t, out)

	require.NoError(t, cli.HandleOnlineDatagram(out, now))

	closed, reason := srv.Closed()
	require.True(t, closed)
	require.Equal(t, protocol.ShuttingDown, reason)

	select {
	case msg := <-cli.Inbox:
		require.Error(t, msg.Err)
	default:
		t.Fatal("expected client to observe the remote disconnect")
	}
}

func TestHandleOnlineDatagramDeliversAppPayload(t *testing.T) {
	now := time.Now()
	srv := NewServerSession(udpAddr(2), 100)
	cli := NewClientSession(udpAddr(1), 200)
	driveHandshake(t, srv, cli, now)

	require.NoError(t, cli.Send(append([]byte{protocol.IDUserPacketEnum}, []byte("hello")...), 0, 0, 0))

	var out []byte
	require.NoError(t, cli.Tick(now, func(b []byte) error {
		out = b
		return nil
	}))
	require.NotNil(t, out)

	require.NoError(t, srv.HandleOnlineDatagram(out, now))

	select {
	case msg := <-srv.Inbox:
		require.NoError(t, msg.Err)
		require.Equal(t, []byte("hello"), msg.Payload[1:])
	default:
		t.Fatal("expected a delivered application message")
	}
}
