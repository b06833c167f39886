package session

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ventral/goraknet/frame"
	"github.com/ventral/goraknet/internal/logging"
	"github.com/ventral/goraknet/protocol"
	"github.com/ventral/goraknet/reliability"
	"github.com/ventral/goraknet/wire"
)

// AppMessage is one item delivered to the application's inbound channel:
// either a user-data payload, or — as the last item the session delivers
// — the reason the session ended (spec.md §4.6, §7). Inbox is never
// closed.
type AppMessage struct {
	Payload []byte
	Err     error
}

// Session is one peer's RakNet connection: offline handshake state plus,
// once Connected, a reliability.Engine driving framed delivery (spec.md
// §3 Session, §4.5). It is owned and driven single-threadedly by a
// listener or client, matching spec.md §5's no-cross-session-locking
// model.
type Session struct {
	Role   Role
	Remote wire.SocketAddr
	State  State

	mtu          uint16
	mtuCandidate int

	LocalGUID  uint64
	RemoteGUID uint64

	engine *reliability.Engine
	log    zerolog.Logger

	connectionAttempts int
	lastAttemptSent    time.Time
	lastHandshakeOut   []byte

	lastActivity time.Time
	lastPingSent time.Time

	closedReason protocol.DisconnectReason
	hasClosed    bool

	requestTimestamp  protocol.RaknetTime
	acceptedTimestamp protocol.RaknetTime

	// Inbox is the bounded channel of AppMessages delivered to whatever
	// owns this session (a listener's accepted Conn or a client's
	// Conn). Capacity InboxCapacity (spec.md §4.6): a slow reader sees
	// messages dropped rather than stalling the muxer.
	Inbox chan AppMessage
}

// InboxCapacity bounds Session.Inbox so one slow application reader
// cannot stall the shared listener loop (spec.md §4.6).
const InboxCapacity = 128

// deliver pushes msgs onto Inbox, dropping (and logging) any that do not
// fit rather than blocking the caller.
func (s *Session) deliver(msgs []AppMessage) {
	for _, m := range msgs {
		select {
		case s.Inbox <- m:
		default:
			s.log.Warn().Msg("inbox full, dropping message")
		}
	}
}

// NewServerSession creates a session on the listener side, awaiting
// OpenConnectionRequest1 from a newly-seen peer address.
func NewServerSession(remote wire.SocketAddr, localGUID uint64) *Session {
	return &Session{
		Role:      RoleServer,
		Remote:    remote,
		State:     StateUnconnected,
		LocalGUID: localGUID,
		log:       logging.For("session").With().Str("role", "server").Str("peer", remote.UDPAddr().String()).Logger(),
		Inbox:     make(chan AppMessage, InboxCapacity),
	}
}

// NewClientSession creates a session on the dialer side, ready to begin
// the offline handshake via BeginHandshake.
func NewClientSession(remote wire.SocketAddr, localGUID uint64) *Session {
	return &Session{
		Role:         RoleClient,
		Remote:       remote,
		State:        StateUnconnected,
		LocalGUID:    localGUID,
		mtuCandidate: 0,
		log:          logging.For("session").With().Str("role", "client").Str("peer", remote.UDPAddr().String()).Logger(),
		Inbox:        make(chan AppMessage, InboxCapacity),
	}
}

// MTU returns the session's currently negotiated (or candidate, pre-
// handshake) MTU.
func (s *Session) MTU() uint16 {
	if s.mtu != 0 {
		return s.mtu
	}
	return MTUCandidates[s.mtuCandidate]
}

// BeginHandshake starts the client-side offline handshake, returning the
// first OpenConnectionRequest1 to send (spec.md §4.5).
func (s *Session) BeginHandshake(now time.Time) []byte {
	candidate := MTUCandidates[s.mtuCandidate]
	padding := int(candidate) - 1 /* id byte */ - 16 /* magic */ - 1 /* protocol_version */
	if padding < 0 {
		padding = 0
	}
	pkt := &protocol.OpenConnectionRequest1{ProtocolVersion: protocol.RaknetProtocolVersion, PaddingLength: padding}
	out := protocol.Encode(pkt)

	s.State = StateHandshake1
	s.connectionAttempts = 1
	s.lastAttemptSent = now
	s.lastHandshakeOut = out
	return out
}

// negotiateMTU derives the server's chosen MTU from the padding length of
// the client's OpenConnectionRequest1 probe, clamped to MaximumMTU
// (spec.md §4.5, §6).
func negotiateMTU(paddingLength int) uint16 {
	candidate := paddingLength + 16 /* magic */ + 1 /* protocol_version */ + 1 /* id byte */
	if candidate > MaximumMTU {
		return MaximumMTU
	}
	if candidate < int(MTUCandidates[len(MTUCandidates)-1]) {
		return MTUCandidates[len(MTUCandidates)-1]
	}
	return uint16(candidate)
}

// HandleOffline advances the handshake state machine in response to one
// decoded offline (pre-Connected) packet, returning zero or more
// responses to send back (spec.md §4.5 transition table).
func (s *Session) HandleOffline(pkt protocol.RaknetPacket, now time.Time) [][]byte {
	s.lastActivity = now

	switch s.Role {
	case RoleServer:
		return s.handleOfflineServer(pkt, now)
	default:
		return s.handleOfflineClient(pkt, now)
	}
}

func (s *Session) handleOfflineServer(pkt protocol.RaknetPacket, now time.Time) [][]byte {
	switch p := pkt.(type) {
	case *protocol.OpenConnectionRequest1:
		if s.State != StateUnconnected {
			return nil
		}
		if p.ProtocolVersion != protocol.RaknetProtocolVersion {
			reply := &protocol.IncompatibleProtocolVersion{
				Protocol:   protocol.RaknetProtocolVersion,
				ServerGUID: s.LocalGUID,
			}
			return [][]byte{protocol.Encode(reply)}
		}
		negotiated := negotiateMTU(p.PaddingLength)
		s.mtu = negotiated
		s.State = StateHandshake1
		reply := &protocol.OpenConnectionReply1{ServerGUID: s.LocalGUID, MTU: negotiated}
		return [][]byte{protocol.Encode(reply)}

	case *protocol.OpenConnectionRequest2:
		if s.State != StateHandshake1 {
			return nil
		}
		s.mtu = p.MTU
		s.RemoteGUID = p.ClientGUID
		s.State = StateHandshake2
		s.engine = reliability.NewEngine(s.mtu)
		reply := &protocol.OpenConnectionReply2{
			ServerGUID: s.LocalGUID,
			ServerAddr: s.Remote,
			MTU:        s.mtu,
		}
		return [][]byte{protocol.Encode(reply)}
	}
	return nil
}

func (s *Session) handleOfflineClient(pkt protocol.RaknetPacket, now time.Time) [][]byte {
	switch p := pkt.(type) {
	case *protocol.OpenConnectionReply1:
		if s.State != StateHandshake1 {
			return nil
		}
		s.RemoteGUID = p.ServerGUID
		s.mtu = p.MTU
		s.State = StateHandshake2
		req := &protocol.OpenConnectionRequest2{ServerAddr: s.Remote, MTU: s.mtu, ClientGUID: s.LocalGUID}
		out := protocol.Encode(req)
		s.connectionAttempts = 1
		s.lastAttemptSent = now
		s.lastHandshakeOut = out
		return [][]byte{out}

	case *protocol.OpenConnectionReply2:
		if s.State != StateHandshake2 {
			return nil
		}
		s.mtu = p.MTU
		s.engine = reliability.NewEngine(s.mtu)
		s.State = StateConnecting
		req := &protocol.ConnectionRequest{
			ClientGUID: s.LocalGUID,
			Timestamp:  protocol.RaknetTime(now.UnixMilli()),
		}
		out := s.frameControl(req, frame.ReliableOrdered, now)
		s.connectionAttempts = 1
		s.lastAttemptSent = now
		s.lastHandshakeOut = out
		return [][]byte{out}
	}
	return nil
}

// frameControl serializes a control packet, queues it on the (already
// constructed) reliability engine and immediately encodes the resulting
// datagram, used for the online packets exchanged at the tail of the
// handshake (ConnectionRequest, ConnectionRequestAccepted).
func (s *Session) frameControl(pkt protocol.RaknetPacket, rel frame.Reliability, now time.Time) []byte {
	s.engine.QueueAppPacket(protocol.Encode(pkt), rel, 0, reliability.PriorityImmediate)
	var out []byte
	s.engine.Flush(now, func(b []byte) error {
		out = b
		return nil
	})
	return out
}

// HandleOnlineDatagram processes one post-handshake UDP payload through
// the reliability engine, dispatching control packets to this state
// machine and delivering UserData to Inbox.
func (s *Session) HandleOnlineDatagram(data []byte, now time.Time) error {
	s.lastActivity = now
	packets, err := s.engine.HandleDatagram(data, now)
	if err != nil {
		return errors.Wrap(ErrBadPacket, err.Error())
	}

	var msgs []AppMessage
	for _, pkt := range packets {
		switch p := pkt.(type) {
		case *protocol.UserData:
			msgs = append(msgs, AppMessage{Payload: append([]byte{p.ID}, p.Payload...)})
		case *protocol.NewIncomingConnection:
			// Handshake complete on both sides; nothing further to do.
		case *protocol.ConnectionRequestAccepted:
			if s.Role == RoleClient && s.State == StateConnecting {
				s.State = StateConnected
				nic := &protocol.NewIncomingConnection{
					ServerAddress:     s.Remote,
					RequestTimestamp:  p.RequestTimestamp,
					AcceptedTimestamp: p.AcceptedTimestamp,
				}
				s.engine.QueueAppPacket(protocol.Encode(nic), frame.ReliableOrdered, 0, reliability.PriorityImmediate)
			}
		case *protocol.ConnectionRequest:
			if s.Role == RoleServer && s.State == StateHandshake2 {
				s.requestTimestamp = p.Timestamp
				s.acceptedTimestamp = protocol.RaknetTime(now.UnixMilli())
				s.State = StateConnected
				accepted := &protocol.ConnectionRequestAccepted{
					ClientAddress:     s.Remote,
					SystemIndex:       0,
					RequestTimestamp:  s.requestTimestamp,
					AcceptedTimestamp: s.acceptedTimestamp,
				}
				s.engine.QueueAppPacket(protocol.Encode(accepted), frame.ReliableOrdered, 0, reliability.PriorityImmediate)
			}
		case *protocol.ConnectedPing:
			pong := &protocol.ConnectedPong{PingTime: p.PingTime, PongTime: protocol.RaknetTime(now.UnixMilli())}
			s.engine.QueueAppPacket(protocol.Encode(pong), frame.Unreliable, 0, reliability.PriorityImmediate)
		case *protocol.ConnectedPong:
			// RTT sample already folded in by the reliability engine's ACK path.
		case *protocol.DisconnectionNotification:
			s.close(protocol.ClosedByRemotePeer)
			msgs = append(msgs, AppMessage{Err: &DisconnectedError{Reason: protocol.ClosedByRemotePeer}})
		}
	}
	s.deliver(msgs)
	return nil
}

// Send queues an application payload for delivery, framed and (if
// needed) split by the reliability engine. It is an error to call this
// before the session reaches Connected.
func (s *Session) Send(payload []byte, rel frame.Reliability, channel uint8, priority reliability.Priority) error {
	if s.State != StateConnected {
		return ErrConnectionClosed
	}
	s.engine.QueueAppPacket(payload, rel, channel, priority)
	return nil
}

// Tick drives timers: handshake retransmission, idle ping, and session
// timeout, then — once Connected — flushes the reliability engine. send
// is called once per outgoing datagram.
func (s *Session) Tick(now time.Time, send func([]byte) error) error {
	switch s.State {
	case StateHandshake1, StateHandshake2, StateConnecting:
		return s.tickHandshakeRetry(now, send)
	case StateConnected:
		return s.tickConnected(now, send)
	}
	return nil
}

func (s *Session) tickHandshakeRetry(now time.Time, send func([]byte) error) error {
	if now.Sub(s.lastAttemptSent) < TimeBetweenConnectionAttempts {
		return nil
	}
	s.connectionAttempts++
	if s.connectionAttempts > MaximumConnectionAttempts {
		if s.Role == RoleClient && s.State == StateHandshake1 && s.mtuCandidate < len(MTUCandidates)-1 {
			s.mtuCandidate++
			s.lastHandshakeOut = s.BeginHandshake(now)
			return send(s.lastHandshakeOut)
		}
		s.deliver([]AppMessage{{Err: &DisconnectedError{Reason: protocol.ConnectionRequestFailedReason}}})
		s.close(protocol.ConnectionRequestFailedReason)
		return nil
	}
	s.lastAttemptSent = now
	if s.lastHandshakeOut == nil {
		return nil
	}
	return send(s.lastHandshakeOut)
}

func (s *Session) tickConnected(now time.Time, send func([]byte) error) error {
	idle := now.Sub(s.lastActivity)
	if idle >= SessionTimeout {
		s.deliver([]AppMessage{{Err: &DisconnectedError{Reason: protocol.TimedOut}}})
		s.close(protocol.TimedOut)
		return nil
	}
	if idle >= SessionStale && now.Sub(s.lastPingSent) >= SessionStale {
		ping := &protocol.ConnectedPing{PingTime: protocol.RaknetTime(now.UnixMilli())}
		s.engine.QueueAppPacket(protocol.Encode(ping), frame.Unreliable, 0, reliability.PriorityNormal)
		s.lastPingSent = now
	}
	return s.engine.Flush(now, send)
}

// Close initiates a local, application-requested shutdown: best-effort
// DisconnectionNotification, then Closed (spec.md §4.5 "local close").
func (s *Session) Close(now time.Time, send func([]byte) error) error {
	if s.State == StateConnected && s.engine != nil {
		s.State = StateDisconnecting
		s.engine.QueueAppPacket(protocol.Encode(&protocol.DisconnectionNotification{}), frame.Reliable, 0, reliability.PriorityImmediate)
		_ = s.engine.Flush(now, send)
	}
	s.deliver([]AppMessage{{Err: &DisconnectedError{Reason: protocol.ShuttingDown}}})
	s.close(protocol.ShuttingDown)
	return nil
}

func (s *Session) close(reason protocol.DisconnectReason) {
	if s.hasClosed {
		return
	}
	s.hasClosed = true
	s.closedReason = reason
	s.State = StateClosed
}

// Closed reports whether the session has reached its terminal state, and
// if so, why.
func (s *Session) Closed() (bool, protocol.DisconnectReason) {
	return s.hasClosed, s.closedReason
}
