// Package listener implements the RakNet server muxer: one UDP socket
// fanned out into per-peer sessions (spec.md §4.6).
package listener

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ventral/goraknet/frame"
	"github.com/ventral/goraknet/internal/logging"
	"github.com/ventral/goraknet/protocol"
	"github.com/ventral/goraknet/reliability"
	"github.com/ventral/goraknet/session"
	"github.com/ventral/goraknet/wire"
)

// DefaultGlobalPacketLimit is a per-tick cap on datagrams across all
// sessions that nothing enforces: mainLoop handles every received packet
// with no per-tick count, and only each session's Engine.Flush is
// bounded, by reliability.DefaultPacketLimit.
const DefaultGlobalPacketLimit = 100000

const tickInterval = 10 * time.Millisecond

const readBufferSize = 2048

// inboundPacket is handed from udpReadLoop to the serializing mainLoop.
type inboundPacket struct {
	data []byte
	from *net.UDPAddr
}

// writeRequest asks mainLoop to queue an application payload on one
// session, keeping every Session mutation confined to that one goroutine
// (spec.md §5), the same discipline kcp-go's session loop applies via its
// own read/write event channels.
type writeRequest struct {
	key      string
	payload  []byte
	rel      frame.Reliability
	channel  uint8
	priority reliability.Priority
	result   chan error
}

// closeRequest asks mainLoop to tear a session down.
type closeRequest struct {
	key    string
	result chan error
}

// Listener owns a single UDP socket and multiplexes it across every peer
// session that has offline-handshaked or connected to it (spec.md §4.6).
type Listener struct {
	conn      net.PacketConn
	localGUID uint64

	// sessions is only ever read or written from mainLoop's goroutine.
	sessions map[string]*session.Session

	adv atomicAdvertisement

	packetCh chan inboundPacket
	writeCh  chan writeRequest
	closeCh  chan closeRequest
	acceptCh chan *Conn

	log zerolog.Logger

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// atomicAdvertisement is a tiny copy-on-write holder for the
// advertisement blob: one writer (SetAdvertisement), many readers (the
// UnconnectedPing path), matching spec.md §4.6's single-writer/many-
// reader model without pulling in sync/atomic.Value's interface{}
// ceremony for a []byte.
type atomicAdvertisement struct {
	mu  sync.RWMutex
	val wire.Advertisement
}

func (a *atomicAdvertisement) Load() wire.Advertisement {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.val
}

func (a *atomicAdvertisement) Store(v wire.Advertisement) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.val = v
}

// Listen binds a UDP socket at addr and starts the muxer loop.
func Listen(addr string, localGUID uint64) (*Listener, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "listener: bind")
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	l := &Listener{
		conn:      conn,
		localGUID: localGUID,
		sessions:  make(map[string]*session.Session),
		packetCh:  make(chan inboundPacket, 256),
		writeCh:   make(chan writeRequest, 256),
		closeCh:   make(chan closeRequest, 16),
		acceptCh:  make(chan *Conn, 16),
		log:       logging.For("listener").With().Str("addr", conn.LocalAddr().String()).Logger(),
		group:     group,
		ctx:       gctx,
		cancel:    cancel,
	}

	group.Go(l.udpReadLoop)
	group.Go(l.mainLoop)
	return l, nil
}

// LocalAddr returns the address the listener's UDP socket is bound to.
func (l *Listener) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

// SetAdvertisement replaces the bytes served in UnconnectedPong responses.
func (l *Listener) SetAdvertisement(adv []byte) {
	l.adv.Store(wire.Advertisement(append([]byte(nil), adv...)))
}

// Accept blocks until a peer completes the online handshake, or the
// listener is closed.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	select {
	case c, ok := <-l.acceptCh:
		if !ok {
			return nil, errors.New("listener: closed")
		}
		return c, nil
	case <-l.ctx.Done():
		return nil, errors.New("listener: closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts the muxer down and releases the socket.
func (l *Listener) Close() error {
	l.cancel()
	err := l.conn.Close()
	_ = l.group.Wait()
	return err
}

// udpReadLoop only moves bytes off the wire into packetCh; it never
// touches session state, so it is safe alongside mainLoop.
func (l *Listener) udpReadLoop() error {
	buf := make([]byte, readBufferSize)
	for {
		n, raddr, err := l.conn.ReadFrom(buf)
		if err != nil {
			if l.ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "listener: read")
		}
		udpAddr, ok := raddr.(*net.UDPAddr)
		if !ok {
			continue
		}
		data := append([]byte(nil), buf[:n]...)
		select {
		case l.packetCh <- inboundPacket{data: data, from: udpAddr}:
		case <-l.ctx.Done():
			return nil
		}
	}
}

// mainLoop is the listener's only goroutine that ever touches Session
// state, draining inbound packets, application write requests and the
// tick timer in one select loop (spec.md §4.6, §5).
func (l *Listener) mainLoop() error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.ctx.Done():
			return nil
		case pkt := <-l.packetCh:
			l.handlePacket(pkt.data, pkt.from)
		case req := <-l.writeCh:
			l.handleWrite(req)
		case req := <-l.closeCh:
			l.handleClose(req)
		case now := <-ticker.C:
			l.tickSessions(now)
		}
	}
}

func (l *Listener) handlePacket(data []byte, raddr *net.UDPAddr) {
	remote := wire.FromUDPAddr(raddr)
	key := remote.UDPAddr().String()
	now := time.Now()

	if len(data) == 0 {
		return
	}

	// Bit 7 of the first frame byte distinguishes offline control
	// packets (unset) from RakNet datagrams (set) on the wire.
	if data[0]&0x80 == 0 {
		l.handleOffline(data, remote, key, now)
		return
	}

	s, ok := l.sessions[key]
	if !ok {
		return
	}

	wasConnected := s.State == session.StateConnected
	if err := s.HandleOnlineDatagram(data, now); err != nil {
		l.log.Debug().Err(err).Str("peer", key).Msg("dropping datagram")
		if errors.Is(err, session.ErrBadPacket) {
			delete(l.sessions, key)
		}
		return
	}
	if !wasConnected && s.State == session.StateConnected {
		select {
		case l.acceptCh <- newConn(l, s, key):
		default:
			l.log.Warn().Str("peer", key).Msg("accept queue full, dropping new connection")
		}
	}
}

func (l *Listener) handleOffline(data []byte, remote wire.SocketAddr, key string, now time.Time) {
	pkt, err := protocol.Decode(data)
	if err != nil {
		l.log.Debug().Err(err).Str("peer", key).Msg("dropping unreadable offline packet")
		return
	}

	if ping, ok := pkt.(*protocol.UnconnectedPing); ok {
		pong := &protocol.UnconnectedPong{
			PingTime:      ping.PingTime,
			ServerGUID:    l.localGUID,
			Advertisement: l.adv.Load(),
		}
		l.send(protocol.Encode(pong), remote)
		return
	}

	s, ok := l.sessions[key]
	if !ok {
		s = session.NewServerSession(remote, l.localGUID)
		l.sessions[key] = s
	}

	wasConnected := s.State == session.StateConnected
	for _, out := range s.HandleOffline(pkt, now) {
		l.send(out, remote)
	}
	if !wasConnected && s.State == session.StateConnected {
		select {
		case l.acceptCh <- newConn(l, s, key):
		default:
			l.log.Warn().Str("peer", key).Msg("accept queue full, dropping new connection")
		}
	}
}

func (l *Listener) handleWrite(req writeRequest) {
	s, ok := l.sessions[req.key]
	if !ok {
		req.result <- errors.New("listener: session no longer exists")
		return
	}
	req.result <- s.Send(req.payload, req.rel, req.channel, req.priority)
}

func (l *Listener) handleClose(req closeRequest) {
	s, ok := l.sessions[req.key]
	if !ok {
		req.result <- nil
		return
	}
	remote := s.Remote
	req.result <- s.Close(time.Now(), func(b []byte) error {
		l.send(b, remote)
		return nil
	})
}

// tickSessions drives handshake retries, idle timeouts and reliability
// flushes for every session, called only from mainLoop (spec.md §4.6).
func (l *Listener) tickSessions(now time.Time) {
	for key, s := range l.sessions {
		remote := s.Remote
		if err := s.Tick(now, func(b []byte) error {
			l.send(b, remote)
			return nil
		}); err != nil {
			l.log.Debug().Err(err).Str("peer", key).Msg("tick error")
		}
		if closed, _ := s.Closed(); closed {
			delete(l.sessions, key)
		}
	}
}

func (l *Listener) send(data []byte, remote wire.SocketAddr) {
	if _, err := l.conn.WriteTo(data, remote.UDPAddr()); err != nil {
		l.log.Debug().Err(err).Msg("write failed")
	}
}
