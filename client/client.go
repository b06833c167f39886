// Package client implements the RakNet dialer: a symmetric offline
// handshake initiator that, once Connected, looks like any other
// accepted Conn (spec.md §4.7).
package client

import (
	"context"
	"io"
	"net"
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

const tickInterval = 10 * time.Millisecond
const readBufferSize = 2048

// connectTimeout bounds how long Dial waits for the offline handshake to
// reach Connected before giving up (spec.md §6: MaximumConnectionAttempts
// x TimeBetweenConnectionAttempts across every MTU rung).
const connectTimeout = 30 * time.Second

type writeRequest struct {
	payload  []byte
	rel      frame.Reliability
	channel  uint8
	priority reliability.Priority
	result   chan error
}

type closeRequest struct {
	result chan error
}

// Conn is a client-dialed RakNet connection. Like listener.Conn, every
// state-mutating call is forwarded to the single goroutine that owns the
// underlying session.Session (spec.md §5).
type Conn struct {
	conn    net.PacketConn
	remote  wire.SocketAddr
	session *session.Session

	writeCh chan writeRequest
	closeCh chan closeRequest

	connectedCh chan error
	connectOnce bool

	log zerolog.Logger

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// Dial resolves addr, opens a local UDP socket and runs the offline
// handshake, blocking until the session reaches Connected or ctx is
// done.
func Dial(ctx context.Context, addr string, localGUID uint64) (*Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "client: resolve")
	}
	sock, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, errors.Wrap(err, "client: bind local socket")
	}

	remote := wire.FromUDPAddr(raddr)
	gctx, cancel := context.WithCancel(context.Background())
	group, ggctx := errgroup.WithContext(gctx)

	c := &Conn{
		conn:        sock,
		remote:      remote,
		session:     session.NewClientSession(remote, localGUID),
		writeCh:     make(chan writeRequest, 256),
		closeCh:     make(chan closeRequest, 4),
		connectedCh: make(chan error, 1),
		log:         logging.For("client").With().Str("peer", addr).Logger(),
		group:       group,
		ctx:         ggctx,
		cancel:      cancel,
	}

	packetCh := make(chan []byte, 256)
	group.Go(func() error { return c.udpReadLoop(packetCh) })
	group.Go(func() error { return c.mainLoop(packetCh) })

	connectCtx, connectCancel := context.WithTimeout(ctx, connectTimeout)
	defer connectCancel()
	select {
	case err := <-c.connectedCh:
		if err != nil {
			c.cancel()
			_ = c.conn.Close()
			return nil, err
		}
		return c, nil
	case <-connectCtx.Done():
		c.cancel()
		_ = c.conn.Close()
		return nil, errors.Wrap(connectCtx.Err(), "client: connect")
	}
}

// RemoteAddr returns the server's address.
func (c *Conn) RemoteAddr() wire.SocketAddr { return c.remote }

// Read blocks for the next application payload, or returns the error
// carried by the session's final message once the session ends. The
// session never closes Inbox, so Read does not return io.EOF, and a Read
// after that final message blocks.
func (c *Conn) Read() ([]byte, error) {
	msg, ok := <-c.session.Inbox
	if !ok {
		return nil, io.EOF
	}
	if msg.Err != nil {
		return nil, msg.Err
	}
	return msg.Payload[1:], nil
}

// Write queues payload for reliable-ordered delivery on channel 0.
func (c *Conn) Write(payload []byte) error {
	return c.WriteWithReliability(payload, frame.ReliableOrdered, 0, reliability.PriorityNormal)
}

// WriteWithReliability queues payload under an explicit reliability,
// ordering channel and send priority. payload is prefixed with
// protocol.IDUserPacketEnum so the reliability engine's registry decodes it
// as application data rather than attempting to match a control packet ID.
func (c *Conn) WriteWithReliability(payload []byte, rel frame.Reliability, channel uint8, priority reliability.Priority) error {
	framed := append([]byte{protocol.IDUserPacketEnum}, payload...)
	result := make(chan error, 1)
	req := writeRequest{payload: framed, rel: rel, channel: channel, priority: priority, result: result}
	select {
	case c.writeCh <- req:
	case <-c.ctx.Done():
		return errors.New("client: closed")
	}
	select {
	case err := <-result:
		return err
	case <-c.ctx.Done():
		return errors.New("client: closed")
	}
}

// Close gracefully disconnects and releases the local socket.
func (c *Conn) Close() error {
	result := make(chan error, 1)
	select {
	case c.closeCh <- closeRequest{result: result}:
		<-result
	case <-c.ctx.Done():
	}
	c.cancel()
	err := c.conn.Close()
	_ = c.group.Wait()
	return err
}

func (c *Conn) udpReadLoop(packetCh chan<- []byte) error {
	buf := make([]byte, readBufferSize)
	for {
		n, _, err := c.conn.ReadFrom(buf)
		if err != nil {
			if c.ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "client: read")
		}
		data := append([]byte(nil), buf[:n]...)
		select {
		case packetCh <- data:
		case <-c.ctx.Done():
			return nil
		}
	}
}

func (c *Conn) mainLoop(packetCh <-chan []byte) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	first := c.session.BeginHandshake(time.Now())
	if err := c.send(first); err != nil {
		c.signalConnected(errors.Wrap(err, "client: send OpenConnectionRequest1"))
		return nil
	}

	for {
		select {
		case <-c.ctx.Done():
			return nil
		case data := <-packetCh:
			c.handlePacket(data)
		case req := <-c.writeCh:
			req.result <- c.session.Send(req.payload, req.rel, req.channel, req.priority)
		case req := <-c.closeCh:
			req.result <- c.session.Close(time.Now(), c.send)
		case now := <-ticker.C:
			c.tick(now)
		}
	}
}

func (c *Conn) handlePacket(data []byte) {
	now := time.Now()
	if len(data) == 0 {
		return
	}

	wasConnected := c.session.State == session.StateConnected

	if data[0]&0x80 == 0 {
		pkt, err := protocol.Decode(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("dropping unreadable offline packet")
			return
		}
		for _, out := range c.session.HandleOffline(pkt, now) {
			c.send(out)
		}
	} else if err := c.session.HandleOnlineDatagram(data, now); err != nil {
		c.log.Debug().Err(err).Msg("dropping datagram")
		if errors.Is(err, session.ErrBadPacket) {
			c.cancel()
		}
	}

	c.maybeSignalConnected(wasConnected)
}

func (c *Conn) tick(now time.Time) {
	wasConnected := c.session.State == session.StateConnected
	if err := c.session.Tick(now, c.send); err != nil {
		c.log.Debug().Err(err).Msg("tick error")
	}
	c.maybeSignalConnected(wasConnected)

	if closed, reason := c.session.Closed(); closed && !c.connectOnce {
		c.signalConnected(errors.Errorf("client: handshake failed: %s", reason))
	}
}

func (c *Conn) maybeSignalConnected(wasConnected bool) {
	if !wasConnected && c.session.State == session.StateConnected {
		c.signalConnected(nil)
	}
}

func (c *Conn) signalConnected(err error) {
	if c.connectOnce {
		return
	}
	c.connectOnce = true
	c.connectedCh <- err
}

func (c *Conn) send(data []byte) error {
	_, err := c.conn.WriteTo(data, c.remote.UDPAddr())
	return err
}
