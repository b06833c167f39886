package listener

import (
	"io"

	"github.com/pkg/errors"

	"github.com/ventral/goraknet/frame"
	"github.com/ventral/goraknet/protocol"
	"github.com/ventral/goraknet/reliability"
	"github.com/ventral/goraknet/session"
	"github.com/ventral/goraknet/wire"
)

// Conn is an established, application-facing RakNet connection accepted
// by a Listener (spec.md §4.6). All state-mutating calls are forwarded
// to the listener's mainLoop goroutine; only Read touches the session's
// Inbox channel directly, which is safe for any number of concurrent
// readers and writers.
type Conn struct {
	listener *Listener
	session  *session.Session
	key      string
}

func newConn(l *Listener, s *session.Session, key string) *Conn {
	return &Conn{listener: l, session: s, key: key}
}

// RemoteAddr returns the peer's address.
func (c *Conn) RemoteAddr() wire.SocketAddr { return c.session.Remote }

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
	req := writeRequest{key: c.key, payload: framed, rel: rel, channel: channel, priority: priority, result: result}
	select {
	case c.listener.writeCh <- req:
	case <-c.listener.ctx.Done():
		return errors.New("listener: closed")
	}
	return <-result
}

// Close gracefully disconnects the session.
func (c *Conn) Close() error {
	result := make(chan error, 1)
	req := closeRequest{key: c.key, result: result}
	select {
	case c.listener.closeCh <- req:
	case <-c.listener.ctx.Done():
		return nil
	}
	return <-result
}
