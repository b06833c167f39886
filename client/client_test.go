package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ventral/goraknet/frame"
	"github.com/ventral/goraknet/listener"
	"github.com/ventral/goraknet/reliability"
)

// TestDialTimesOutAgainstADeadAddress points Dial at a UDP address nothing
// is listening on and expects it to give up once ctx is done rather than
// retry forever.
func TestDialTimesOutAgainstADeadAddress(t *testing.T) {
	// A loopback port bound and then immediately released: nothing answers
	// the offline handshake, so every OpenConnectionRequest1 is dropped by
	// the OS and Dial must fall back on ctx's deadline.
	probe, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := probe.LocalAddr().String()
	require.NoError(t, probe.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err = Dial(ctx, deadAddr, 1)
	require.Error(t, err)
}

func TestDialRejectsUnresolvableAddress(t *testing.T) {
	_, err := Dial(context.Background(), "not-a-real-host:notaport", 1)
	require.Error(t, err)
}

func mustListen(t *testing.T) *listener.Listener {
	t.Helper()
	l, err := listener.Listen("127.0.0.1:0", 5)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

// TestRemoteAddrAndWriteWithReliability dials a real listener and confirms
// RemoteAddr reports the dialed peer, and that an explicit reliability/
// priority write is accepted once Connected.
func TestRemoteAddrAndWriteWithReliability(t *testing.T) {
	l := mustListen(t)
	addr := l.LocalAddr().String()

	acceptCh := make(chan *listener.Conn, 1)
	go func() {
		c, err := l.Accept(context.Background())
		if err == nil {
			acceptCh <- c
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cli, err := Dial(ctx, addr, 9)
	require.NoError(t, err)
	defer cli.Close()

	require.Equal(t, addr, cli.RemoteAddr().UDPAddr().String())

	select {
	case <-acceptCh:
	case <-time.After(5 * time.Second):
		t.Fatal("listener never accepted the dialed connection")
	}

	require.NoError(t, cli.WriteWithReliability([]byte("x"), frame.Unreliable, 0, reliability.PriorityLow))
}

// TestWriteAfterCloseFails confirms a client Conn rejects further writes
// once the application has closed it locally.
func TestWriteAfterCloseFails(t *testing.T) {
	l := mustListen(t)
	addr := l.LocalAddr().String()

	go func() {
		_, _ = l.Accept(context.Background())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cli, err := Dial(ctx, addr, 11)
	require.NoError(t, err)

	require.NoError(t, cli.Close())
	require.Error(t, cli.Write([]byte("too late")))
}
