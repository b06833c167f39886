package listener

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ventral/goraknet/client"
)

func mustListen(t *testing.T) *Listener {
	t.Helper()
	l, err := Listen("127.0.0.1:0", 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestListenAndClose(t *testing.T) {
	l := mustListen(t)
	require.NotNil(t, l.conn.LocalAddr())
	require.NoError(t, l.Close())
}

func TestAcceptTimesOutWithoutAPeer(t *testing.T) {
	l := mustListen(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := l.Accept(ctx)
	require.Error(t, err)
}

func TestAcceptUnblocksWhenListenerCloses(t *testing.T) {
	l := mustListen(t)
	done := make(chan error, 1)
	go func() {
		_, err := l.Accept(context.Background())
		done <- err
	}()

	require.NoError(t, l.Close())

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Accept did not return after Close")
	}
}

// TestDialAcceptEchoRoundTrip drives the whole offline handshake and an
// application-level exchange over real loopback sockets: client.Dial against
// listener.Listen, then a payload each way.
func TestDialAcceptEchoRoundTrip(t *testing.T) {
	l := mustListen(t)
	l.SetAdvertisement([]byte("MCPE;listener_test;11"))

	addr := l.conn.LocalAddr().String()

	acceptCh := make(chan *Conn, 1)
	acceptErrCh := make(chan error, 1)
	go func() {
		c, err := l.Accept(context.Background())
		if err != nil {
			acceptErrCh <- err
			return
		}
		acceptCh <- c
	}()

	dialCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cli, err := client.Dial(dialCtx, addr, 42)
	require.NoError(t, err)
	defer cli.Close()

	var server *Conn
	select {
	case server = <-acceptCh:
	case err := <-acceptErrCh:
		t.Fatalf("Accept: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener never accepted the dialed connection")
	}
	defer server.Close()

	require.NoError(t, cli.Write([]byte("ping")))
	payload, err := server.Read()
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), payload)

	require.NoError(t, server.Write([]byte("pong")))
	reply, err := cli.Read()
	require.NoError(t, err)
	require.Equal(t, []byte("pong"), reply)
}

// TestServerCloseSurfacesOnClient exercises the local-close path: the
// server-side Conn.Close should be observed by the client's Read as a
// disconnect error.
func TestServerCloseSurfacesOnClient(t *testing.T) {
	l := mustListen(t)
	addr := l.conn.LocalAddr().String()

	acceptCh := make(chan *Conn, 1)
	go func() {
		c, err := l.Accept(context.Background())
		if err == nil {
			acceptCh <- c
		}
	}()

	dialCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cli, err := client.Dial(dialCtx, addr, 7)
	require.NoError(t, err)
	defer cli.Close()

	var server *Conn
	select {
	case server = <-acceptCh:
	case <-time.After(5 * time.Second):
		t.Fatal("listener never accepted the dialed connection")
	}

	require.NoError(t, server.Close())

	_, err = cli.Read()
	require.Error(t, err)
}
