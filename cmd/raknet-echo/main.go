// Command raknet-echo is a small demonstration server and client built
// on top of the listener and client packages: the server echoes every
// payload it receives back to its sender.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ventral/goraknet/client"
	"github.com/ventral/goraknet/internal/logging"
	"github.com/ventral/goraknet/listener"
)

const version = "1.0.0"

func main() {
	mode := flag.String("mode", "server", "server or client")
	addr := flag.String("addr", "0.0.0.0:19132", "address to bind (server) or dial (client)")
	guid := flag.Uint64("guid", 0, "local GUID; 0 derives one from the current time")
	flag.Parse()

	if *guid == 0 {
		*guid = uint64(time.Now().UnixNano())
	}

	logging.Info().Str("version", version).Str("mode", *mode).Msg("raknet-echo starting")

	switch *mode {
	case "server":
		runServer(*addr, *guid)
	case "client":
		runClient(*addr, *guid)
	default:
		logging.Error().Str("mode", *mode).Msg("unknown mode, want server or client")
		os.Exit(1)
	}
}

func runServer(addr string, guid uint64) {
	l, err := listener.Listen(addr, guid)
	if err != nil {
		logging.Error().Err(err).Msg("bind failed")
		os.Exit(1)
	}
	l.SetAdvertisement([]byte("MCPE;raknet-echo;11;1.0;0;100;" + strconv.FormatUint(guid, 10)))
	logging.Info().Str("addr", addr).Msg("listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	acceptCtx, cancelAccept := context.WithCancel(context.Background())
	go func() {
		<-sigCh
		logging.Warn().Msg("shutting down")
		cancelAccept()
		_ = l.Close()
	}()

	for {
		conn, err := l.Accept(acceptCtx)
		if err != nil {
			logging.Info().Err(err).Msg("listener closed, exiting")
			return
		}
		go echo(conn)
	}
}

type echoConn interface {
	Read() ([]byte, error)
	Write([]byte) error
	Close() error
}

func echo(c echoConn) {
	log := logging.For("echo")
	for {
		payload, err := c.Read()
		if err != nil {
			log.Debug().Err(err).Msg("connection ended")
			return
		}
		if err := c.Write(payload); err != nil {
			log.Debug().Err(err).Msg("write failed")
			return
		}
	}
}

func runClient(addr string, guid uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := client.Dial(ctx, addr, guid)
	if err != nil {
		logging.Error().Err(err).Msg("dial failed")
		os.Exit(1)
	}
	defer conn.Close()
	logging.Info().Str("addr", addr).Msg("connected")

	if err := conn.Write([]byte("hello from raknet-echo")); err != nil {
		logging.Error().Err(err).Msg("write failed")
		return
	}
	payload, err := conn.Read()
	if err != nil {
		logging.Error().Err(err).Msg("read failed")
		return
	}
	logging.Info().Bytes("payload", payload).Msg("echo reply received")
}
