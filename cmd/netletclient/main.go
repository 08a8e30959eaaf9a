// Command netletclient is a small demonstration CLI wiring a netlet
// ClientEndpoint to a real TCP connection through demoreactor, the
// package's reference reactor. It exists to make the module runnable end
// to end, not as a production client.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	flashflags "github.com/agilira/flash-flags"

	"github.com/netlet-go/netlet"
	"github.com/netlet-go/netlet/demoreactor"
)

// echoListener prints inbound bytes to stdout and offers a fixed-size fill
// buffer to the endpoint.
type echoListener struct {
	buf []byte
}

func newEchoListener(size int) *echoListener {
	return &echoListener{buf: make([]byte, size)}
}

func (l *echoListener) Buffer() []byte { return l.buf }

func (l *echoListener) Read(n int) {
	if n > 0 {
		fmt.Printf("< %s", l.buf[:n])
	}
}

func (l *echoListener) Connected() {
	fmt.Println("connected")
}

func (l *echoListener) Disconnected() {
	fmt.Println("disconnected")
}

func main() {
	fs := flashflags.NewFlagSet("netletclient")
	addr := fs.String("addr", "localhost:9000", "address to connect to")
	writeBufferSize := fs.Int("write-buffer", 4096, "staging write buffer size in bytes")
	maxSendBufferSize := fs.String("max-sendbuffer-size", "32KB", "maximum per-ring send buffer size")
	defaultsFile := fs.String("defaults-file", "", "optional JSON file of hot-reloadable defaults")

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "netletclient:", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *defaultsFile != "" {
		watcher, err := netlet.WatchDefaults(*defaultsFile, logger)
		if err != nil {
			logger.Error("failed to watch defaults file", "error", err)
			os.Exit(1)
		}
		defer watcher.Close()
	}

	maxBytes, err := netlet.ParseSize(*maxSendBufferSize)
	if err != nil {
		logger.Error("invalid -max-sendbuffer-size", "error", err)
		os.Exit(2)
	}

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		logger.Error("dial failed", "addr", *addr, "error", err)
		os.Exit(1)
	}

	listener := newEchoListener(*writeBufferSize)
	ep, err := netlet.NewWithConfig(&netlet.EndpointConfig{
		Listener:          listener,
		WriteBufferSize:   *writeBufferSize,
		MaxSendBufferSize: int(maxBytes),
		Logger:            logger,
	}, netlet.CurrentDefaults())
	if err != nil {
		logger.Error("failed to build endpoint", "error", err)
		os.Exit(1)
	}

	reactor := demoreactor.New(logger)
	rkey, err := reactor.Register(demoreactor.NewChannel(conn), netlet.OpRead)
	if err != nil {
		logger.Error("failed to register connection", "error", err)
		os.Exit(1)
	}
	rkey.Attach(ep)
	ep.Registered(rkey)
	ep.Connected()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go reactor.Run(ctx, func(attachment any) *netlet.ClientEndpoint {
		e, _ := attachment.(*netlet.ClientEndpoint)
		return e
	})

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("type a line and press enter to send; ctrl-c to quit")
	for scanner.Scan() {
		line := append(append([]byte(nil), scanner.Bytes()...), '\n')
		if !ep.Send(line) {
			logger.Warn("send rejected", "stats", ep.Stats())
		}
		select {
		case <-ctx.Done():
			goto done
		default:
		}
	}
done:
	time.Sleep(50 * time.Millisecond) // let any in-flight flush land
	_ = conn.Close()
}
