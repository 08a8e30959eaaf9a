// Package demoreactor is a minimal reference reactor used to run the
// package's examples and integration tests end to end. It is not the
// production reactor the netlet package is designed to plug into — there is
// no real OS readiness multiplexing here, only a short-deadline poll loop
// over real net.Conn sockets. Production users bring their own
// epoll/kqueue/IOCP-backed reactor and implement netlet.Selector directly.
package demoreactor

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/netlet-go/netlet"
)

// pollInterval bounds how long a single poll cycle's read attempt blocks
// before the loop re-checks every other registered key.
const pollInterval = 2 * time.Millisecond

// channel adapts a net.Conn to netlet.Channel.
type channel struct {
	conn net.Conn
}

func (c *channel) Write(p []byte) (int, error) { return c.conn.Write(p) }
func (c *channel) Close() error                { return c.conn.Close() }

// NewChannel wraps conn as a netlet.Channel suitable for Reactor.Register.
func NewChannel(conn net.Conn) netlet.Channel {
	return &channel{conn: conn}
}

// key is this reactor's RegistrationKey implementation.
type key struct {
	mu     sync.Mutex
	ch     *channel
	ops    netlet.Op
	valid  bool
	attach any
	r      *Reactor
}

func (k *key) InterestOps() netlet.Op {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ops
}

func (k *key) SetInterestOps(ops netlet.Op) {
	k.mu.Lock()
	k.ops = ops
	k.mu.Unlock()
}

func (k *key) Selector() netlet.Selector { return k.r }

func (k *key) Attach(x any) {
	k.mu.Lock()
	k.attach = x
	k.mu.Unlock()
}

func (k *key) Attachment() any {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.attach
}

func (k *key) Channel() netlet.Channel { return k.ch }

func (k *key) IsValid() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.valid
}

// Reactor is a single-goroutine poll loop over a small set of registered
// connections. Register/Unregister may be called from any goroutine;
// Run must only ever execute on one goroutine at a time.
type Reactor struct {
	mu     sync.Mutex
	keys   []*key
	wakeCh chan struct{}
	logger *slog.Logger
}

// New creates an idle reactor. Call Run to start polling.
func New(logger *slog.Logger) *Reactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reactor{
		wakeCh: make(chan struct{}, 1),
		logger: logger,
	}
}

// Register implements netlet.Selector.
func (r *Reactor) Register(ch netlet.Channel, initial netlet.Op) (netlet.RegistrationKey, error) {
	c, ok := ch.(*channel)
	if !ok {
		return nil, errors.New("demoreactor: Channel must come from NewChannel")
	}
	k := &key{ch: c, ops: initial, valid: true, r: r}
	r.mu.Lock()
	r.keys = append(r.keys, k)
	r.mu.Unlock()
	return k, nil
}

// Unregister implements netlet.Selector.
func (r *Reactor) Unregister(rk netlet.RegistrationKey) error {
	k, ok := rk.(*key)
	if !ok {
		return errors.New("demoreactor: key not owned by this reactor")
	}
	r.mu.Lock()
	for i, existing := range r.keys {
		if existing == k {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	k.mu.Lock()
	k.valid = false
	k.mu.Unlock()
	return nil
}

// Wakeup implements netlet.Selector. It nudges a blocked poll cycle; the
// poll loop here is already short-deadline so this is mostly advisory.
func (r *Reactor) Wakeup() {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

// Run polls every registered key until ctx is cancelled. For each key with
// OpRead asserted, it calls the endpoint's OnReadable with a short-deadline
// read function that reports a deadline timeout as a zero-byte read with no
// error. For each key with OpWrite asserted,
// it calls the endpoint's OnWritable. endpointFor resolves a key's
// attachment (set via Attach) to the *netlet.ClientEndpoint driving it.
func (r *Reactor) Run(ctx context.Context, endpointFor func(any) *netlet.ClientEndpoint) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.wakeCh:
		}

		r.mu.Lock()
		keys := append([]*key(nil), r.keys...)
		r.mu.Unlock()

		for _, k := range keys {
			ep := endpointFor(k.Attachment())
			if ep == nil {
				continue
			}
			ops := k.InterestOps()

			if ops.Has(netlet.OpRead) {
				_ = k.ch.conn.SetReadDeadline(time.Now().Add(pollInterval))
				ep.OnReadable(func(b []byte) (int, error) {
					n, err := k.ch.conn.Read(b)
					if err != nil && isTimeout(err) {
						return n, nil
					}
					return n, err
				})
			}

			if ops.Has(netlet.OpWrite) {
				ep.OnWritable(func(b []byte) (int, error) {
					return k.ch.conn.Write(b)
				})
			}
		}
	}
}

func isTimeout(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) {
		return nerr.Timeout()
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
