// endpoint.go: the reactor-facing non-blocking TCP client endpoint
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package netlet

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	timecache "github.com/agilira/go-timecache"
)

const defaultWriteBufferSize = 4096

// EndpointConfig configures a single ClientEndpoint. Zero-valued fields take
// the package default (see CurrentDefaults/defaultEnvConfig). A config is
// captured once, at construction; later calls to WatchDefaults never affect
// an endpoint already built from it.
type EndpointConfig struct {
	// Listener receives inbound bytes and lifecycle notifications. Required.
	Listener EndpointListener

	// WriteBufferSize sizes the staging buffer used to coalesce frames
	// before a socket write. Defaults to 4096.
	WriteBufferSize int

	// InitialSendBufferSize hints the first offer ring's capacity; rounded
	// up to max(1024, ceil(hint/1024)*1024) and then to a power of two.
	InitialSendBufferSize int

	// MaxSendBufferSize bounds any single ring's capacity. Zero uses the
	// active default (see EnvConfig.MaxSendBufferSize).
	MaxSendBufferSize int

	// MaxSendBufferBytes caps outstanding send bytes. Zero uses the active
	// default; pass UnlimitedSendBufferBytes explicitly to disable the cap.
	MaxSendBufferBytes int64

	// WriteCountUpdateInterval throttles the write-byte counter
	// publication. Zero uses the active default.
	WriteCountUpdateInterval time.Duration

	// Logger receives structured diagnostics (ring rounding, collected
	// reactor errors, zero-byte reads). Defaults to slog.Default().
	Logger *slog.Logger
}

// resolve fills zero fields from base and returns a complete config.
func (c EndpointConfig) resolve(base EnvConfig) EndpointConfig {
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = defaultWriteBufferSize
	}
	if c.InitialSendBufferSize <= 0 {
		c.InitialSendBufferSize = 1024
	}
	if c.MaxSendBufferSize <= 0 {
		c.MaxSendBufferSize = base.MaxSendBufferSize
	}
	if c.MaxSendBufferBytes == 0 {
		c.MaxSendBufferBytes = base.MaxSendBufferBytes
	}
	if c.WriteCountUpdateInterval <= 0 {
		c.WriteCountUpdateInterval = base.WriteCountUpdateInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// initialRingCapacity implements the "max(1024, ceil(requested/1024)*1024)"
// rounding rule ahead of the power-of-two rounding RingBuffer itself applies.
func initialRingCapacity(requested int) int {
	if requested < 1024 {
		return 1024
	}
	rounded := ((requested + 1023) / 1024) * 1024
	if rounded < 1024 {
		rounded = 1024
	}
	return rounded
}

// EndpointStats is a point-in-time snapshot of a ClientEndpoint's counters,
// mirroring the teacher's Logger.Stats() surface.
type EndpointStats struct {
	SendBufferBytes     int64
	WriteBufferBytes    int64
	PendingBytes        int64
	OfferRingCapacity   int
	OfferRingSize       int
	PollRingSize        int
	RetiredRingCount    int
	WriteInterest       bool
	BackpressureRejects uint64
	Connected           bool
}

// ClientEndpoint is the reactor-facing non-blocking TCP client endpoint. One
// producer goroutine may call Send/SendRange; one reactor goroutine may call
// OnReadable/OnWritable and the lifecycle hooks. See doc.go for the full
// contract.
type ClientEndpoint struct {
	*OutboundPipeline

	listener EndpointListener
	writeBuf *stagingBuffer

	key         RegistrationKey
	isConnected atomic.Bool

	backpressureRejects atomic.Uint64

	logger *slog.Logger
	clock  *timecache.Cache
}

// New constructs an endpoint with the library's built-in defaults (ignoring
// both the environment and any watched defaults file). Useful for tests that
// want deterministic configuration.
func New(listener EndpointListener) (*ClientEndpoint, error) {
	return NewWithConfig(&EndpointConfig{Listener: listener}, defaultEnvConfig())
}

// NewWithDefaults constructs an endpoint using the current package-level
// defaults snapshot (see CurrentDefaults), capturing it once at this call.
func NewWithDefaults(listener EndpointListener) (*ClientEndpoint, error) {
	return NewWithConfig(&EndpointConfig{Listener: listener}, CurrentDefaults())
}

// NewWithConfig constructs an endpoint from an explicit configuration,
// falling back to base for any zero-valued field.
func NewWithConfig(cfg *EndpointConfig, base EnvConfig) (*ClientEndpoint, error) {
	if cfg == nil {
		return nil, errors.New("netlet: nil EndpointConfig")
	}
	if cfg.Listener == nil {
		return nil, errors.New("netlet: EndpointConfig.Listener is required")
	}

	resolved := cfg.resolve(base)
	clock := timecache.NewWithResolution(time.Millisecond)

	pipeline := newOutboundPipeline(pipelineOptions{
		initialCapacity:          initialRingCapacity(resolved.InitialSendBufferSize),
		maxRingCapacity:          resolved.MaxSendBufferSize,
		maxSendBufferBytes:       resolved.MaxSendBufferBytes,
		writeCountUpdateInterval: resolved.WriteCountUpdateInterval,
		logger:                   resolved.Logger,
		clock:                    clock,
	})

	ep := &ClientEndpoint{
		OutboundPipeline: pipeline,
		listener:         cfg.Listener,
		writeBuf:         newStagingBuffer(resolved.WriteBufferSize),
		logger:           resolved.Logger,
		clock:            clock,
	}
	return ep, nil
}

// Registered stores the reactor's registration key. Called once by the
// reactor immediately after registering the endpoint's channel. No other
// side effect.
func (ep *ClientEndpoint) Registered(key RegistrationKey) {
	ep.key = key
	ep.setKey(key)
}

// Connected marks the endpoint eligible to send and notifies the listener,
// if it implements ConnectNotifier. Called once by the reactor once the
// underlying socket is writable for the first time.
func (ep *ClientEndpoint) Connected() {
	ep.isConnected.Store(true)
	ep.OutboundPipeline.onConnected()
	if n, ok := ep.listener.(ConnectNotifier); ok {
		n.Connected()
	}
}

// Disconnected notifies the listener, if it implements DisconnectNotifier.
// Idempotent: a second call (e.g. from both EOF and a later socket error) is
// harmless. Per 4.5, forces writeInterestAsserted so no further interest-op
// manipulation happens against a key that is tearing down.
func (ep *ClientEndpoint) Disconnected() {
	ep.OutboundPipeline.onDisconnected()
	if !ep.isConnected.CompareAndSwap(true, false) {
		return
	}
	if n, ok := ep.listener.(DisconnectNotifier); ok {
		n.Disconnected()
	}
}

// Unregistered transitions the endpoint to its terminal state: the pipeline
// swaps in a read-through sentinel so further Send calls fail fatally while
// any in-flight drain still completes, and the listener is replaced with a
// no-op so further reactor dispatch on this key is harmless.
func (ep *ClientEndpoint) Unregistered() {
	ep.OutboundPipeline.unregister()
	ep.listener = noopListener{}
}

// HandleException is called by the reactor goroutine when socket I/O fails.
// The error is wrapped and deposited in the error channel rather than
// propagated synchronously; it surfaces on the producer's next Send slow
// path.
func (ep *ClientEndpoint) HandleException(err error, reactor Reactor) {
	ep.logger.Warn("netlet: reactor error collected", "error", err)
	ep.deliverError(wrapError(KindCollectedReactorError, err, "reactor I/O error"))
}

// OnReadable is invoked by the reactor on read-readiness. It implements
// 4.3: fill the listener's buffer, hand the count upward, and orderly-close
// on end-of-stream.
func (ep *ClientEndpoint) OnReadable(readFn func([]byte) (int, error)) {
	buf := ep.listener.Buffer()
	n, err := readFn(buf)

	if n > 0 {
		ep.listener.Read(n)
	}

	if err != nil {
		if errors.Is(err, io.EOF) {
			ep.Disconnected()
			ep.Unregistered()
			return
		}
		ep.HandleException(err, nil)
		return
	}

	if n == 0 {
		ep.logger.Debug("netlet: zero-byte read with no error")
	}
}

// OnWritable is invoked by the reactor on write-readiness. It implements the
// two-phase fill/flush loop of 4.4.
func (ep *ClientEndpoint) OnWritable(writeFn func([]byte) (int, error)) {
	n := ep.fillFromPollRing(ep.writeBuf)
	ep.addThrottledWriteBytes(n)

	ep.writeBuf.flip()

	for ep.writeBuf.hasRemaining() {
		n, err := writeFn(ep.writeBuf.readable())
		if n > 0 {
			ep.writeBuf.advance(n)
		}
		if err != nil {
			ep.writeBuf.compact()
			ep.HandleException(err, nil)
			return
		}
		if !ep.writeBuf.hasRemaining() {
			break
		}
		// Short write: socket is not ready for more right now.
		ep.writeBuf.compact()
		return
	}

	// Staging buffer fully drained. If there is more to send, refill and
	// keep flushing, publishing directly rather than through the throttle.
	for !ep.pollRingEmpty() {
		ep.writeBuf.clear()
		n := ep.fillFromPollRing(ep.writeBuf)
		ep.publishWriteBytesDirect(n)
		ep.writeBuf.flip()

		for ep.writeBuf.hasRemaining() {
			n, err := writeFn(ep.writeBuf.readable())
			if n > 0 {
				ep.writeBuf.advance(n)
			}
			if err != nil {
				ep.writeBuf.compact()
				ep.HandleException(err, nil)
				return
			}
			if !ep.writeBuf.hasRemaining() {
				break
			}
			ep.writeBuf.compact()
			return
		}
	}

	ep.writeBuf.clear()
	if ep.pollRingEmpty() {
		ep.RotatePollRing()
	}
}

// Send enqueues bytes for transmission. Returns true if accepted, false if
// rejected by backpressure, because the endpoint is no longer registered, or
// because a collected reactor error was surfaced. The error itself is
// available only through TryEnqueue.
func (ep *ClientEndpoint) Send(data []byte) bool {
	return ep.SendRange(data, 0, len(data))
}

// SendRange enqueues data[offset:offset+length] for transmission.
func (ep *ClientEndpoint) SendRange(data []byte, offset, length int) bool {
	if offset < 0 || length < 0 || offset+length > len(data) {
		return false
	}
	if err := ep.TryEnqueue(data, offset, length); err != nil {
		ep.backpressureRejects.Add(1)
		return false
	}
	return true
}

// SuspendReadIfResumed clears OP_READ if currently asserted, returning
// whether it changed anything.
func (ep *ClientEndpoint) SuspendReadIfResumed() bool {
	if ep.key == nil {
		return false
	}
	ops := ep.key.InterestOps()
	if !ops.Has(OpRead) {
		return false
	}
	ep.key.SetInterestOps(ops &^ OpRead)
	return true
}

// ResumeReadIfSuspended sets OP_READ if not currently asserted, returning
// whether it changed anything.
func (ep *ClientEndpoint) ResumeReadIfSuspended() bool {
	if ep.key == nil {
		return false
	}
	ops := ep.key.InterestOps()
	if ops.Has(OpRead) {
		return false
	}
	ep.key.SetInterestOps(ops | OpRead)
	return true
}

// SuspendRead unconditionally clears OP_READ. Deprecated: use
// SuspendReadIfResumed, which reports whether anything changed.
func (ep *ClientEndpoint) SuspendRead() {
	ep.SuspendReadIfResumed()
}

// ResumeRead unconditionally sets OP_READ. Deprecated: use
// ResumeReadIfSuspended, which reports whether anything changed.
func (ep *ClientEndpoint) ResumeRead() {
	ep.ResumeReadIfSuspended()
}

// IsConnected reports whether the endpoint believes it is currently
// connected (registered, past connected(), not yet disconnected()).
func (ep *ClientEndpoint) IsConnected() bool {
	return ep.isConnected.Load() && (ep.key == nil || ep.key.IsValid())
}

// Stats returns a point-in-time snapshot of the endpoint's counters.
func (ep *ClientEndpoint) Stats() EndpointStats {
	capacity, writeInterest, offerSize, pollSize, retiredCount := ep.OutboundPipeline.snapshot()
	return EndpointStats{
		SendBufferBytes:     ep.sendBufferBytes.Load(),
		WriteBufferBytes:    ep.writeBufferBytes.Load(),
		PendingBytes:        ep.pendingBytes(),
		OfferRingCapacity:   capacity,
		OfferRingSize:       offerSize,
		PollRingSize:        pollSize,
		RetiredRingCount:    retiredCount,
		WriteInterest:       writeInterest,
		BackpressureRejects: ep.backpressureRejects.Load(),
		Connected:           ep.IsConnected(),
	}
}
