// pipeline.go: outbound send pipeline — offer/poll rings, growth, drain
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package netlet

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	timecache "github.com/agilira/go-timecache"
)

const errorChannelCapacity = 4

// sliceRing is the narrow interface OutboundPipeline programs against
// instead of *RingBuffer[*Slice] directly, so that unregister can swap in a
// read-through sentinel without branching the hot path (see sentinelRing).
type sliceRing interface {
	Offer(*Slice) bool
	Poll() (*Slice, bool)
	Peek() (*Slice, bool)
	PollUnsafe() *Slice
	PeekUnsafe() *Slice
	Size() int
	IsEmpty() bool
	IsFull() bool
	Capacity() int
}

// sentinelRing replaces a live offer ring once an endpoint is unregistered.
// It delegates every read operation to the frozen ring underneath (so an
// in-flight drain completes) but rejects every Offer, fatally, so the
// producer cannot enqueue into a dead endpoint.
type sentinelRing struct {
	frozen sliceRing
}

func (s *sentinelRing) Offer(*Slice) bool { return false }
func (s *sentinelRing) Poll() (*Slice, bool) { return s.frozen.Poll() }
func (s *sentinelRing) Peek() (*Slice, bool) { return s.frozen.Peek() }
func (s *sentinelRing) PollUnsafe() *Slice { return s.frozen.PollUnsafe() }
func (s *sentinelRing) PeekUnsafe() *Slice { return s.frozen.PeekUnsafe() }
func (s *sentinelRing) Size() int { return s.frozen.Size() }
func (s *sentinelRing) IsEmpty() bool { return s.frozen.IsEmpty() }
func (s *sentinelRing) IsFull() bool { return true }
func (s *sentinelRing) Capacity() int { return s.frozen.Capacity() }

// OutboundPipeline is the send-queue system described by the component
// design: a current offer-side ring the producer enqueues into, a current
// poll-side ring the reactor drains, and a FIFO of retired offer rings
// superseded by growth and still awaiting drain. It also owns the two
// independently-published byte counters (atomics, updated without the
// pipeline monitor) and the write-interest flag (guarded by the same
// pipeline monitor that guards ring topology changes).
type OutboundPipeline struct {
	mu sync.Mutex // pipeline monitor: topology, interest, and key mutations only

	offerRing    sliceRing
	pollRing     sliceRing
	retiredRings *RingBuffer[sliceRing]
	freeSlices   *RingBuffer[*Slice]

	initialCapacity int
	maxRingCapacity int

	maxSendBufferBytes int64 // UnlimitedSendBufferBytes disables accounting

	sendBufferBytes  atomic.Int64 // producer-only write
	writeBufferBytes atomic.Int64 // reactor-only write, published throttled

	currWriteBufferBytes    int64 // reactor-goroutine-local; no atomic needed, single writer
	lastWriteUpdateNanos    atomic.Int64
	writeCountUpdateInterval time.Duration

	writeInterestAsserted bool // guarded by mu
	key                   RegistrationKey
	closed                atomic.Bool

	errorChannel *RingBuffer[*Error]

	clock  *timecache.Cache
	logger *slog.Logger
}

// pipelineOptions bundles the construction parameters so endpoint.go can
// build an OutboundPipeline without a long positional argument list.
type pipelineOptions struct {
	initialCapacity          int
	maxRingCapacity          int
	maxSendBufferBytes       int64
	writeCountUpdateInterval time.Duration
	logger                   *slog.Logger
	clock                    *timecache.Cache
}

func newOutboundPipeline(opts pipelineOptions) *OutboundPipeline {
	initial := opts.initialCapacity
	if initial < 1024 {
		initial = 1024
	}
	initial = int(nextPow2(uint64(initial)))

	maxCap := opts.maxRingCapacity
	if maxCap < initial {
		maxCap = initial
	}
	if rounded := int(nextPow2(uint64(maxCap))); rounded != maxCap {
		if opts.logger != nil {
			opts.logger.Warn("max ring capacity rounded up to power of two",
				"requested", maxCap, "rounded", rounded)
		}
		maxCap = rounded
	}

	retiredSlots := 1
	for c := initial; c < maxCap; c *= 2 {
		retiredSlots++
	}

	ring := NewRingBuffer[*Slice](uint64(initial), 0, opts.logger)

	p := &OutboundPipeline{
		offerRing:                ring,
		pollRing:                 ring,
		retiredRings:             NewRingBuffer[sliceRing](uint64(retiredSlots), 0, opts.logger),
		freeSlices:               NewRingBuffer[*Slice](uint64(initial), 0, opts.logger),
		initialCapacity:          initial,
		maxRingCapacity:          maxCap,
		maxSendBufferBytes:       opts.maxSendBufferBytes,
		writeCountUpdateInterval: opts.writeCountUpdateInterval,
		errorChannel:             NewRingBuffer[*Error](errorChannelCapacity, 0, opts.logger),
		clock:                    opts.clock,
		logger:                   opts.logger,
	}
	return p
}

// setKey attaches the reactor's registration key once the endpoint has been
// registered. Only called from the registered lifecycle hook, before any
// concurrent Send can observe a non-nil key.
func (p *OutboundPipeline) setKey(key RegistrationKey) {
	p.mu.Lock()
	p.key = key
	p.mu.Unlock()
}

// pendingBytes computes sendBufferBytes - writeBufferBytes with wrap-safe
// handling for a signed 64-bit counter that has wrapped exactly once.
func (p *OutboundPipeline) pendingBytes() int64 {
	sb := p.sendBufferBytes.Load()
	wb := p.writeBufferBytes.Load()
	if sb < 0 && wb >= 0 {
		return -(sb + wb)
	}
	return sb - wb
}

// acquireSlice takes a Slice from the free list, or allocates a fresh one if
// the free list is empty.
func (p *OutboundPipeline) acquireSlice(data []byte, off, length int) *Slice {
	if s, ok := p.freeSlices.Poll(); ok {
		s.reset(data, off, length)
		return s
	}
	s := &Slice{}
	s.reset(data, off, length)
	return s
}

// releaseSlice returns a fully-drained Slice to the free list. Reactor-
// goroutine-exclusive: freeSlices is an SPSC ring whose sole producer is the
// reactor's drain path (fillFromPollRing); the producer goroutine recycles
// nothing onto it (see dropSlice). If the free list is full the slice is
// simply dropped and left to the garbage collector.
func (p *OutboundPipeline) releaseSlice(s *Slice) {
	s.release()
	p.freeSlices.Offer(s)
}

// dropSlice discards a Slice acquired by the producer on a reject path
// (ring full and at max capacity, already unregistered, or a pending
// collected error takes priority). It must never call freeSlices.Offer:
// that ring's producer is the reactor goroutine only, and a second
// concurrent Offer caller would race its unsynchronized tail load/store,
// corrupting the free list and risking a stale-array Slice being handed
// back out. The Slice is simply left for the garbage collector.
func (p *OutboundPipeline) dropSlice(s *Slice) {
	s.release()
}

// TryEnqueue implements 4.2's enqueue algorithm: byte-cap check, slice
// acquisition, offer to the current offer ring, and on ring-full either
// growth (bounded by maxRingCapacity) or rejection.
func (p *OutboundPipeline) TryEnqueue(data []byte, off, length int) error {
	if p.closed.Load() {
		return ErrFatalOwnershipLost
	}

	if p.maxSendBufferBytes >= 0 {
		if p.maxSendBufferBytes-p.pendingBytes() < int64(length) {
			return ErrBackpressure
		}
	}

	slice := p.acquireSlice(data, off, length)

	p.mu.Lock()
	if p.offerRing.Offer(slice) {
		p.assertWriteInterestLocked()
		p.mu.Unlock()
		p.sendBufferBytes.Add(int64(length))
		return nil
	}
	p.mu.Unlock()

	// Ring full. A pending collected error takes priority over backpressure
	// or growth, mirroring the teacher's next-send-surfaces-the-error policy.
	if pending, ok := p.errorChannel.Poll(); ok {
		p.dropSlice(slice)
		return pending
	}

	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		p.dropSlice(slice)
		return ErrFatalOwnershipLost
	}
	if p.offerRing.Capacity() >= p.maxRingCapacity {
		p.mu.Unlock()
		p.dropSlice(slice)
		return ErrBackpressure
	}

	newCap := p.offerRing.Capacity() * 2
	if newCap > p.maxRingCapacity {
		newCap = p.maxRingCapacity
	}
	newRing := NewRingBuffer[*Slice](uint64(newCap), 0, p.logger)

	if p.offerRing != p.pollRing {
		if !p.retiredRings.Offer(p.offerRing) {
			p.logger.Warn("retired ring queue full, dropping oldest growth slot")
			p.retiredRings.Poll()
			p.retiredRings.Offer(p.offerRing)
		}
	}
	p.offerRing = newRing
	ok := p.offerRing.Offer(slice)
	p.assertWriteInterestLocked()
	p.mu.Unlock()

	if !ok {
		// Should not happen: a freshly allocated ring always has room for one
		// slice. Treat defensively as backpressure rather than panicking.
		p.dropSlice(slice)
		return ErrBackpressure
	}
	p.sendBufferBytes.Add(int64(length))
	return nil
}

// assertWriteInterestLocked must be called with mu held.
func (p *OutboundPipeline) assertWriteInterestLocked() {
	if p.writeInterestAsserted {
		return
	}
	p.writeInterestAsserted = true
	if p.key != nil {
		p.key.SetInterestOps(p.key.InterestOps() | OpWrite)
		if sel := p.key.Selector(); sel != nil {
			sel.Wakeup()
		}
	}
}

// onConnected implements 4.5: clears writeInterestAsserted so a freshly
// connected endpoint starts from a known "no interest yet asserted" state.
func (p *OutboundPipeline) onConnected() {
	p.mu.Lock()
	p.writeInterestAsserted = false
	p.mu.Unlock()
}

// onDisconnected implements 4.5: forces writeInterestAsserted true so that
// assertWriteInterestLocked becomes a no-op for the rest of this endpoint's
// life, suppressing further SetInterestOps calls against a key that is
// tearing down.
func (p *OutboundPipeline) onDisconnected() {
	p.mu.Lock()
	p.writeInterestAsserted = true
	p.mu.Unlock()
}

// clearWriteInterestLocked must be called with mu held.
func (p *OutboundPipeline) clearWriteInterestLocked() {
	if !p.writeInterestAsserted {
		return
	}
	p.writeInterestAsserted = false
	if p.key != nil {
		p.key.SetInterestOps(p.key.InterestOps() &^ OpWrite)
	}
}

// fillFromPollRing drains frames from the poll ring into staging's fill
// region until either staging has no more room or the poll ring empties.
// It returns the number of bytes copied. Reactor-goroutine-exclusive: the
// poll ring is never touched by the producer.
func (p *OutboundPipeline) fillFromPollRing(staging *stagingBuffer) int {
	copied := 0
	for staging.hasRemaining() && !p.pollRing.IsEmpty() {
		slice := p.pollRing.PeekUnsafe()
		n := staging.put(slice.bytes())
		slice.advance(n)
		copied += n
		if !slice.exhausted() {
			break // staging ran out of room before the frame drained fully
		}
		p.pollRing.PollUnsafe()
		p.releaseSlice(slice)
	}
	return copied
}

// addThrottledWriteBytes accumulates n into the reactor-local counter and
// publishes writeBufferBytes at most once per writeCountUpdateInterval, per
// the fill-phase throttling policy.
func (p *OutboundPipeline) addThrottledWriteBytes(n int) {
	if n == 0 {
		return
	}
	p.currWriteBufferBytes += int64(n)

	now := p.clock.CachedTime()
	last := p.lastWriteUpdateNanos.Load()
	if last == 0 || now.Sub(time.Unix(0, last)) >= p.writeCountUpdateInterval {
		p.writeBufferBytes.Store(p.currWriteBufferBytes)
		p.lastWriteUpdateNanos.Store(now.UnixNano())
	}
}

// publishWriteBytesDirect accumulates n and publishes unconditionally. Used
// on the slow-path refill-after-full-flush branch of onWritable, which is
// infrequent enough that the per-send-cache-line cost of a direct publish is
// preferable to further staleness (see the resolved open question).
func (p *OutboundPipeline) publishWriteBytesDirect(n int) {
	if n == 0 {
		return
	}
	p.currWriteBufferBytes += int64(n)
	p.writeBufferBytes.Store(p.currWriteBufferBytes)
	p.lastWriteUpdateNanos.Store(p.clock.CachedTime().UnixNano())
}

// pollRingEmpty reports whether the reactor-side ring currently has no
// frames. Reactor-goroutine-exclusive.
func (p *OutboundPipeline) pollRingEmpty() bool {
	return p.pollRing.IsEmpty()
}

// RotatePollRing implements 4.2's poll-ring rotation, run once the staging
// buffer has fully drained and the poll ring has emptied. It does nothing if
// the producer has offered into the poll ring since the caller's check.
func (p *OutboundPipeline) RotatePollRing() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.pollRing.IsEmpty() {
		return
	}
	if p.offerRing == p.pollRing {
		p.clearWriteInterestLocked()
		return
	}
	if p.retiredRings.IsEmpty() {
		p.pollRing = p.offerRing
		return
	}
	ring, _ := p.retiredRings.Poll()
	p.pollRing = ring
}

// deliverError collects an error raised on the reactor goroutine so it can
// be surfaced on the producer's next TryEnqueue slow path. If the channel is
// full, the oldest entry is dropped to make room (best effort; the producer
// has already missed at least one prior error).
func (p *OutboundPipeline) deliverError(e *Error) {
	if p.errorChannel.Offer(e) {
		return
	}
	p.errorChannel.Poll()
	p.errorChannel.Offer(e)
}

// unregister swaps the live offer ring for a read-through sentinel so any
// in-flight poll-side drain can finish while further Send calls fail
// fatally. Idempotent.
func (p *OutboundPipeline) unregister() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return
	}
	p.offerRing = &sentinelRing{frozen: p.offerRing}
	p.closed.Store(true)
}

// snapshot captures the counters needed by EndpointStats under the monitor,
// so capacity/interest/ring-identity are read consistently.
func (p *OutboundPipeline) snapshot() (ringCapacity int, writeInterest bool, offerSize, pollSize, retiredCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offerRing.Capacity(), p.writeInterestAsserted, p.offerRing.Size(), p.pollRing.Size(), p.retiredRings.Size()
}
