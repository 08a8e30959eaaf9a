// ringbuffer.go: single-producer/single-consumer ring buffer for the send pipeline
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package netlet

import (
	"log/slog"
	"math/bits"
	"sync/atomic"
	"time"
)

const cacheLinePad = 64

// nextPow2 returns the smallest power of two >= x, with a floor of 1.
func nextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	return 1 << (64 - bits.LeadingZeros64(x-1))
}

// RingBuffer is a fixed-capacity, single-producer/single-consumer queue of
// references. Capacity is always a power of two: a non-power-of-two request
// is rounded up and logged. Exactly one goroutine may call Offer/OfferWait;
// exactly one (possibly different) goroutine may call the Poll/Peek family.
// Violating that contract is a data race, not a panic.
//
// head and tail are monotonically increasing logical indices; the physical
// slot is index & mask. Both are padded to their own cache line so the
// producer and consumer never false-share.
type RingBuffer[T any] struct {
	buf  []T
	mask uint64

	head atomic.Uint64
	_    [cacheLinePad - 8]byte
	tail atomic.Uint64
	_    [cacheLinePad - 8]byte

	spin time.Duration
}

// NewRingBuffer creates a ring of the given capacity (rounded up to a power
// of two) and an optional bounded spin-wait duration used only by OfferWait.
// The logger receives the rounding warning; a nil logger suppresses it.
func NewRingBuffer[T any](capacity uint64, spin time.Duration, logger *slog.Logger) *RingBuffer[T] {
	if capacity == 0 {
		capacity = 1
	}
	rounded := nextPow2(capacity)
	if rounded != capacity && logger != nil {
		logger.Warn("ring capacity rounded up to power of two",
			"requested", capacity, "rounded", rounded)
	}

	return &RingBuffer[T]{
		buf:  make([]T, rounded),
		mask: rounded - 1,
		spin: spin,
	}
}

// Capacity returns the fixed capacity of the ring, always a power of two.
func (r *RingBuffer[T]) Capacity() int {
	return len(r.buf)
}

// Size returns tail-head, the number of queued elements. Safe to call from
// either side; the snapshot may be stale by the time it is used, which is
// expected for a concurrent SPSC structure.
func (r *RingBuffer[T]) Size() int {
	return int(r.tail.Load() - r.head.Load())
}

// IsEmpty reports whether the ring currently holds no elements.
func (r *RingBuffer[T]) IsEmpty() bool {
	return r.head.Load() == r.tail.Load()
}

// IsFull reports whether the ring is at capacity.
func (r *RingBuffer[T]) IsFull() bool {
	return r.tail.Load()-r.head.Load() >= uint64(len(r.buf))
}

// Offer appends x if the ring is not full. It never blocks.
func (r *RingBuffer[T]) Offer(x T) bool {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail-head >= uint64(len(r.buf)) {
		return false
	}
	r.buf[tail&r.mask] = x
	r.tail.Store(tail + 1)
	return true
}

// OfferWait behaves like Offer but, on a full ring, spins for up to the
// configured spin duration before giving up. It is a capability of the ring,
// not a behavior the send pipeline relies on: growth, not waiting, is how
// the pipeline handles backpressure (see OutboundPipeline.TryEnqueue).
func (r *RingBuffer[T]) OfferWait(x T) bool {
	if r.Offer(x) {
		return true
	}
	if r.spin <= 0 {
		return false
	}
	deadline := time.Now().Add(r.spin)
	for time.Now().Before(deadline) {
		if r.Offer(x) {
			return true
		}
	}
	return false
}

// Poll removes and returns the head element, or the zero value and false if
// the ring is empty.
func (r *RingBuffer[T]) Poll() (T, bool) {
	var zero T
	head := r.head.Load()
	tail := r.tail.Load()
	if head == tail {
		return zero, false
	}
	v := r.buf[head&r.mask]
	var clear T
	r.buf[head&r.mask] = clear
	r.head.Store(head + 1)
	return v, true
}

// Peek returns the head element without removing it, or the zero value and
// false if the ring is empty.
func (r *RingBuffer[T]) Peek() (T, bool) {
	var zero T
	head := r.head.Load()
	tail := r.tail.Load()
	if head == tail {
		return zero, false
	}
	return r.buf[head&r.mask], true
}

// PollUnsafe removes and returns the head element without checking for
// emptiness. The caller must have already confirmed Size() > 0 (typically
// via a single snapshot before a batch of dequeues); calling it on an empty
// ring returns the zero value.
func (r *RingBuffer[T]) PollUnsafe() T {
	head := r.head.Load()
	v := r.buf[head&r.mask]
	var clear T
	r.buf[head&r.mask] = clear
	r.head.Store(head + 1)
	return v
}

// PeekUnsafe returns the head element without checking for emptiness. The
// caller must have already confirmed Size() > 0.
func (r *RingBuffer[T]) PeekUnsafe() T {
	return r.buf[r.head.Load()&r.mask]
}
