// slice.go: outbound byte-region view recycled across the send pipeline
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package netlet

// Slice is a (backing array, offset, length) view over caller-owned bytes
// queued for transmission. The caller must not mutate array between Send and
// the frame's final drain. Only the drainer mutates offset/length, advancing
// past bytes already copied into the staging buffer on a partial drain.
//
// Slice instances are recycled through a free-list ring rather than
// allocated per Send; reset prepares a (possibly reused) Slice for a new
// frame.
type Slice struct {
	array  []byte
	offset int
	length int
}

// reset populates the slice with a new frame. off and length must describe a
// valid sub-range of data; the caller is responsible for that invariant
// (Send/SendRange validate it before acquiring a slice).
func (s *Slice) reset(data []byte, off, length int) {
	s.array = data
	s.offset = off
	s.length = length
}

// release clears references so a pooled Slice does not keep the backing
// array of a fully-drained frame alive.
func (s *Slice) release() {
	s.array = nil
	s.offset = 0
	s.length = 0
}

// bytes returns the unconsumed region of the frame.
func (s *Slice) bytes() []byte {
	return s.array[s.offset : s.offset+s.length]
}

// advance records that n bytes of the frame have been copied into the
// staging buffer, shrinking the unconsumed region from the front.
func (s *Slice) advance(n int) {
	s.offset += n
	s.length -= n
}

// exhausted reports whether the whole frame has been copied out.
func (s *Slice) exhausted() bool {
	return s.length == 0
}
