// testutil_test.go: fake reactor contracts shared by pipeline/endpoint tests
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package netlet

import "sync"

// fakeChannel is an in-memory Channel that appends every Write to a buffer,
// optionally accepting fewer bytes than offered to simulate a short write.
type fakeChannel struct {
	mu       sync.Mutex
	written  []byte
	maxWrite int // 0 means unlimited
	closed   bool
	writeErr error
}

func (c *fakeChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	n := len(p)
	if c.maxWrite > 0 && n > c.maxWrite {
		n = c.maxWrite
	}
	c.written = append(c.written, p[:n]...)
	return n, nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.written))
	copy(out, c.written)
	return out
}

// fakeSelector is a no-op Selector sufficient for tests that never actually
// dispatch readiness events.
type fakeSelector struct {
	wakeups int
}

func (s *fakeSelector) Register(ch Channel, initial Op) (RegistrationKey, error) {
	return &fakeKey{ch: ch, ops: initial, valid: true, sel: s}, nil
}
func (s *fakeSelector) Unregister(key RegistrationKey) error { return nil }
func (s *fakeSelector) Wakeup()                              { s.wakeups++ }

type fakeKey struct {
	mu    sync.Mutex
	ch    Channel
	ops   Op
	valid bool
	sel   *fakeSelector
}

func (k *fakeKey) InterestOps() Op {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ops
}
func (k *fakeKey) SetInterestOps(ops Op) {
	k.mu.Lock()
	k.ops = ops
	k.mu.Unlock()
}
func (k *fakeKey) Selector() Selector  { return k.sel }
func (k *fakeKey) Attach(x any)        {}
func (k *fakeKey) Attachment() any     { return nil }
func (k *fakeKey) Channel() Channel    { return k.ch }
func (k *fakeKey) IsValid() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.valid
}

// fakeListener records inbound reads and lets a test choose its fill buffer
// size.
type fakeListener struct {
	buf        []byte
	reads      [][]byte
	connectedN int
	disconnN   int
}

func newFakeListener(size int) *fakeListener {
	return &fakeListener{buf: make([]byte, size)}
}

func (l *fakeListener) Buffer() []byte { return l.buf }
func (l *fakeListener) Read(n int) {
	chunk := make([]byte, n)
	copy(chunk, l.buf[:n])
	l.reads = append(l.reads, chunk)
}
func (l *fakeListener) Connected()    { l.connectedN++ }
func (l *fakeListener) Disconnected() { l.disconnN++ }
