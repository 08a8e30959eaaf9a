// doc.go: package overview
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package netlet provides a non-blocking TCP client endpoint meant to be driven
// by a single-threaded, reactor-style event loop built on an OS readiness
// selector (epoll/kqueue/IOCP/poll). The reactor itself is not part of this
// package — only the contracts it must satisfy (see RegistrationKey, Selector,
// Channel) and a small reference reactor under demoreactor/ for running the
// examples.
//
// # Outbound path
//
// The hard engineering lives in the send pipeline. A producer goroutine calls
// Send/SendRange, which wraps the given bytes in a Slice and enqueues it on a
// lock-free, single-producer/single-consumer RingBuffer. When the ring is
// full, the pipeline grows it (doubling, up to MaxSendBufferSize) rather than
// blocking the caller; retired rings are drained in FIFO order by the reactor
// goroutine on write-readiness, through a bounded direct write buffer, before
// the socket write happens.
//
//	ep, _ := netlet.NewWithConfig(&netlet.EndpointConfig{
//		Listener:          myListener,
//		WriteBufferSize:   4096,
//		MaxSendBufferSize: 32768,
//	}, netlet.CurrentDefaults())
//	ep.Send([]byte("hello"))
//
// # Inbound path
//
// The reactor calls OnReadable on read-readiness; the endpoint fills the
// region returned by the listener's Buffer() and hands the byte count to
// Read(n). End-of-stream orderly-closes the endpoint: Disconnected() then
// Unregistered() run, after which further Send calls return false
// (TryEnqueue returns ErrFatalOwnershipLost) while any in-flight flush still
// completes.
//
// # Concurrency
//
// Exactly one producer goroutine may call Send/SendRange; exactly one reactor
// goroutine may call OnReadable/OnWritable and the lifecycle hooks. Shared
// byte counters are published with sync/atomic; ring/topology mutations are
// serialized by a single pipeline mutex. The producer holds that mutex
// briefly on every Send, around the offer and the write-interest check; the
// reactor enters it on ring-empty rotation and the lifecycle hooks.
//
// # Errors
//
// Errors raised on the reactor goroutine (I/O failures during OnWritable) are
// collected into a small error channel rather than being thrown out of the
// reactor's readiness callback. A collected error is surfaced to the
// producer by the next TryEnqueue that finds the offer ring full (Send
// reports it as false). See Error and Kind.
//
// # Configuration
//
// Defaults are controlled by the MAX_SENDBUFFER_SIZE, MAX_SENDBUFFER_BYTES
// and WRITE_COUNT_UPDATE_INTERVAL environment variables (see LoadEnvConfig),
// optionally refreshed from a JSON file watched with argus (see
// WatchDefaults). A reload only changes the defaults used by endpoints
// constructed afterward — a live endpoint's configuration is captured once,
// at construction, and never changes underneath it.
package netlet
