// errors.go: structured error kinds surfaced from the reactor goroutine to the producer
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package netlet

import (
	goerrors "github.com/agilira/go-errors"
)

// Kind classifies an Error raised by the endpoint or its pipeline.
type Kind int

const (
	// KindBackpressureRejection marks a non-fatal Send rejection: the byte
	// cap would be exceeded, or the pipeline is already at its maximum ring
	// capacity and still full. The caller may retry later.
	KindBackpressureRejection Kind = iota

	// KindFatalOwnershipLost marks a Send raised synchronously after
	// unregistered: the endpoint no longer owns the socket.
	KindFatalOwnershipLost

	// KindCollectedReactorError marks an error raised on the reactor
	// goroutine during OnReadable/OnWritable, deposited in the error
	// channel and re-raised on the producer's next Send slow path.
	KindCollectedReactorError

	// KindEndOfStream marks an orderly close triggered by end-of-stream on
	// the inbound side.
	KindEndOfStream
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindBackpressureRejection:
		return "backpressure_rejection"
	case KindFatalOwnershipLost:
		return "fatal_ownership_lost"
	case KindCollectedReactorError:
		return "collected_reactor_error"
	case KindEndOfStream:
		return "end_of_stream"
	default:
		return "unknown"
	}
}

// Error is the envelope wrapping a reactor-thread failure (or a
// fatal/backpressure condition) so it can be recovered on the producer
// goroutine. It wraps github.com/agilira/go-errors for structured
// code+message+cause composition and implements Unwrap so errors.Is/As work
// against the underlying cause.
type Error struct {
	Kind  Kind
	inner *goerrors.Error
}

// newError builds an Error of the given kind with no underlying cause.
func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, inner: goerrors.New(kind.String(), message)}
}

// wrapError builds an Error of the given kind wrapping cause.
func wrapError(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, inner: goerrors.Wrap(cause, kind.String(), message)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil || e.inner == nil {
		return e.Kind.String()
	}
	return e.inner.Error()
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil || e.inner == nil {
		return nil
	}
	return e.inner.Unwrap()
}

// ErrFatalOwnershipLost is returned by TryEnqueue once an endpoint has been
// unregistered (Send/SendRange report it as false); it never carries a cause.
var ErrFatalOwnershipLost = newError(KindFatalOwnershipLost, "client does not own the socket any longer")

// ErrBackpressure is returned by TryEnqueue (Send/SendRange report it as
// false) when a frame is rejected
// because it would exceed the configured byte cap, or the pipeline is
// already at MaxSendBufferSize and full.
var ErrBackpressure = newError(KindBackpressureRejection, "send rejected: backpressure limit reached")
