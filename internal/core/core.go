package core

import (
	"context"
)

// Package with the device session logic: simple command turn-taking,
// capability negotiation and sample streaming.
//
// The usb package is not imported here; it builds on cgo and takes long to
// compile, and the session logic only needs the abstract interfaces below.
// They are implemented in internal/usb and faked in tests.

// Channel is a byte duplex with request/response semantics: one Write is
// answered by one Read. Implementations return *types.Error values of kind
// ErrTimeout or ErrTransportFailure on failure.
type Channel interface {
	Write(ctx context.Context, p []byte) (int, error)
	Read(ctx context.Context, p []byte) (int, error)
}

// SampleSink accepts packed sample packets. A write that did not complete
// in time returns an error of kind ErrTimeout and may be retried.
type SampleSink interface {
	WriteSamples(ctx context.Context, p []byte) (int, error)
}

// AsyncSink queues packets for transfer without waiting for completion.
// Write copies p before returning. A failed transfer is reported by a
// later Write or by Close.
type AsyncSink interface {
	Write(p []byte) (int, error)
	Close() error
}
