package transport

import (
	"context"
	"io"
	"net"
)

// Stream is the capability surface protocol code depends on: reading,
// vectored writing, receive shutdown, and full close. Code above this
// package must not reach past it to the underlying connection, and stays
// unaware of whether TLS is underneath.
// Implemented by Duplex.
type Stream interface {
	// Reader reports end of stream as io.EOF, distinct from an empty read.
	io.Reader

	// Writev queues the byte ranges in order and returns once they are
	// flushed. A closed output is reported as ErrOutputClosed, a normal
	// terminal result.
	Writev(bufs net.Buffers) (int64, error)

	// CloseRead is a no-op; only a full close is safe over TLS.
	CloseRead() error

	// Close flushes, closes both halves, and waits for the shared closed
	// signal. Idempotent.
	Close() error
}

// Dialer establishes outbound duplex connections.
// Implemented by Client.
type Dialer interface {
	// Connect dials the address and returns a ready-to-use stream.
	Connect(ctx context.Context, address string) (*Duplex, error)
}

// Compile-time interface satisfaction checks.
var (
	_ Stream = (*Duplex)(nil)
	_ Dialer = (*Client)(nil)
)
