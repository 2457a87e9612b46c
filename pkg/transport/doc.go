// Package transport provides a uniform secure byte-stream transport.
//
// The package exposes one handle type, Duplex, over every established
// connection, whether TLS-protected or plain:
//   - Read with a distinct end-of-stream signal
//   - Writev for ordered, flushed vectored writes
//   - CloseRead as a deliberate no-op (full close only over TLS)
//   - Close as an idempotent full close with a shared completion signal
//
// Client dials and performs the TLS handshake; Server accepts, performs the
// per-connection server handshake, and hands each stream to an injected
// Handler. Protocol code above depends only on the Stream interface.
//
// # TLS policy
//
// Every configuration built here pins the protocol range to TLS 1.2 through
// 1.3 and
// a fixed ECDHE cipher set for TLS 1.2 (TLS 1.3 suites are implied). ALPN
// lists are optional on both sides; when offered, the negotiated protocol is
// verified after the handshake.
//
// # Closing
//
// Each Duplex carries a one-shot closed signal that resolves once both the
// input and output half are terminal. Exactly one internal path resolves it;
// any number of goroutines may wait on Done. Close waits for the last
// scheduled flush, tears both halves down, and returns only after the signal
// has resolved.
package transport
