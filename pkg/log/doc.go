// Package log provides structured event logging for the duplex transport.
//
// The transport emits an Event for connection lifecycle transitions, traffic
// summaries, and errors. Applications receive events by implementing the
// Logger interface; implementations are provided for discarding events
// (NoopLogger), writing CBOR-encoded events to a file (FileLogger), mirroring
// events to log/slog (SlogAdapter), and fanning out to several sinks
// (MultiLogger). Recorded event files can be read back with Reader.
//
// Events use CBOR with integer keys for compact on-disk encoding.
package log
