package transport

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/duplex-transport/duplex-go/pkg/log"
)

// Transport errors.
var (
	// ErrOutputClosed is reported by Writev when the output half is closed.
	// It is a normal terminal result, not a failure: callers detect it with
	// errors.Is and stop writing.
	ErrOutputClosed = errors.New("output closed")
)

// closeBarrier resolves a shared done channel once both halves of a duplex
// stream have reached their terminal state. Exactly one caller observes the
// second completion and closes the channel; any number of holders may wait
// on it.
type closeBarrier struct {
	remaining atomic.Int32
	done      chan struct{}
}

func newCloseBarrier() *closeBarrier {
	b := &closeBarrier{done: make(chan struct{})}
	b.remaining.Store(2)
	return b
}

// halfClosed records one half reaching its terminal state.
// Callers must guarantee at most one call per half.
func (b *closeBarrier) halfClosed() {
	if b.remaining.Add(-1) == 0 {
		close(b.done)
	}
}

// Duplex is the handle for one established connection: an input half, an
// output half, and a shared closed signal that resolves once both halves
// are terminal. Instances are produced by Client.Connect and the server
// accept path, or by NewDuplex for a pre-established (possibly plain)
// connection.
type Duplex struct {
	conn       net.Conn
	connID     string
	remoteAddr net.Addr

	closed       *closeBarrier
	inputOnce    sync.Once
	outputOnce   sync.Once
	outputClosed atomic.Bool
	closeOnce    sync.Once

	readMu  sync.Mutex
	writeMu sync.Mutex

	bytesRead    atomic.Int64
	bytesWritten atomic.Int64

	logger log.Logger
	role   log.Role
}

// NewDuplex wraps an established connection. The conn may be a *tls.Conn
// produced by a handshake or a plain net.Conn; the capability surface is
// identical for both.
func NewDuplex(conn net.Conn) *Duplex {
	return &Duplex{
		conn:       conn,
		connID:     uuid.New().String(),
		remoteAddr: conn.RemoteAddr(),
		closed:     newCloseBarrier(),
	}
}

// SetLogger configures event logging for this connection.
// Pass nil to disable logging.
func (d *Duplex) SetLogger(logger log.Logger, role log.Role) {
	d.logger = logger
	d.role = role
}

// ConnID returns the unique connection identifier.
func (d *Duplex) ConnID() string {
	return d.connID
}

// LocalAddr returns the local network address.
func (d *Duplex) LocalAddr() net.Addr {
	return d.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (d *Duplex) RemoteAddr() net.Addr {
	return d.remoteAddr
}

// TLSState returns the TLS connection state and true when the underlying
// connection is TLS-protected.
func (d *Duplex) TLSState() (tls.ConnectionState, bool) {
	if tc, ok := d.conn.(*tls.Conn); ok {
		return tc.ConnectionState(), true
	}
	return tls.ConnectionState{}, false
}

// Done returns the shared closed signal. It resolves exactly once, when both
// the input and the output half have reached their terminal state.
func (d *Duplex) Done() <-chan struct{} {
	return d.closed.done
}

// Read reads up to len(p) bytes into p. End of stream is reported as io.EOF,
// distinct from a zero-byte read; callers stop reading once they observe it.
// A read against a locally closed connection also reports io.EOF rather than
// leaking the runtime's closed-connection error.
func (d *Duplex) Read(p []byte) (int, error) {
	d.readMu.Lock()
	defer d.readMu.Unlock()

	n, err := d.conn.Read(p)
	d.bytesRead.Add(int64(n))
	if err != nil {
		if err == io.EOF || errors.Is(err, net.ErrClosed) {
			d.markInputClosed()
			return n, io.EOF
		}
		return n, fmt.Errorf("read failed: %w", err)
	}
	return n, nil
}

// Writev queues the byte ranges in order and returns once they have been
// flushed to the underlying transport. The returned count is the total number
// of bytes written. A write against a closed output reports ErrOutputClosed
// as the result; it never panics. Note that bufs is consumed by the write.
func (d *Duplex) Writev(bufs net.Buffers) (int64, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if d.outputClosed.Load() {
		return 0, ErrOutputClosed
	}

	n, err := bufs.WriteTo(d.conn)
	d.bytesWritten.Add(n)
	if err != nil {
		if isOutputClosed(err) {
			d.markOutputClosed()
			return n, ErrOutputClosed
		}
		return n, fmt.Errorf("write failed: %w", err)
	}
	return n, nil
}

// CloseRead is deliberately a no-op. For a TLS-protected connection only a
// full bidirectional close is safe: discarding the receive side without the
// peer's knowledge would permit truncation before the close-notify exchange.
// The plain variant could legitimately half-close, but both variants keep
// the same contract so they stay interchangeable.
func (d *Duplex) CloseRead() error {
	return nil
}

// Close waits for any in-flight write to finish flushing, closes the output
// and input halves, and returns once the shared closed signal has resolved.
// Idempotent: a second call returns nil. Close succeeds even when the peer
// has already disconnected.
func (d *Duplex) Close() error {
	var err error
	d.closeOnce.Do(func() {
		// Taking writeMu serializes teardown behind the last scheduled flush.
		d.writeMu.Lock()
		err = d.conn.Close()
		d.markOutputClosed()
		d.writeMu.Unlock()

		d.markInputClosed()
		<-d.closed.done

		d.logClosed(err)
	})
	return err
}

func (d *Duplex) markInputClosed() {
	d.inputOnce.Do(d.closed.halfClosed)
}

func (d *Duplex) markOutputClosed() {
	d.outputOnce.Do(func() {
		d.outputClosed.Store(true)
		d.closed.halfClosed()
	})
}

// logClosed emits the terminal state change and a traffic summary.
func (d *Duplex) logClosed(closeErr error) {
	if d.logger == nil {
		return
	}

	reason := ""
	if closeErr != nil {
		reason = closeErr.Error()
	}
	d.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: d.connID,
		Category:     log.CategoryState,
		Role:         d.role,
		RemoteAddr:   d.remoteAddr.String(),
		StateChange: &log.StateChangeEvent{
			OldState: "CONNECTED",
			NewState: "CLOSED",
			Reason:   reason,
		},
	})
	d.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: d.connID,
		Category:     log.CategoryTraffic,
		Role:         d.role,
		RemoteAddr:   d.remoteAddr.String(),
		Traffic: &log.TrafficEvent{
			BytesRead:    d.bytesRead.Load(),
			BytesWritten: d.bytesWritten.Load(),
		},
	})
}

// isOutputClosed reports whether err is one of the runtime error shapes that
// mean the output half is gone. The translation keeps raw runtime errors
// from leaking past the capability boundary.
func isOutputClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
