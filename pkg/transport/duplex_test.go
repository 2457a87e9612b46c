package transport

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// tcpPair creates a connected TCP pair on the loopback interface.
func tcpPair(t *testing.T) (client net.Conn, server net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()

	type accepted struct {
		conn net.Conn
		err  error
	}
	ch := make(chan accepted, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- accepted{conn, err}
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}

	a := <-ch
	if a.err != nil {
		client.Close()
		t.Fatalf("failed to accept: %v", a.err)
	}

	t.Cleanup(func() {
		client.Close()
		a.conn.Close()
	})

	return client, a.conn
}

func TestDuplexReadEOF(t *testing.T) {
	clientConn, serverConn := tcpPair(t)
	d := NewDuplex(clientConn)

	if _, err := serverConn.Write([]byte("abc")); err != nil {
		t.Fatalf("peer write failed: %v", err)
	}
	serverConn.Close()

	var got []byte
	buf := make([]byte, 16)
	for {
		n, err := d.Read(buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
	}

	if string(got) != "abc" {
		t.Errorf("Read = %q, want %q", got, "abc")
	}

	// End of stream is terminal: further reads keep reporting EOF.
	if _, err := d.Read(buf); err != io.EOF {
		t.Errorf("Read after EOF = %v, want io.EOF", err)
	}
}

func TestDuplexWritevOrderAndFlush(t *testing.T) {
	clientConn, serverConn := tcpPair(t)
	d := NewDuplex(clientConn)

	want := []byte("hello, duplex")
	read := make(chan []byte, 1)
	go func() {
		got := make([]byte, len(want))
		if _, err := io.ReadFull(serverConn, got); err != nil {
			read <- nil
			return
		}
		read <- got
	}()

	bufs := net.Buffers{[]byte("hello"), []byte(", "), []byte("duplex")}
	n, err := d.Writev(bufs)
	if err != nil {
		t.Fatalf("Writev failed: %v", err)
	}
	if n != int64(len(want)) {
		t.Errorf("Writev = %d bytes, want %d", n, len(want))
	}

	got := <-read
	if !bytes.Equal(got, want) {
		t.Errorf("peer read %q, want %q", got, want)
	}
}

func TestDuplexWritevAfterClose(t *testing.T) {
	clientConn, _ := tcpPair(t)
	d := NewDuplex(clientConn)

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	n, err := d.Writev(net.Buffers{[]byte("late")})
	if !errors.Is(err, ErrOutputClosed) {
		t.Errorf("Writev after close = %v, want ErrOutputClosed", err)
	}
	if n != 0 {
		t.Errorf("Writev after close wrote %d bytes, want 0", n)
	}
}

func TestDuplexWritevAfterPeerClose(t *testing.T) {
	clientConn, serverConn := tcpPair(t)
	d := NewDuplex(clientConn)

	serverConn.Close()

	// The first writes may still land in the kernel buffer; keep writing
	// until the broken pipe surfaces.
	payload := bytes.Repeat([]byte("x"), 1024)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, err := d.Writev(net.Buffers{payload})
		if err == nil {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if !errors.Is(err, ErrOutputClosed) {
			t.Fatalf("Writev after peer close = %v, want ErrOutputClosed", err)
		}
		return
	}
	t.Fatal("Writev never failed after peer close")
}

func TestDuplexCloseIdempotent(t *testing.T) {
	clientConn, _ := tcpPair(t)
	d := NewDuplex(clientConn)

	if err := d.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestDuplexDoneResolvesOnClose(t *testing.T) {
	clientConn, _ := tcpPair(t)
	d := NewDuplex(clientConn)

	select {
	case <-d.Done():
		t.Fatal("Done resolved before Close")
	default:
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("Done did not resolve after Close")
	}
}

func TestDuplexDoneRequiresBothHalves(t *testing.T) {
	clientConn, serverConn := tcpPair(t)
	d := NewDuplex(clientConn)

	// Peer closes; our input half reaches end of stream.
	serverConn.Close()
	buf := make([]byte, 8)
	for {
		_, err := d.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
	}

	// Output half is still open, so the shared signal must not resolve yet.
	select {
	case <-d.Done():
		t.Fatal("Done resolved with the output half still open")
	default:
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("Done did not resolve after Close")
	}
}

func TestDuplexCloseReadNoop(t *testing.T) {
	clientConn, serverConn := tcpPair(t)
	d := NewDuplex(clientConn)

	if err := d.CloseRead(); err != nil {
		t.Fatalf("CloseRead = %v, want nil", err)
	}

	// Data sent after CloseRead is still delivered: no half-close happened.
	if _, err := serverConn.Write([]byte("still here")); err != nil {
		t.Fatalf("peer write failed: %v", err)
	}

	got := make([]byte, 10)
	if _, err := io.ReadFull(d, got); err != nil {
		t.Fatalf("Read after CloseRead failed: %v", err)
	}
	if string(got) != "still here" {
		t.Errorf("Read = %q, want %q", got, "still here")
	}
}

func TestDuplexReadAfterClose(t *testing.T) {
	clientConn, _ := tcpPair(t)
	d := NewDuplex(clientConn)

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := d.Read(make([]byte, 8))
		done <- err
	}()

	select {
	case err := <-done:
		if err != io.EOF {
			t.Errorf("Read after Close = %v, want io.EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Read after Close did not return")
	}
}

func TestDuplexPlainConn(t *testing.T) {
	clientConn, _ := tcpPair(t)
	d := NewDuplex(clientConn)

	if d.ConnID() == "" {
		t.Error("ConnID is empty")
	}
	if d.RemoteAddr() == nil {
		t.Error("RemoteAddr is nil")
	}
	if _, ok := d.TLSState(); ok {
		t.Error("TLSState reported TLS for a plain connection")
	}
}
