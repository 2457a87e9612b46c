package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/duplex-transport/duplex-go/pkg/log"
)

// Handler processes one accepted, handshake-complete connection. The handler
// owns the stream for its lifetime; the server closes it after the handler
// returns (Close is idempotent, so handlers may also close it themselves).
// Handler errors are the handler's own concern: a failed connection never
// terminates the listener.
type Handler func(stream *Duplex)

// EchoHandler writes back whatever it reads until end of stream. It is the
// default handler and exists to smoke-test the handshake and transport path;
// real deployments inject their own Handler.
func EchoHandler(stream *Duplex) {
	defer stream.Close()

	buf := make([]byte, 32*1024)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := stream.Writev(net.Buffers{buf[:n]}); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// ServerConfig configures an accepting server.
type ServerConfig struct {
	// TLSConfig contains the TLS settings. Required.
	TLSConfig *ServerTLSConfig

	// Address to listen on (e.g., ":9443" or "127.0.0.1:9443").
	Address string

	// Handler processes each accepted connection (default: EchoHandler).
	Handler Handler

	// Logger for transport event logging (optional).
	Logger log.Logger

	// OnError is called for accept and handshake errors (optional). These
	// errors are non-fatal; the listener keeps running.
	OnError func(err error)
}

// Server accepts TLS connections, performs the server-side handshake per
// connection, and hands each resulting duplex stream to the configured
// handler.
type Server struct {
	config  ServerConfig
	tlsConf *tls.Config

	listener net.Listener

	// Active connections
	conns   map[*Duplex]struct{}
	connsMu sync.Mutex

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a new server. The TLS configuration is validated here,
// so a broken certificate setup fails before any socket is bound.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Handler == nil {
		config.Handler = EchoHandler
	}

	tlsConf, err := NewServerTLSConfig(config.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}

	return &Server{
		config:  config,
		tlsConf: tlsConf,
		conns:   make(map[*Duplex]struct{}),
	}, nil
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener and all active connections, then waits for the
// handler goroutines to finish.
func (s *Server) Stop() error {
	if !s.running.Load() {
		return nil
	}

	s.running.Store(false)
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()

	return nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// acceptLoop accepts incoming connections. Accept errors affect only the
// connection in question; the loop keeps serving.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				s.reportError(fmt.Errorf("accept error: %w", err))
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection performs the server-side handshake and runs the handler.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	tlsConn := tls.Server(conn, s.tlsConf)
	if err := tlsConn.HandshakeContext(s.ctx); err != nil {
		conn.Close()
		s.reportError(fmt.Errorf("TLS handshake failed: %w", err))
		return
	}

	state := tlsConn.ConnectionState()
	if err := VerifyNegotiatedProtocol(state, s.config.TLSConfig.ALPN); err != nil {
		tlsConn.Close()
		s.reportError(fmt.Errorf("connection verification failed: %w", err))
		return
	}

	d := NewDuplex(tlsConn)
	if s.config.Logger != nil {
		d.SetLogger(s.config.Logger, log.RoleServer)
		s.config.Logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: d.ConnID(),
			Category:     log.CategoryState,
			Role:         log.RoleServer,
			RemoteAddr:   d.RemoteAddr().String(),
			StateChange: &log.StateChangeEvent{
				NewState: "CONNECTED",
			},
		})
	}

	s.connsMu.Lock()
	s.conns[d] = struct{}{}
	s.connsMu.Unlock()

	s.config.Handler(d)
	d.Close()

	s.connsMu.Lock()
	delete(s.conns, d)
	s.connsMu.Unlock()
}

// reportError forwards a non-fatal error to the logger and callback.
func (s *Server) reportError(err error) {
	if s.config.Logger != nil {
		s.config.Logger.Log(log.Event{
			Timestamp: time.Now(),
			Category:  log.CategoryError,
			Role:      log.RoleServer,
			Error: &log.ErrorEvent{
				Message: err.Error(),
				Context: "accept",
			},
		})
	}
	if s.config.OnError != nil {
		s.config.OnError(err)
	}
}
