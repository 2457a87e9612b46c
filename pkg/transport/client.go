package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/duplex-transport/duplex-go/pkg/log"
)

// DefaultConnectTimeout bounds Connect when the caller's context carries no
// deadline.
const DefaultConnectTimeout = 30 * time.Second

// ClientConfig configures a client connector.
type ClientConfig struct {
	// TLSConfig contains the TLS settings. Required.
	TLSConfig *ClientTLSConfig

	// ConnectTimeout is the connection timeout (default: 30s).
	ConnectTimeout time.Duration

	// Logger for transport event logging (optional).
	Logger log.Logger
}

// Client establishes outbound TLS connections and yields ready-to-use
// duplex streams.
type Client struct {
	config  ClientConfig
	tlsConf *tls.Config
}

// NewClient creates a new client connector.
func NewClient(config ClientConfig) (*Client, error) {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}

	tlsConf, err := NewClientTLSConfig(config.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}

	return &Client{
		config:  config,
		tlsConf: tlsConf,
	}, nil
}

// Connect dials the address, performs the TLS handshake, and returns the
// connection as a *Duplex with its closed signal wired. On handshake failure
// the socket is closed and a descriptive error is returned; no partially
// formed handle escapes.
func (c *Client) Connect(ctx context.Context, address string) (*Duplex, error) {
	// Apply timeout from config if context doesn't have one
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	tlsConf := c.tlsConf
	if tlsConf.ServerName == "" && !tlsConf.InsecureSkipVerify {
		host, _, splitErr := net.SplitHostPort(address)
		if splitErr == nil {
			tlsConf = tlsConf.Clone()
			tlsConf.ServerName = host
		}
	}

	tlsConn := tls.Client(conn, tlsConf)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("TLS handshake failed: %w", err)
	}

	state := tlsConn.ConnectionState()
	if err := VerifyNegotiatedProtocol(state, c.config.TLSConfig.ALPN); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("connection verification failed: %w", err)
	}

	d := NewDuplex(tlsConn)
	if c.config.Logger != nil {
		d.SetLogger(c.config.Logger, log.RoleClient)
		c.config.Logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: d.ConnID(),
			Category:     log.CategoryState,
			Role:         log.RoleClient,
			RemoteAddr:   d.RemoteAddr().String(),
			StateChange: &log.StateChangeEvent{
				NewState: "CONNECTED",
			},
		})
	}

	return d, nil
}

// DialInsecure connects with the anonymous client policy: peer verification
// skipped, optional ALPN list. A convenience wrapper over NewClient/Connect
// for contexts where certificate validation is handled elsewhere.
func DialInsecure(ctx context.Context, address string, alpn []string) (*Duplex, error) {
	client, err := NewClient(ClientConfig{
		TLSConfig: NewInsecureClientTLSConfig("", alpn),
	})
	if err != nil {
		return nil, err
	}
	return client.Connect(ctx, address)
}
