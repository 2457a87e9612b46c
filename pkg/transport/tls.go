package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"slices"

	"github.com/duplex-transport/duplex-go/pkg/cert"
)

// Supported TLS version range. Fixed for every configuration built by this
// package; endpoints negotiate within it.
const (
	MinTLSVersion = tls.VersionTLS12
	MaxTLSVersion = tls.VersionTLS13
)

// SupportedCipherSuites returns the fixed TLS 1.2 cipher policy, in
// preference order. TLS 1.3 suites are not configurable in Go and are
// always enabled.
func SupportedCipherSuites() []uint16 {
	return []uint16{
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	}
}

// ClientTLSConfig holds the client-side TLS settings. A configuration is
// immutable once built into a *tls.Config and serves exactly one Connect
// call's resulting connection.
type ClientTLSConfig struct {
	// ServerName is the expected host identity for certificate verification.
	// When empty, the dialed host name is used.
	ServerName string

	// ALPN is the application protocol list offered during the handshake,
	// most preferred first. Optional.
	ALPN []string

	// RootCAs is the pool of trusted CA certificates. Nil means the system
	// pool.
	RootCAs *x509.CertPool

	// Certificates optionally holds a client certificate for mutual TLS.
	Certificates []tls.Certificate

	// InsecureSkipVerify disables peer identity verification. Only for
	// contexts where validation is handled elsewhere or intentionally
	// skipped.
	InsecureSkipVerify bool
}

// NewClientTLSConfig builds a *tls.Config for connecting as a TLS client.
func NewClientTLSConfig(cfg *ClientTLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ClientTLSConfig is required")
	}

	return &tls.Config{
		MinVersion:         MinTLSVersion,
		MaxVersion:         MaxTLSVersion,
		CipherSuites:       SupportedCipherSuites(),
		ServerName:         cfg.ServerName,
		RootCAs:            cfg.RootCAs,
		Certificates:       cfg.Certificates,
		NextProtos:         slices.Clone(cfg.ALPN),
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}, nil
}

// NewInsecureClientTLSConfig builds the anonymous client policy: no client
// certificate and no peer verification, with an optional ALPN list. Intended
// for contexts where certificate validation happens elsewhere.
func NewInsecureClientTLSConfig(serverName string, alpn []string) *ClientTLSConfig {
	return &ClientTLSConfig{
		ServerName:         serverName,
		ALPN:               alpn,
		InsecureSkipVerify: true,
	}
}

// ServerTLSConfig holds the server-side TLS settings: the certificate chain
// and private key presented to clients, plus the negotiated parameters.
type ServerTLSConfig struct {
	// Certificate is the server certificate chain with its private key.
	Certificate tls.Certificate

	// ALPN is the application protocol list accepted during the handshake,
	// most preferred first. Optional.
	ALPN []string

	// ClientCAs is the pool used to verify client certificates when
	// RequireClientCert is set.
	ClientCAs *x509.CertPool

	// RequireClientCert enables mutual TLS.
	RequireClientCert bool
}

// NewServerTLSConfig builds a *tls.Config for accepting TLS connections.
func NewServerTLSConfig(cfg *ServerTLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ServerTLSConfig is required")
	}
	if len(cfg.Certificate.Certificate) == 0 {
		return nil, fmt.Errorf("server certificate is required")
	}

	clientAuth := tls.NoClientCert
	if cfg.RequireClientCert {
		clientAuth = tls.RequireAndVerifyClientCert
	}

	return &tls.Config{
		MinVersion:   MinTLSVersion,
		MaxVersion:   MaxTLSVersion,
		CipherSuites: SupportedCipherSuites(),
		Certificates: []tls.Certificate{cfg.Certificate},
		ClientCAs:    cfg.ClientCAs,
		ClientAuth:   clientAuth,
		NextProtos:   slices.Clone(cfg.ALPN),
	}, nil
}

// LoadServerTLSConfig loads a certificate chain and private key from PEM
// files and builds the default server policy around them: the fixed version
// range, the fixed cipher set, and an optional ALPN list. An unreadable or
// malformed file fails here, before any listener exists.
func LoadServerTLSConfig(certFile, keyFile string, alpn []string) (*tls.Config, error) {
	keyPair, err := cert.LoadKeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server key pair: %w", err)
	}
	return NewServerTLSConfig(&ServerTLSConfig{
		Certificate: keyPair,
		ALPN:        alpn,
	})
}

// VerifyNegotiatedProtocol checks that the handshake settled on one of the
// offered ALPN protocols. With an empty offer list any outcome is accepted.
func VerifyNegotiatedProtocol(state tls.ConnectionState, offered []string) error {
	if len(offered) == 0 {
		return nil
	}
	if slices.Contains(offered, state.NegotiatedProtocol) {
		return nil
	}
	return fmt.Errorf("ALPN protocol %q is not one of %v", state.NegotiatedProtocol, offered)
}
