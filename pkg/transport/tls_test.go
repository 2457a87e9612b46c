package transport

import (
	"crypto/ecdsa"
	"crypto/tls"
	"path/filepath"
	"slices"
	"testing"

	"github.com/duplex-transport/duplex-go/pkg/cert"
)

func TestNewServerTLSConfig(t *testing.T) {
	keyPair, _, err := cert.GenerateSelfSigned(cert.SelfSignedOptions{CommonName: "test.local"})
	if err != nil {
		t.Fatalf("failed to generate certificate: %v", err)
	}

	tlsConf, err := NewServerTLSConfig(&ServerTLSConfig{
		Certificate: keyPair,
		ALPN:        []string{"h2", "http/1.1"},
	})
	if err != nil {
		t.Fatalf("NewServerTLSConfig failed: %v", err)
	}

	if tlsConf.MinVersion != MinTLSVersion {
		t.Errorf("MinVersion = %x, want %x", tlsConf.MinVersion, MinTLSVersion)
	}
	if tlsConf.MaxVersion != MaxTLSVersion {
		t.Errorf("MaxVersion = %x, want %x", tlsConf.MaxVersion, MaxTLSVersion)
	}
	if !slices.Equal(tlsConf.CipherSuites, SupportedCipherSuites()) {
		t.Errorf("CipherSuites = %v, want %v", tlsConf.CipherSuites, SupportedCipherSuites())
	}
	if !slices.Equal(tlsConf.NextProtos, []string{"h2", "http/1.1"}) {
		t.Errorf("NextProtos = %v, want [h2 http/1.1]", tlsConf.NextProtos)
	}
	if tlsConf.ClientAuth != tls.NoClientCert {
		t.Errorf("ClientAuth = %v, want NoClientCert", tlsConf.ClientAuth)
	}
}

func TestNewServerTLSConfigMutual(t *testing.T) {
	keyPair, _, err := cert.GenerateSelfSigned(cert.SelfSignedOptions{})
	if err != nil {
		t.Fatalf("failed to generate certificate: %v", err)
	}

	tlsConf, err := NewServerTLSConfig(&ServerTLSConfig{
		Certificate:       keyPair,
		RequireClientCert: true,
	})
	if err != nil {
		t.Fatalf("NewServerTLSConfig failed: %v", err)
	}

	if tlsConf.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("ClientAuth = %v, want RequireAndVerifyClientCert", tlsConf.ClientAuth)
	}
}

func TestNewServerTLSConfigNoCert(t *testing.T) {
	if _, err := NewServerTLSConfig(&ServerTLSConfig{}); err == nil {
		t.Error("expected error for missing certificate")
	}
	if _, err := NewServerTLSConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNewClientTLSConfig(t *testing.T) {
	tlsConf, err := NewClientTLSConfig(&ClientTLSConfig{
		ServerName: "example.com",
		ALPN:       []string{"h2"},
	})
	if err != nil {
		t.Fatalf("NewClientTLSConfig failed: %v", err)
	}

	if tlsConf.MinVersion != MinTLSVersion {
		t.Errorf("MinVersion = %x, want %x", tlsConf.MinVersion, MinTLSVersion)
	}
	if tlsConf.MaxVersion != MaxTLSVersion {
		t.Errorf("MaxVersion = %x, want %x", tlsConf.MaxVersion, MaxTLSVersion)
	}
	if tlsConf.ServerName != "example.com" {
		t.Errorf("ServerName = %q, want %q", tlsConf.ServerName, "example.com")
	}
	if !slices.Equal(tlsConf.NextProtos, []string{"h2"}) {
		t.Errorf("NextProtos = %v, want [h2]", tlsConf.NextProtos)
	}
	if tlsConf.InsecureSkipVerify {
		t.Error("InsecureSkipVerify should default to false")
	}

	if _, err := NewClientTLSConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNewInsecureClientTLSConfig(t *testing.T) {
	cfg := NewInsecureClientTLSConfig("example.com", []string{"h2", "http/1.1"})

	if !cfg.InsecureSkipVerify {
		t.Error("InsecureSkipVerify should be set")
	}
	if cfg.ServerName != "example.com" {
		t.Errorf("ServerName = %q, want %q", cfg.ServerName, "example.com")
	}
	if len(cfg.Certificates) != 0 {
		t.Error("anonymous policy must not carry a client certificate")
	}
	if !slices.Equal(cfg.ALPN, []string{"h2", "http/1.1"}) {
		t.Errorf("ALPN = %v, want [h2 http/1.1]", cfg.ALPN)
	}
}

func TestLoadServerTLSConfig(t *testing.T) {
	keyPair, leaf, err := cert.GenerateSelfSigned(cert.SelfSignedOptions{CommonName: "test.local"})
	if err != nil {
		t.Fatalf("failed to generate certificate: %v", err)
	}

	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")

	if err := cert.WriteCertFile(certPath, leaf); err != nil {
		t.Fatalf("failed to write certificate: %v", err)
	}
	if err := cert.WriteKeyFile(keyPath, keyPair.PrivateKey.(*ecdsa.PrivateKey)); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}

	tlsConf, err := LoadServerTLSConfig(certPath, keyPath, []string{"h2"})
	if err != nil {
		t.Fatalf("LoadServerTLSConfig failed: %v", err)
	}
	if len(tlsConf.Certificates) != 1 {
		t.Fatalf("Certificates length = %d, want 1", len(tlsConf.Certificates))
	}
	if !slices.Equal(tlsConf.NextProtos, []string{"h2"}) {
		t.Errorf("NextProtos = %v, want [h2]", tlsConf.NextProtos)
	}
}

func TestLoadServerTLSConfigMissingFile(t *testing.T) {
	// Setup must fail before any listener exists.
	_, err := LoadServerTLSConfig("/nonexistent/server.crt", "/nonexistent/server.key", nil)
	if err == nil {
		t.Error("expected error for unreadable certificate file")
	}
}

func TestVerifyNegotiatedProtocol(t *testing.T) {
	offered := []string{"h2", "http/1.1"}

	state := tls.ConnectionState{NegotiatedProtocol: "h2"}
	if err := VerifyNegotiatedProtocol(state, offered); err != nil {
		t.Errorf("VerifyNegotiatedProtocol(h2) = %v, want nil", err)
	}

	state = tls.ConnectionState{NegotiatedProtocol: "spdy/3"}
	if err := VerifyNegotiatedProtocol(state, offered); err == nil {
		t.Error("expected error for protocol outside the offered list")
	}

	state = tls.ConnectionState{NegotiatedProtocol: ""}
	if err := VerifyNegotiatedProtocol(state, nil); err != nil {
		t.Errorf("VerifyNegotiatedProtocol with empty offer = %v, want nil", err)
	}
}
