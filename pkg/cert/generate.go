package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"
)

// DefaultSelfSignedValidity is the validity period for generated
// self-signed certificates.
const DefaultSelfSignedValidity = 365 * 24 * time.Hour

// SelfSignedOptions configures self-signed certificate generation.
type SelfSignedOptions struct {
	// CommonName is the subject common name.
	CommonName string

	// DNSNames are the subject alternative DNS names.
	DNSNames []string

	// IPAddresses are the subject alternative IP addresses.
	IPAddresses []net.IP

	// Validity is the certificate lifetime (default: DefaultSelfSignedValidity).
	Validity time.Duration
}

// GenerateSelfSigned creates a self-signed ECDSA P-256 certificate suitable
// for both server and client authentication. Intended for development
// endpoints and tests; production deployments load CA-issued material via
// LoadKeyPair.
func GenerateSelfSigned(opts SelfSignedOptions) (tls.Certificate, *x509.Certificate, error) {
	if opts.CommonName == "" {
		opts.CommonName = "localhost"
	}
	if opts.Validity == 0 {
		opts.Validity = DefaultSelfSignedValidity
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: opts.CommonName,
		},
		NotBefore:             now,
		NotAfter:              now.Add(opts.Validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              opts.DNSNames,
		IPAddresses:           opts.IPAddresses,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	leaf, err := x509.ParseCertificate(certDER)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  privateKey,
		Leaf:        leaf,
	}, leaf, nil
}
