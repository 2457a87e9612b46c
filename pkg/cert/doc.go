// Package cert loads and stores the certificate material consumed by the
// transport layer: PEM encoding/decoding for X.509 certificates and private
// keys, file-backed key pair loading for server endpoints, and self-signed
// certificate generation for development setups and tests.
package cert
