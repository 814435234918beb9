package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ErrNoCertsFound is returned when a PEM bundle holds no certificates.
var ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM data")

// AppendPEM adds every CERTIFICATE block in data to pool.
func AppendPEM(pool *x509.CertPool, data []byte) error {
	added := 0
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		pool.AddCert(cert)
		added++
	}
	if added == 0 {
		return ErrNoCertsFound
	}
	return nil
}

// LoadCAFile returns a pool holding only the certificates in path.
func LoadCAFile(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tlsroots: read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if err := AppendPEM(pool, data); err != nil {
		return nil, fmt.Errorf("tlsroots: %s: %w", path, err)
	}
	return pool, nil
}

// ServerConfig returns a listener config serving certs. A non-nil
// clientCAs requires and verifies client certificates.
func ServerConfig(certs *Reloader, clientCAs *x509.CertPool) *tls.Config {
	cfg := &tls.Config{
		GetCertificate: certs.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
	if clientCAs != nil {
		cfg.ClientCAs = clientCAs
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg
}

// ClientConfig trusts the system roots plus caFile, if set. certFile and
// keyFile, if set, are presented as the client certificate.
func ClientConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if caFile != "" {
		data, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("tlsroots: read CA file: %w", err)
		}
		if err := AppendPEM(pool, data); err != nil {
			return nil, fmt.Errorf("tlsroots: %s: %w", caFile, err)
		}
	}

	cfg := &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	if certFile != "" || keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("tlsroots: load client key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
