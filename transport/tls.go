// File: transport/tls.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

var errNoCertificates = errors.New("transport: no certificates in CA bundle")

// cipherSuites restricts TLS 1.2 to forward-secret AEAD suites.
// TLS 1.3 suites are not configurable and are always allowed.
var cipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
}

// clientTLSConfig builds a verifying client config for host.
func clientTLSConfig(opts TLSConfig, host string) (*tls.Config, error) {
	roots := opts.RootCAs
	if roots == nil && opts.CAFile != "" {
		pem, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca bundle: %w", err)
		}
		roots = x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: %s", errNoCertificates, opts.CAFile)
		}
	}
	name := opts.ServerName
	if name == "" {
		name = host
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: cipherSuites,
		RootCAs:      roots,
		ServerName:   name,
	}, nil
}
