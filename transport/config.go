// File: transport/config.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"context"
	"crypto/x509"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-wamp/control"
	"github.com/momentics/hioload-wamp/internal/logging"
)

const (
	// DefaultHandshakeTimeout bounds the wait for the upgrade response.
	DefaultHandshakeTimeout = 2 * time.Second
	// DefaultReadBufferSize is the chunk size of a single socket read.
	DefaultReadBufferSize = 4096
	defaultKeepAlive      = 30 * time.Second
)

// DialFunc opens the underlying stream.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// TLSConfig controls the secure variant.
type TLSConfig struct {
	Enabled    bool   // force TLS on a ws:// target
	CAFile     string // PEM bundle to verify the router; system roots when empty
	ServerName string // SNI and verification name; target host when empty
	RootCAs    *x509.CertPool
}

// Config holds connection parameters.
type Config struct {
	Upgrade          bool // advertise the WAMP subprotocol
	HandshakeTimeout time.Duration
	ReadBufferSize   int
	TLS              TLSConfig

	Logger  *zerolog.Logger
	Metrics *control.Metrics

	// OnTaskError observes failures of background tasks such as "pong"
	// and "close".
	OnTaskError func(task string, err error)

	// DialContext replaces the default TCP dialer.
	DialContext DialFunc
}

// DefaultConfig returns a config that advertises the subprotocol and
// waits DefaultHandshakeTimeout for the upgrade.
func DefaultConfig() Config {
	return Config{
		Upgrade:          true,
		HandshakeTimeout: DefaultHandshakeTimeout,
		ReadBufferSize:   DefaultReadBufferSize,
	}
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.DialContext == nil {
		d := &net.Dialer{KeepAlive: defaultKeepAlive, Control: controlSocket}
		c.DialContext = d.DialContext
	}
	return c
}

func (c Config) logger() zerolog.Logger {
	if c.Logger != nil {
		return *c.Logger
	}
	return logging.New("transport")
}
