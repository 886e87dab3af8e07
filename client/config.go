// File: client/config.go
// Package client
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-wamp/api"
	"github.com/momentics/hioload-wamp/auth"
	"github.com/momentics/hioload-wamp/control"
	"github.com/momentics/hioload-wamp/transport"
)

// Config holds client parameters.
type Config struct {
	URL              string
	Realm            string
	Upgrade          bool          // advertise the WAMP subprotocol
	HandshakeTimeout time.Duration // upgrade response deadline
	RequestTimeout   time.Duration // foreground wait when ctx has no deadline
	Heartbeat        time.Duration // ping interval, 0 = disabled
	Workers          int           // callback executor size

	AuthID      string
	AuthMethods []string
	Credential  *auth.Credential

	TLS transport.TLSConfig

	Logger   *zerolog.Logger
	Metrics  *control.Metrics
	Executor api.Executor       // overrides the internal worker pool
	Dial     transport.DialFunc // overrides the TCP dialer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:              "ws://localhost:8080/ws",
		Realm:            "realm1",
		Upgrade:          true,
		HandshakeTimeout: transport.DefaultHandshakeTimeout,
		RequestTimeout:   10 * time.Second,
		Workers:          4,
	}
}

// ConfigFrom maps a loaded file configuration onto a client config.
func ConfigFrom(fc control.Config, cred *auth.Credential) Config {
	cfg := DefaultConfig()
	cfg.URL = fc.URL
	cfg.Realm = fc.Realm
	cfg.Upgrade = fc.Upgrade
	cfg.HandshakeTimeout = fc.HandshakeTimeout
	cfg.RequestTimeout = fc.RequestTimeout
	cfg.Workers = fc.Workers
	cfg.AuthID = fc.AuthID
	cfg.AuthMethods = fc.AuthMethods
	cfg.Credential = cred
	cfg.TLS = transport.TLSConfig{
		Enabled:    fc.TLS.Enabled,
		CAFile:     fc.TLS.CAFile,
		ServerName: fc.TLS.ServerName,
	}
	return cfg
}

func (c Config) transportConfig(log zerolog.Logger) transport.Config {
	tc := transport.DefaultConfig()
	tc.Upgrade = c.Upgrade
	tc.HandshakeTimeout = c.HandshakeTimeout
	tc.TLS = c.TLS
	tc.Logger = &log
	tc.Metrics = c.Metrics
	tc.DialContext = c.Dial
	return tc
}
