// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Client configuration loaded from TOML. Keys absent from the file keep
// their defaults.

package control

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/momentics/hioload-wamp/api"
)

// DefaultSecretEnv names the environment variable holding the shared secret.
const DefaultSecretEnv = "WAMPYSECRET"

// TLSConfig selects and verifies a secure transport.
type TLSConfig struct {
	Enabled    bool
	CAFile     string
	ServerName string
}

// Config is the full client configuration.
type Config struct {
	URL              string
	Realm            string
	Upgrade          bool
	HandshakeTimeout time.Duration
	RequestTimeout   time.Duration
	Workers          int
	SecretEnv        string
	AuthID           string
	AuthMethods      []string
	TLS              TLSConfig
	MetricsAddr      string
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() Config {
	return Config{
		URL:              "ws://localhost:8080/ws",
		Realm:            "realm1",
		Upgrade:          true,
		HandshakeTimeout: 2 * time.Second,
		RequestTimeout:   10 * time.Second,
		Workers:          4,
		SecretEnv:        DefaultSecretEnv,
	}
}

type fileTLS struct {
	Enabled    bool   `toml:"enabled"`
	CAFile     string `toml:"ca_file"`
	ServerName string `toml:"server_name"`
}

type fileConfig struct {
	URL              string   `toml:"url"`
	Realm            string   `toml:"realm"`
	Upgrade          bool     `toml:"upgrade"`
	HandshakeTimeout string   `toml:"handshake_timeout"`
	RequestTimeout   string   `toml:"request_timeout"`
	Workers          int      `toml:"workers"`
	SecretEnv        string   `toml:"secret_env"`
	AuthID           string   `toml:"authid"`
	AuthMethods      []string `toml:"authmethods"`
	TLS              fileTLS  `toml:"tls"`
	MetricsAddr      string   `toml:"metrics_addr"`
}

// LoadConfig reads a TOML file over DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("%w: load config: %w", api.ErrConfiguration, err)
	}
	return fromFile(raw, meta)
}

// ParseConfig is LoadConfig for in-memory TOML.
func ParseConfig(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("%w: parse config: %w", api.ErrConfiguration, err)
	}
	return fromFile(raw, meta)
}

func fromFile(raw fileConfig, meta toml.MetaData) (Config, error) {
	cfg := DefaultConfig()

	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("realm") {
		cfg.Realm = strings.TrimSpace(raw.Realm)
	}
	if meta.IsDefined("upgrade") {
		cfg.Upgrade = raw.Upgrade
	}
	if meta.IsDefined("handshake_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HandshakeTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("%w: parse handshake_timeout: %w", api.ErrConfiguration, err)
		}
		cfg.HandshakeTimeout = d
	}
	if meta.IsDefined("request_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.RequestTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("%w: parse request_timeout: %w", api.ErrConfiguration, err)
		}
		cfg.RequestTimeout = d
	}
	if meta.IsDefined("workers") {
		cfg.Workers = raw.Workers
	}
	if meta.IsDefined("secret_env") {
		cfg.SecretEnv = strings.TrimSpace(raw.SecretEnv)
	}
	if meta.IsDefined("authid") {
		cfg.AuthID = strings.TrimSpace(raw.AuthID)
	}
	if meta.IsDefined("authmethods") {
		cfg.AuthMethods = normalizeList(raw.AuthMethods)
	}
	if meta.IsDefined("tls", "enabled") {
		cfg.TLS.Enabled = raw.TLS.Enabled
	}
	if meta.IsDefined("tls", "ca_file") {
		cfg.TLS.CAFile = strings.TrimSpace(raw.TLS.CAFile)
	}
	if meta.IsDefined("tls", "server_name") {
		cfg.TLS.ServerName = strings.TrimSpace(raw.TLS.ServerName)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field rules. A wss URL implies TLS; TLS requires a
// CA bundle to verify the router against.
func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("%w: url: %w", api.ErrConfiguration, err)
	}
	switch u.Scheme {
	case "ws":
		if c.TLS.Enabled {
			return fmt.Errorf("%w: tls enabled but url scheme is ws", api.ErrConfiguration)
		}
	case "wss":
		if !c.TLS.Enabled {
			return fmt.Errorf("%w: wss url requires tls.enabled", api.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unsupported url scheme %q", api.ErrConfiguration, u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: url has no host", api.ErrConfiguration)
	}
	if c.TLS.Enabled && c.TLS.CAFile == "" {
		return fmt.Errorf("%w: tls.ca_file is required", api.ErrConfiguration)
	}
	if c.Realm == "" {
		return fmt.Errorf("%w: realm is required", api.ErrConfiguration)
	}
	if c.HandshakeTimeout <= 0 || c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", api.ErrConfiguration)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", api.ErrConfiguration)
	}
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
