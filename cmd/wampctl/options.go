// File: cmd/wampctl/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/momentics/hioload-wamp/api"
	"github.com/momentics/hioload-wamp/auth"
	"github.com/momentics/hioload-wamp/client"
	"github.com/momentics/hioload-wamp/control"
	"github.com/momentics/hioload-wamp/internal/logging"
)

type globalOptions struct {
	configPath  string
	url         string
	realm       string
	metricsAddr string
}

func (o *globalOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.configPath, "config", "c", "", "TOML config file")
	f.StringVar(&o.url, "url", "", "router URL, overrides the config file")
	f.StringVar(&o.realm, "realm", "", "realm to join, overrides the config file")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

// load resolves the effective configuration: file (or defaults), then flags.
func (o *globalOptions) load() (control.Config, error) {
	cfg := control.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = control.LoadConfig(o.configPath); err != nil {
			return cfg, err
		}
	}
	if o.url != "" {
		cfg.URL = o.url
	}
	if o.realm != "" {
		cfg.Realm = o.realm
	}
	if o.metricsAddr != "" {
		cfg.MetricsAddr = o.metricsAddr
	}
	return cfg, cfg.Validate()
}

// session bundles a configured client with the metrics endpoint serving it.
type session struct {
	client  *client.Client
	log     zerolog.Logger
	metrics *http.Server
}

func (o *globalOptions) open(app *client.App) (*session, error) {
	fc, err := o.load()
	if err != nil {
		return nil, err
	}
	var cred *auth.Credential
	if secret := os.Getenv(fc.SecretEnv); secret != "" {
		cred = auth.NewCredentialString(secret)
	}

	s := &session{log: logging.New("wampctl")}
	cfg := client.ConfigFrom(fc, cred)
	cfg.Logger = &s.log
	if fc.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		cfg.Metrics = control.NewMetrics(reg)
		s.metrics = &http.Server{
			Addr:              fc.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error().Err(err).Str("addr", fc.MetricsAddr).Msg("metrics endpoint failed")
			}
		}()
	}
	s.client = client.New(cfg, app)
	return s, nil
}

func (s *session) start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		s.shutdownMetrics()
		return err
	}
	return nil
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Stop(ctx); err != nil {
		s.log.Warn().Err(err).Msg("stop")
	}
	s.shutdownMetrics()
}

func (s *session) shutdownMetrics() {
	if s.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.metrics.Shutdown(ctx)
}

// parsePayload reads positional args as a JSON array and optional kwargs
// as a JSON object. Empty input means none.
func parsePayload(rawArgs, rawKwargs string) ([]any, map[string]any, error) {
	var args []any
	if rawArgs != "" {
		if !gjson.Valid(rawArgs) || !gjson.Parse(rawArgs).IsArray() {
			return nil, nil, fmt.Errorf("%w: args must be a JSON array: %s", api.ErrConfiguration, rawArgs)
		}
		args = gjson.Parse(rawArgs).Value().([]any)
	}
	var kwargs map[string]any
	if rawKwargs != "" {
		if !gjson.Valid(rawKwargs) || !gjson.Parse(rawKwargs).IsObject() {
			return nil, nil, fmt.Errorf("%w: kwargs must be a JSON object: %s", api.ErrConfiguration, rawKwargs)
		}
		kwargs = gjson.Parse(rawKwargs).Value().(map[string]any)
	}
	return args, kwargs, nil
}
