// File: internal/logging/logging.go
// Package logging builds the zerolog loggers used by every component.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Configure sets the process-wide level and output once, from a profile and
// WAMP_LOG_* environment overrides. New derives component loggers from it.

package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel   = "WAMP_LOG_LEVEL"
	EnvLogNoColor = "WAMP_LOG_NOCOLOR"
	EnvLogJSON    = "WAMP_LOG_JSON"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

type settings struct {
	level   zerolog.Level
	noColor bool
	json    bool
	out     io.Writer
}

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure installs the global logger. Only the first call has effect.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		s := defaultSettings(profile)
		applyEnvOverrides(&s)
		zerolog.SetGlobalLevel(s.level)
		var w io.Writer = s.out
		if !s.json {
			w = zerolog.ConsoleWriter{Out: s.out, NoColor: s.noColor, TimeFormat: time.RFC3339}
		}
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	})
}

// New returns a logger tagged with the component name.
func New(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// Nop returns a disabled logger.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

func defaultSettings(profile Profile) settings {
	switch profile {
	case ProfileTest:
		return settings{level: zerolog.DebugLevel, noColor: true, out: os.Stderr}
	default:
		return settings{level: zerolog.InfoLevel, out: os.Stderr}
	}
}

func applyEnvOverrides(s *settings) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		s.level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		s.noColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogJSON)); ok {
		s.json = v
	}
}

// ParseLevel maps a textual level to zerolog. ok is false for empty or
// unrecognized input.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
