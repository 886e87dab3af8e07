// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by the transport, session, and dispatch layers.

package api

import (
	"errors"
	"fmt"
	"strings"
)

// Errors used across the library. Callers test them with errors.Is.
var (
	// ErrConnectionFailure means the stream could not be opened or was lost mid-read.
	ErrConnectionFailure = errors.New("connection failure")
	// ErrHandshakeTimeout means no upgrade response arrived before the handshake deadline.
	ErrHandshakeTimeout = errors.New("handshake timeout")
	// ErrSetup wraps failures that prevent a connection from being established.
	ErrSetup = errors.New("connection setup failed")
	// ErrProtocol covers malformed handshakes, frames, and envelopes.
	ErrProtocol = errors.New("protocol error")
	// ErrLookup means an incoming message referenced an id with no local entry.
	ErrLookup = errors.New("lookup failure")
	// ErrCallFailure means an application procedure failed while serving an invocation.
	ErrCallFailure = errors.New("call failure")
	// ErrConfiguration signals a missing or invalid local setting, such as the shared secret.
	ErrConfiguration = errors.New("configuration error")
	// ErrUnknownMessageKind is returned by the envelope codec for unrecognized kind codes.
	ErrUnknownMessageKind = errors.New("unknown message kind")
	// ErrConnectionClosed is returned once the transport has been closed by either side.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrHandoffTimeout is returned when a foreground wait on the handoff queue expires.
	ErrHandoffTimeout = errors.New("handoff timeout")
	// ErrSessionClosed is returned by foreground operations when no session is established.
	ErrSessionClosed = errors.New("session closed")
)

// CallError carries an ERROR reply the router sent for a locally issued request.
type CallError struct {
	URI     string
	Args    []any
	Kwargs  map[string]any
	Details map[string]any
}

// Error implements the error interface.
func (e *CallError) Error() string {
	if len(e.Args) == 0 {
		return fmt.Sprintf("call error: %s", e.URI)
	}
	return fmt.Sprintf("call error: %s %v", e.URI, e.Args)
}

// Unwrap lets errors.Is match ErrCallFailure.
func (e *CallError) Unwrap() error { return ErrCallFailure }

// AbortError carries the reason of an ABORT received while establishing a session.
type AbortError struct {
	Reason  string
	Details map[string]any
}

// Error implements the error interface.
func (e *AbortError) Error() string {
	var b strings.Builder
	b.WriteString("session aborted: ")
	b.WriteString(e.Reason)
	if msg, ok := e.Details["message"].(string); ok && msg != "" {
		b.WriteString(" (")
		b.WriteString(msg)
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap lets errors.Is match ErrSessionClosed.
func (e *AbortError) Unwrap() error { return ErrSessionClosed }
