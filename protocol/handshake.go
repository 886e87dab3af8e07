// File: protocol/handshake.go
// Package protocol implements the client side of the RFC6455 upgrade handshake.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Composes the HTTP/1.1 Upgrade request and parses the status line and headers
// of the router's response without going through net/http, so header keys are
// available exactly as the session layer expects them (lower-cased).

package protocol

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/momentics/hioload-wamp/api"
)

// Constants used for handshake processing.
const (
	WebSocketGUID           = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	WebSocketVersion        = "13"
	StatusSwitchingProtocol = 101
	MaxHandshakeHeadersSize = 8192
)

// Subprotocols lists the WAMP subprotocols this client can speak.
var Subprotocols = []string{"wamp.2.json"}

// HandshakeRequest describes the upgrade request sent to the router.
type HandshakeRequest struct {
	Host     string // host without port
	Port     string
	Resource string // request path without the leading slash
	Key      string // Sec-WebSocket-Key
	Upgrade  bool   // whether to advertise Subprotocols
}

// NewKey returns a Sec-WebSocket-Key made of 16 random bytes, base64 encoded.
func NewKey() string {
	id := uuid.New()
	return base64.StdEncoding.EncodeToString(id[:])
}

// Lines returns the request line followed by the header lines, without CRLFs.
func (r HandshakeRequest) Lines() []string {
	hostport := r.Host + ":" + r.Port
	lines := []string{
		fmt.Sprintf("GET /%s HTTP/1.1", strings.TrimPrefix(r.Resource, "/")),
		"Host: " + hostport,
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Key: " + r.Key,
		"Origin: ws://" + hostport,
		"Sec-WebSocket-Version: " + WebSocketVersion,
	}
	if r.Upgrade {
		lines = append(lines, "Sec-WebSocket-Protocol: "+strings.Join(Subprotocols, ", "))
	}
	return lines
}

// Bytes serializes the request, terminated by an empty line.
func (r HandshakeRequest) Bytes() []byte {
	return []byte(strings.Join(r.Lines(), "\r\n") + "\r\n\r\n")
}

// WriteHandshakeRequest writes the serialized request to w.
func WriteHandshakeRequest(w io.Writer, r HandshakeRequest) error {
	if _, err := w.Write(r.Bytes()); err != nil {
		return fmt.Errorf("handshake write request: %w", err)
	}
	return nil
}

// HandshakeResponse is the parsed upgrade response.
type HandshakeResponse struct {
	Status     int
	StatusLine string
	// Headers maps lower-cased header names to trimmed values.
	Headers map[string]string
}

// ReadHandshakeResponse reads the status line and headers from br up to and
// including the terminating blank line. Bytes past the blank line stay
// buffered in br for frame assembly.
func ReadHandshakeResponse(br *bufio.Reader) (*HandshakeResponse, error) {
	resp := &HandshakeResponse{Headers: make(map[string]string)}
	total := 0
	for {
		raw, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("handshake read response: %w", err)
		}
		total += len(raw)
		if total > MaxHandshakeHeadersSize {
			return nil, fmt.Errorf("%w: handshake response exceeds %d bytes", api.ErrProtocol, MaxHandshakeHeadersSize)
		}

		line := strings.TrimRight(raw, "\r\n")
		if line == "" {
			if resp.StatusLine == "" {
				return nil, fmt.Errorf("%w: empty handshake response", api.ErrProtocol)
			}
			return resp, nil
		}

		if resp.StatusLine == "" {
			status, err := parseStatusLine(line)
			if err != nil {
				return nil, err
			}
			resp.Status = status
			resp.StatusLine = line
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: invalid header %q", api.ErrProtocol, line)
		}
		resp.Headers[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
}

// Validate checks the response against the request key. A missing
// Sec-WebSocket-Accept is tolerated; a wrong one is not.
func (r *HandshakeResponse) Validate(key string) error {
	if r.Status != StatusSwitchingProtocol {
		return fmt.Errorf("%w: handshake failed: status %d", api.ErrProtocol, r.Status)
	}
	if accept, ok := r.Headers["sec-websocket-accept"]; ok && accept != ComputeAcceptKey(key) {
		return fmt.Errorf("%w: sec-websocket-accept mismatch", api.ErrProtocol)
	}
	return nil
}

// Subprotocol returns the subprotocol the router selected, if any.
func (r *HandshakeResponse) Subprotocol() string {
	return r.Headers["sec-websocket-protocol"]
}

// ComputeAcceptKey computes the Sec-WebSocket-Accept value from the client's key.
// This implements the algorithm specified in RFC6455 Section 1.3.
func ComputeAcceptKey(clientKey string) string {
	hash := sha1.Sum([]byte(clientKey + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(hash[:])
}

func parseStatusLine(line string) (int, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0, fmt.Errorf("%w: unexpected handshake status line %q", api.ErrProtocol, line)
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: unexpected handshake status line %q", api.ErrProtocol, line)
	}
	return status, nil
}
