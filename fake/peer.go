// Package fake
// Author: momentics <momentics@gmail.com>
//
// Scripted router-side peer for tests. A Peer owns the server end of a
// connection and speaks just enough RFC6455 and WAMP to drive a client
// through a handshake and a message exchange.

package fake

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/momentics/hioload-wamp/message"
	"github.com/momentics/hioload-wamp/protocol"
)

// Peer is the router end of an in-memory connection.
type Peer struct {
	conn net.Conn
	br   *bufio.Reader

	mu      sync.Mutex // serializes writes
	pending []byte     // undecoded frame bytes
	request []string   // last handshake request lines
}

// NewPeer wraps the server end of a connection.
func NewPeer(conn net.Conn) *Peer {
	return &Peer{conn: conn, br: bufio.NewReader(conn)}
}

// Pipe returns a connected pair: the client end and a Peer on the other.
func Pipe() (net.Conn, *Peer) {
	client, server := net.Pipe()
	return client, NewPeer(server)
}

// Dialer returns a dial function that always yields client, for
// injecting a pipe into a transport.
func Dialer(client net.Conn) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(context.Context, string, string) (net.Conn, error) {
		return client, nil
	}
}

// Conn exposes the underlying connection.
func (p *Peer) Conn() net.Conn { return p.conn }

// ReadRequest consumes a handshake request up to the blank line.
func (p *Peer) ReadRequest() ([]string, error) {
	var lines []string
	for {
		line, err := p.br.ReadString('\n')
		if err != nil {
			return lines, fmt.Errorf("fake: read request: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			p.request = lines
			return lines, nil
		}
		lines = append(lines, line)
	}
}

// Request returns the lines of the last handshake request.
func (p *Peer) Request() []string { return p.request }

// RequestHeader returns a header value from the last request.
func (p *Peer) RequestHeader(name string) string {
	for _, line := range p.request {
		k, v, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(k), name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// AcceptHandshake reads the request and answers 101 with a valid accept
// key and the requested subprotocol. extra lines are appended verbatim.
func (p *Peer) AcceptHandshake(extra ...string) error {
	if _, err := p.ReadRequest(); err != nil {
		return err
	}
	key := p.RequestHeader("Sec-WebSocket-Key")
	if key == "" {
		return errors.New("fake: request without Sec-WebSocket-Key")
	}
	lines := []string{
		"HTTP/1.1 101 Switching Protocols",
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Accept: " + protocol.ComputeAcceptKey(key),
	}
	if sp := p.RequestHeader("Sec-WebSocket-Protocol"); sp != "" {
		lines = append(lines, "Sec-WebSocket-Protocol: "+sp)
	}
	lines = append(lines, extra...)
	return p.WriteRaw([]byte(strings.Join(lines, "\r\n") + "\r\n\r\n"))
}

// WriteRaw writes b unchanged.
func (p *Peer) WriteRaw(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.conn.Write(b)
	return err
}

// WriteFrame writes one unmasked server frame.
func (p *Peer) WriteFrame(opcode byte, payload []byte) error {
	raw, err := protocol.EncodeFrame(opcode, payload, false)
	if err != nil {
		return err
	}
	return p.WriteRaw(raw)
}

// WriteFragments writes payload split into fragments of the given sizes.
func (p *Peer) WriteFragments(opcode byte, payload []byte, sizes ...int) error {
	var out []byte
	op := opcode
	for i, n := range sizes {
		if n > len(payload) {
			n = len(payload)
		}
		final := i == len(sizes)-1
		if final {
			n = len(payload)
		}
		raw, err := protocol.EncodeFrame(op, payload[:n], false)
		if err != nil {
			return err
		}
		if !final {
			raw[0] &^= protocol.FinBit
		}
		out = append(out, raw...)
		payload = payload[n:]
		op = protocol.OpcodeContinuation
	}
	return p.WriteRaw(out)
}

// WriteMessage encodes m and writes it as a TEXT frame.
func (p *Peer) WriteMessage(m message.Message) error {
	raw, err := message.Encode(m)
	if err != nil {
		return err
	}
	return p.WriteFrame(protocol.OpcodeText, raw)
}

// ReadFrame reads the next frame sent by the client.
func (p *Peer) ReadFrame() (*protocol.Frame, error) {
	chunk := make([]byte, 4096)
	for {
		frame, consumed, _, err := protocol.TryDecode(p.pending)
		if err != nil {
			return nil, err
		}
		if frame != nil {
			p.pending = append([]byte(nil), p.pending[consumed:]...)
			return frame, nil
		}
		n, err := p.br.Read(chunk)
		p.pending = append(p.pending, chunk[:n]...)
		if err != nil && n == 0 {
			return nil, err
		}
	}
}

// ReadMessage reads the next data frame and decodes it, skipping control
// frames.
func (p *Peer) ReadMessage() (message.Message, error) {
	for {
		f, err := p.ReadFrame()
		if err != nil {
			return nil, err
		}
		if f.IsControl() {
			continue
		}
		return message.Decode(f.Payload)
	}
}

// Close closes the server end.
func (p *Peer) Close() error {
	return p.conn.Close()
}
