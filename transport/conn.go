// File: transport/conn.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conn lifecycle: dial, opening handshake, frame assembly, control frame
// handling, and teardown.

package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-wamp/api"
	"github.com/momentics/hioload-wamp/control"
	"github.com/momentics/hioload-wamp/protocol"
)

// aLongTimeAgo is a deadline that unblocks pending I/O immediately.
var aLongTimeAgo = time.Unix(1, 0)

// Conn is an established WebSocket connection to a router.
type Conn struct {
	cfg     Config
	log     zerolog.Logger
	metrics *control.Metrics

	host     string
	port     string
	resource string
	secure   bool

	raw  net.Conn
	br   *bufio.Reader
	key  string
	resp *protocol.HandshakeResponse

	connected atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	writeMu sync.Mutex

	readMu      sync.Mutex // guards the fields below
	inbuf       []byte
	chunk       []byte
	fragmenting bool
	fragOpcode  byte
	fragment    []byte

	tasks sync.WaitGroup
}

// Dial connects to target (ws://host:port/path or wss://...) and performs
// the opening handshake.
func Dial(ctx context.Context, target string, cfg Config) (*Conn, error) {
	cfg = cfg.withDefaults()
	log := cfg.logger()

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: parse target %q: %w", api.ErrConfiguration, target, err)
	}
	var secure bool
	switch u.Scheme {
	case "ws":
		secure = cfg.TLS.Enabled
	case "wss":
		secure = true
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", api.ErrConfiguration, u.Scheme)
	}
	host, port := u.Hostname(), u.Port()
	if port == "" {
		port = "80"
		if secure {
			port = "443"
		}
	}

	c := &Conn{
		cfg:      cfg,
		log:      log.With().Str("host", host).Str("port", port).Logger(),
		metrics:  cfg.Metrics,
		host:     host,
		port:     port,
		resource: strings.TrimPrefix(u.RequestURI(), "/"),
		secure:   secure,
		chunk:    make([]byte, cfg.ReadBufferSize),
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	if err := c.handshake(ctx); err != nil {
		_ = c.raw.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) connect(ctx context.Context) error {
	addr := net.JoinHostPort(c.host, c.port)
	raw, err := c.cfg.DialContext(ctx, "tcp", addr)
	if err != nil {
		if isConnRefused(err) {
			c.log.Error().Err(err).Msg("connection refused by router")
		} else {
			c.log.Error().Err(err).Msg("dial failed")
		}
		return fmt.Errorf("%w: dial %s: %w", api.ErrConnectionFailure, addr, err)
	}

	if c.secure {
		tlsCfg, err := clientTLSConfig(c.cfg.TLS, c.host)
		if err != nil {
			_ = raw.Close()
			c.log.Error().Err(err).Msg("tls setup failed")
			return fmt.Errorf("%w: %w", api.ErrConnectionFailure, err)
		}
		tc := tls.Client(raw, tlsCfg)
		hctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		err = tc.HandshakeContext(hctx)
		cancel()
		if err != nil {
			_ = raw.Close()
			c.log.Error().Err(err).Msg("tls handshake failed")
			return fmt.Errorf("%w: tls handshake: %w", api.ErrConnectionFailure, err)
		}
		raw = tc
	}

	c.raw = raw
	c.br = bufio.NewReaderSize(raw, c.cfg.ReadBufferSize)
	return nil
}

func (c *Conn) handshake(ctx context.Context) error {
	start := time.Now()
	deadline := start.Add(c.cfg.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.raw.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = c.raw.SetDeadline(aLongTimeAgo) })
	defer stop()

	c.key = protocol.NewKey()
	req := protocol.HandshakeRequest{
		Host:     c.host,
		Port:     c.port,
		Resource: c.resource,
		Key:      c.key,
		Upgrade:  c.cfg.Upgrade,
	}
	c.log.Debug().Strs("request", req.Lines()).Msg("sending upgrade request")
	if err := protocol.WriteHandshakeRequest(c.raw, req); err != nil {
		return c.handshakeError(ctx, err)
	}

	resp, err := protocol.ReadHandshakeResponse(c.br)
	if err != nil {
		return c.handshakeError(ctx, err)
	}
	c.resp = resp
	if err := resp.Validate(c.key); err != nil {
		c.log.Error().Err(err).Str("status", resp.StatusLine).Msg("upgrade rejected")
		return err
	}
	if !stop() {
		return fmt.Errorf("%w: %w", api.ErrSetup, ctx.Err())
	}
	_ = c.raw.SetDeadline(time.Time{})

	c.connected.Store(true)
	c.metrics.ObserveHandshake(time.Since(start))
	c.log.Info().
		Int("status", resp.Status).
		Str("subprotocol", resp.Subprotocol()).
		Bool("tls", c.secure).
		Msg("websocket connected")
	return nil
}

func (c *Conn) handshakeError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, api.ErrProtocol):
		c.log.Error().Err(err).Msg("unparseable upgrade response")
		return err
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: %w", api.ErrSetup, ctx.Err())
	case errors.Is(err, os.ErrDeadlineExceeded):
		c.log.Error().Dur("timeout", c.cfg.HandshakeTimeout).Msg("no upgrade response")
		return fmt.Errorf("%w: %w: no response within %s",
			api.ErrSetup, api.ErrHandshakeTimeout, c.cfg.HandshakeTimeout)
	default:
		return fmt.Errorf("%w: handshake: %w", api.ErrConnectionFailure, err)
	}
}

// Connected reports whether the handshake completed and the connection is
// not yet torn down.
func (c *Conn) Connected() bool { return c.connected.Load() }

// Status returns the upgrade response status code.
func (c *Conn) Status() int {
	if c.resp == nil {
		return 0
	}
	return c.resp.Status
}

// Headers returns a copy of the upgrade response headers, keyed by
// lower-cased name.
func (c *Conn) Headers() map[string]string {
	if c.resp == nil {
		return nil
	}
	return maps.Clone(c.resp.Headers)
}

// Subprotocol returns the subprotocol selected by the router.
func (c *Conn) Subprotocol() string {
	if c.resp == nil {
		return ""
	}
	return c.resp.Subprotocol()
}

// Secure reports whether the connection runs over TLS.
func (c *Conn) Secure() bool { return c.secure }

// Send writes payload as one masked TEXT frame.
func (c *Conn) Send(payload []byte) error {
	return c.SendFrame(protocol.OpcodeText, payload)
}

// SendFrame writes one masked frame with the given opcode.
func (c *Conn) SendFrame(opcode byte, payload []byte) error {
	if c.closed.Load() {
		return api.ErrConnectionClosed
	}
	raw, err := protocol.EncodeFrame(opcode, payload, true)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	_, err = c.raw.Write(raw)
	c.writeMu.Unlock()
	if err != nil {
		if c.closed.Load() || errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("%w: %w", api.ErrConnectionClosed, err)
		}
		return fmt.Errorf("%w: write: %w", api.ErrConnectionFailure, err)
	}
	c.metrics.FrameSent(protocol.OpcodeName(opcode))
	return nil
}

// Receive returns the next complete TEXT or BINARY message. Control
// frames are handled internally. A CLOSE frame ends the connection and
// yields api.ErrConnectionClosed.
func (c *Conn) Receive(ctx context.Context) (*protocol.Frame, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	if c.closed.Load() {
		return nil, api.ErrConnectionClosed
	}

	stop := context.AfterFunc(ctx, func() { _ = c.raw.SetReadDeadline(aLongTimeAgo) })
	defer func() {
		if !stop() {
			_ = c.raw.SetReadDeadline(time.Time{})
		}
	}()

	for {
		frame, consumed, need, err := protocol.TryDecode(c.inbuf)
		if err != nil {
			return nil, err
		}
		if frame == nil {
			if err := c.fill(ctx, need); err != nil {
				return nil, err
			}
			continue
		}
		c.consume(consumed)
		c.metrics.FrameReceived(protocol.OpcodeName(frame.Opcode))

		switch frame.Opcode {
		case protocol.OpcodePing:
			payload := frame.Payload
			c.log.Debug().Int("len", len(payload)).Msg("ping received")
			c.spawn("pong", func() error {
				return c.SendFrame(protocol.OpcodePong, payload)
			})
		case protocol.OpcodePong:
			c.log.Debug().Msg("pong received")
		case protocol.OpcodeClose:
			code := frame.CloseCode()
			c.log.Info().Int("code", code).Str("reason", frame.CloseReason()).Msg("close frame received")
			echo := frame.Payload
			if len(echo) > 2 {
				echo = echo[:2]
			}
			c.spawn("close", func() error {
				err := c.SendFrame(protocol.OpcodeClose, echo)
				c.Disconnect()
				return err
			})
			return nil, fmt.Errorf("%w: close frame with code %d", api.ErrConnectionClosed, code)
		case protocol.OpcodeContinuation:
			if !c.fragmenting {
				return nil, fmt.Errorf("%w: continuation frame without a first fragment", api.ErrProtocol)
			}
			if len(c.fragment)+len(frame.Payload) > protocol.MaxFramePayload {
				return nil, fmt.Errorf("%w: fragmented message exceeds %d", api.ErrProtocol, protocol.MaxFramePayload)
			}
			c.fragment = append(c.fragment, frame.Payload...)
			if frame.IsFinal {
				out := &protocol.Frame{IsFinal: true, Opcode: c.fragOpcode, Payload: c.fragment}
				c.fragmenting, c.fragment = false, nil
				return out, nil
			}
		default:
			if c.fragmenting {
				return nil, fmt.Errorf("%w: data frame inside a fragmented message", api.ErrProtocol)
			}
			if !frame.IsFinal {
				c.fragmenting = true
				c.fragOpcode = frame.Opcode
				c.fragment = frame.Payload
				continue
			}
			return frame, nil
		}
	}
}

// fill reads at least one more chunk into the accumulation buffer.
func (c *Conn) fill(ctx context.Context, need int) error {
	chunk := c.chunk
	if need > len(chunk) && need <= protocol.MaxFramePayload {
		chunk = make([]byte, need)
	}
	n, err := c.br.Read(chunk)
	if n > 0 {
		c.inbuf = append(c.inbuf, chunk[:n]...)
		return nil
	}
	if err == nil {
		return nil
	}
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case c.closed.Load() || errors.Is(err, net.ErrClosed):
		return api.ErrConnectionClosed
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		c.log.Warn().Int("buffered", len(c.inbuf)).Msg("stream ended before a complete frame")
		return fmt.Errorf("%w: stream ended before a complete frame: %w", api.ErrProtocol, err)
	default:
		return fmt.Errorf("%w: read: %w", api.ErrConnectionFailure, err)
	}
}

// consume drops n decoded bytes, keeping any trailing partial frame.
func (c *Conn) consume(n int) {
	rest := len(c.inbuf) - n
	if rest == 0 {
		c.inbuf = c.inbuf[:0]
		return
	}
	copy(c.inbuf, c.inbuf[n:])
	c.inbuf = c.inbuf[:rest]
}

// Disconnect closes the connection. It is idempotent; close errors are
// logged and swallowed.
func (c *Conn) Disconnect() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.connected.Store(false)
		if err := c.raw.Close(); err != nil {
			c.log.Debug().Err(err).Msg("close connection")
		}
		c.log.Info().Msg("websocket disconnected")
	})
}

// WaitTasks blocks until background tasks spawned so far have finished.
func (c *Conn) WaitTasks() {
	c.tasks.Wait()
}

// spawn runs fn in the background. An error or panic is logged, counted,
// and reported to Config.OnTaskError.
func (c *Conn) spawn(name string, fn func() error) {
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		err := runTask(fn)
		if err == nil {
			return
		}
		c.log.Error().Err(err).Str("task", name).Msg("background task failed")
		c.metrics.TaskFailure(name)
		if c.cfg.OnTaskError != nil {
			c.cfg.OnTaskError(name, err)
		}
	}()
}

func runTask(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
