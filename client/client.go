// File: client/client.go
// Package client provides the foreground API of a WAMP client.
// Author: momentics <momentics.com>
// License: Apache-2.0
//
// The client implements:
// - Session establishment (HELLO, optional challenge, WELCOME) over a WebSocket
// - Subscribe, Register, Publish, and Call against the established session
// - Orderly shutdown with GOODBYE
// - A receive loop feeding the dispatcher, with callbacks on a worker pool
// - Optional heartbeat pings and debug probes

package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/momentics/hioload-wamp/api"
	"github.com/momentics/hioload-wamp/auth"
	"github.com/momentics/hioload-wamp/control"
	"github.com/momentics/hioload-wamp/dispatch"
	"github.com/momentics/hioload-wamp/internal/concurrency"
	"github.com/momentics/hioload-wamp/internal/logging"
	"github.com/momentics/hioload-wamp/internal/session"
	"github.com/momentics/hioload-wamp/message"
	"github.com/momentics/hioload-wamp/protocol"
	"github.com/momentics/hioload-wamp/transport"
)

const tracerName = "github.com/momentics/hioload-wamp/client"

// link is one connection and the session riding on it.
type link struct {
	conn  *transport.Conn
	state *session.State
	disp  *dispatch.Dispatcher
	exec  api.Executor
	owned *concurrency.Executor // closed on teardown when we created it

	closing atomic.Bool

	done chan struct{}
	err  error // why the receive loop stopped; read after done
}

// Client is a WAMP client bound to one router and realm.
type Client struct {
	cfg        Config
	app        *App
	log        zerolog.Logger
	negotiator *auth.Negotiator
	tracer     trace.Tracer
	probes     *control.DebugProbes

	fg   sync.Mutex // one foreground wait at a time
	link atomic.Pointer[link]
}

var _ api.Application = (*Client)(nil)

// New builds a client serving app's roles. A nil app starts empty.
func New(cfg Config, app *App) *Client {
	if app == nil {
		app = NewApp()
	}
	c := &Client{
		cfg:    cfg,
		app:    app,
		tracer: otel.Tracer(tracerName),
		probes: control.NewDebugProbes(),
	}
	if cfg.Logger != nil {
		c.log = *cfg.Logger
	} else {
		c.log = logging.New("client")
	}
	c.log = c.log.With().Str("realm", cfg.Realm).Logger()
	c.negotiator = auth.NewNegotiator(cfg.Credential, nil, c.log)
	c.registerProbes()
	return c
}

// App returns the role registry.
func (c *Client) App() *App { return c.app }

// Procedure implements api.Application.
func (c *Client) Procedure(name string) (api.Procedure, bool) {
	return c.app.Procedure(name)
}

// RegisterRoles implements api.Application. It issues SUBSCRIBE and
// REGISTER for every declared role without waiting for acknowledgements.
func (c *Client) RegisterRoles() error {
	l := c.link.Load()
	if l == nil {
		return api.ErrSessionClosed
	}
	for _, t := range c.app.Topics() {
		if _, err := c.subscribe(l, t.Name, t.Handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", t.Name, err)
		}
	}
	for _, name := range c.app.Procedures() {
		if _, err := c.register(l, name); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

// Start connects, says HELLO, and waits for the session to be welcomed.
// An ABORT yields an *api.AbortError. A challenge that cannot be answered
// yields api.ErrConfiguration.
func (c *Client) Start(ctx context.Context) error {
	c.fg.Lock()
	defer c.fg.Unlock()
	if old := c.link.Load(); old != nil {
		if old.conn.Connected() {
			return fmt.Errorf("%w: client already started", api.ErrSetup)
		}
		c.teardown(old)
	}

	conn, err := transport.Dial(ctx, c.cfg.URL, c.cfg.transportConfig(c.log))
	if err != nil {
		return err
	}
	l := c.newLink(conn)
	c.link.Store(l)
	go c.readLoop(l)
	if c.cfg.Heartbeat > 0 {
		go c.heartbeat(l)
	}

	hello := &message.Hello{Realm: c.cfg.Realm, Details: c.helloDetails()}
	if err := c.send(l, hello); err != nil {
		c.teardown(l)
		return err
	}

	m, err := c.await(ctx, l, func(m message.Message) bool {
		switch m.(type) {
		case *message.Welcome, *message.Abort, *message.Challenge:
			return true
		}
		return false
	})
	if err != nil {
		c.teardown(l)
		return fmt.Errorf("%w: waiting for welcome: %w", api.ErrSetup, err)
	}

	switch m := m.(type) {
	case *message.Abort:
		c.teardown(l)
		return &api.AbortError{Reason: m.Reason, Details: m.Details}
	case *message.Challenge:
		c.teardown(l)
		return fmt.Errorf("%w: router requires %q authentication but no secret is configured",
			api.ErrConfiguration, m.AuthMethod)
	}
	id, _ := l.state.SessionID()
	c.log.Info().Uint64("session", id).Str("url", c.cfg.URL).Msg("session started")
	return nil
}

func (c *Client) newLink(conn *transport.Conn) *link {
	l := &link{
		conn:  conn,
		state: session.NewState(),
		done:  make(chan struct{}),
		exec:  c.cfg.Executor,
	}
	if l.exec == nil {
		l.owned = concurrency.NewExecutor(concurrency.Options{
			Workers: c.cfg.Workers,
			Logger:  c.log,
			OnPanic: func(any) { c.cfg.Metrics.TaskFailure("callback") },
		})
		l.exec = l.owned
	}
	l.disp = dispatch.New(dispatch.Options{
		State:      l.state,
		Sender:     conn,
		App:        c,
		Negotiator: c.negotiator,
		Executor:   l.exec,
		Logger:     &c.log,
		Metrics:    c.cfg.Metrics,
	})
	return l
}

func (c *Client) helloDetails() map[string]any {
	details := map[string]any{"roles": c.app.Roles()}
	if c.cfg.AuthID != "" {
		details["authid"] = c.cfg.AuthID
	}
	if len(c.cfg.AuthMethods) > 0 {
		details["authmethods"] = c.cfg.AuthMethods
	}
	return details
}

// SessionID returns the router-assigned session id, if a session is up.
func (c *Client) SessionID() (uint64, bool) {
	l := c.link.Load()
	if l == nil {
		return 0, false
	}
	return l.state.SessionID()
}

// Subscribe declares a subscription and, when a session is up, issues it
// right away. The returned request id is 0 when only declared.
func (c *Client) Subscribe(topic string, h api.EventHandler) (uint64, error) {
	c.app.Subscribe(topic, h)
	l, err := c.active()
	if err != nil {
		return 0, nil
	}
	return c.subscribe(l, topic, h)
}

// Register declares a procedure and, when a session is up, issues it
// right away. The returned request id is 0 when only declared.
func (c *Client) Register(name string, p api.Procedure) (uint64, error) {
	c.app.Register(name, p)
	l, err := c.active()
	if err != nil {
		return 0, nil
	}
	return c.register(l, name)
}

func (c *Client) subscribe(l *link, topic string, h api.EventHandler) (uint64, error) {
	id := l.state.NextRequestID()
	req := &message.Subscribe{Request: id, Topic: topic}
	if err := l.state.AddPending(id, session.PendingRequest{Request: req, Handler: h}); err != nil {
		return 0, err
	}
	if err := c.send(l, req); err != nil {
		l.state.DropPending(id)
		return 0, err
	}
	return id, nil
}

func (c *Client) register(l *link, name string) (uint64, error) {
	id := l.state.NextRequestID()
	req := &message.Register{Request: id, Procedure: name}
	if err := l.state.AddPending(id, session.PendingRequest{Request: req}); err != nil {
		return 0, err
	}
	if err := c.send(l, req); err != nil {
		l.state.DropPending(id)
		return 0, err
	}
	return id, nil
}

// Publish sends an event to topic. There is no acknowledgement.
func (c *Client) Publish(topic string, args []any, kwargs map[string]any) error {
	l, err := c.active()
	if err != nil {
		return err
	}
	return c.send(l, &message.Publish{
		Request: l.state.NextRequestID(),
		Topic:   topic,
		Args:    args,
		Kwargs:  kwargs,
	})
}

// Call invokes procedure and waits for its RESULT. A router ERROR is
// returned as *api.CallError.
func (c *Client) Call(ctx context.Context, procedure string, args []any, kwargs map[string]any) (*message.Result, error) {
	ctx, span := c.tracer.Start(ctx, "wamp.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("wamp.procedure", procedure)),
	)
	defer span.End()

	res, err := c.call(ctx, span, procedure, args, kwargs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return res, nil
}

func (c *Client) call(ctx context.Context, span trace.Span, procedure string, args []any, kwargs map[string]any) (*message.Result, error) {
	c.fg.Lock()
	defer c.fg.Unlock()
	l, err := c.active()
	if err != nil {
		return nil, err
	}

	id := l.state.NextRequestID()
	span.SetAttributes(attribute.Int64("wamp.request_id", int64(id)))
	if err := c.send(l, &message.Call{Request: id, Procedure: procedure, Args: args, Kwargs: kwargs}); err != nil {
		return nil, err
	}

	m, err := c.await(ctx, l, func(m message.Message) bool {
		switch m := m.(type) {
		case *message.Result:
			return m.Request == id
		case *message.Error:
			return m.RequestType == message.KindCall && m.Request == id
		case *message.Goodbye, *message.Abort:
			return true
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	switch m := m.(type) {
	case *message.Result:
		return m, nil
	case *message.Error:
		return nil, &api.CallError{URI: m.URI, Args: m.Args, Kwargs: m.Kwargs, Details: m.Details}
	case *message.Goodbye:
		l.state.ClearSessionID()
		return nil, fmt.Errorf("%w: router closed the session: %s", api.ErrSessionClosed, m.Reason)
	case *message.Abort:
		l.state.ClearSessionID()
		return nil, &api.AbortError{Reason: m.Reason, Details: m.Details}
	}
	return nil, fmt.Errorf("%w: unexpected %s", api.ErrProtocol, m.Kind())
}

// Stop says GOODBYE, waits for the router's reply, and tears the
// connection down. Calling Stop without a session only disconnects.
func (c *Client) Stop(ctx context.Context) error {
	c.fg.Lock()
	l := c.link.Load()
	if l == nil {
		c.fg.Unlock()
		return nil
	}

	var err error
	l.closing.Store(true)
	if _, ok := l.state.SessionID(); ok && l.conn.Connected() {
		err = c.send(l, &message.Goodbye{Reason: message.ReasonCloseRealm})
		if err == nil {
			_, werr := c.await(ctx, l, func(m message.Message) bool {
				return m.Kind() == message.KindGoodbye
			})
			if werr != nil && !errors.Is(werr, api.ErrConnectionClosed) {
				err = fmt.Errorf("waiting for goodbye: %w", werr)
			}
		}
	}
	l.state.Reset()
	// Callbacks still draining may be blocked on the foreground lock.
	c.fg.Unlock()
	c.teardown(l)
	c.log.Info().Msg("session stopped")
	return err
}

// Status reports where the current session is in its lifecycle.
func (c *Client) Status() api.SessionStatus {
	l := c.link.Load()
	if l == nil {
		return api.SessionUnknown
	}
	connected := l.conn.Connected()
	_, established := l.state.SessionID()
	switch {
	case connected && l.closing.Load():
		return api.SessionClosing
	case established:
		return api.SessionActive
	case connected:
		return api.SessionConnecting
	default:
		return api.SessionClosed
	}
}

// Done is closed when the current receive loop stops.
func (c *Client) Done() <-chan struct{} {
	l := c.link.Load()
	if l == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return l.done
}

// Err reports why the receive loop stopped, once Done is closed.
func (c *Client) Err() error {
	l := c.link.Load()
	if l == nil {
		return nil
	}
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

// Debug evaluates every registered debug probe.
func (c *Client) Debug() map[string]any {
	return c.probes.DumpState()
}

// Probes exposes the probe registry for additional application probes.
func (c *Client) Probes() *control.DebugProbes {
	return c.probes
}

func (c *Client) active() (*link, error) {
	l := c.link.Load()
	if l == nil {
		return nil, api.ErrSessionClosed
	}
	if _, ok := l.state.SessionID(); !ok {
		return nil, api.ErrSessionClosed
	}
	return l, nil
}

func (c *Client) send(l *link, m message.Message) error {
	raw, err := message.Encode(m)
	if err != nil {
		return err
	}
	return l.conn.Send(raw)
}

// await waits for the first queued message accepted by match, discarding
// the rest. RequestTimeout applies when ctx has no deadline.
func (c *Client) await(ctx context.Context, l *link, match func(message.Message) bool) (message.Message, error) {
	if _, ok := ctx.Deadline(); !ok && c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}
	for {
		m, err := l.state.Queue().Get(ctx)
		if err != nil {
			return nil, err
		}
		if match(m) {
			return m, nil
		}
		c.log.Debug().Stringer("kind", m.Kind()).Msg("discarding message while waiting")
	}
}

// teardown ends the session and releases the connection and workers.
func (c *Client) teardown(l *link) {
	l.state.Reset()
	l.conn.Disconnect()
	<-l.done
	if l.owned != nil {
		l.owned.Close()
	}
	l.conn.WaitTasks()
}

func (c *Client) readLoop(l *link) {
	defer close(l.done)
	for {
		frame, err := l.conn.Receive(context.Background())
		if err != nil {
			if errors.Is(err, api.ErrConnectionClosed) {
				c.log.Debug().Err(err).Msg("receive loop stopped")
			} else {
				c.log.Error().Err(err).Msg("receive loop failed")
			}
			// a close frame or Disconnect already owns the socket
			if !errors.Is(err, api.ErrConnectionClosed) {
				l.conn.Disconnect()
			}
			c.endSession(l, err)
			return
		}
		if frame.Opcode != protocol.OpcodeText {
			c.log.Warn().Str("opcode", protocol.OpcodeName(frame.Opcode)).Msg("ignoring non-text message")
			continue
		}
		if err := l.disp.HandleMessage(frame.Payload); err != nil {
			c.log.Error().Err(err).Msg("fatal message handling error")
			l.conn.Disconnect()
			c.endSession(l, err)
			return
		}
	}
}

// endSession records why the receive loop stopped and drops the session
// bound to it. Foreground waiters wake with err.
func (c *Client) endSession(l *link, err error) {
	l.err = err
	l.state.Reset()
	l.state.Queue().Close(err)
}

// heartbeat sends ping frames at the configured interval.
func (c *Client) heartbeat(l *link) {
	ticker := time.NewTicker(c.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := l.conn.SendFrame(protocol.OpcodePing, nil); err != nil {
				c.log.Debug().Err(err).Msg("heartbeat stopped")
				return
			}
		case <-l.done:
			return
		}
	}
}

func (c *Client) registerProbes() {
	control.RegisterRuntimeProbes(c.probes)
	withLink := func(fn func(l *link) any) func() any {
		return func() any {
			l := c.link.Load()
			if l == nil {
				return nil
			}
			return fn(l)
		}
	}
	c.probes.RegisterProbe("session.id", withLink(func(l *link) any {
		id, ok := l.state.SessionID()
		if !ok {
			return nil
		}
		return id
	}))
	c.probes.RegisterProbe("session.status", func() any {
		return c.Status().String()
	})
	c.probes.RegisterProbe("session.stats", withLink(func(l *link) any {
		return l.state.Stats()
	}))
	c.probes.RegisterProbe("transport.connected", withLink(func(l *link) any {
		return l.conn.Connected()
	}))
	c.probes.RegisterProbe("executor.stats", withLink(func(l *link) any {
		if l.owned == nil {
			return map[string]int64{"num_workers": int64(l.exec.NumWorkers())}
		}
		return l.owned.Stats()
	}))
}
