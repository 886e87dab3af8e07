// File: dispatch/dispatcher.go
// Package dispatch
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dispatch

import (
	"errors"
	"fmt"
	"maps"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-wamp/api"
	"github.com/momentics/hioload-wamp/auth"
	"github.com/momentics/hioload-wamp/control"
	"github.com/momentics/hioload-wamp/internal/logging"
	"github.com/momentics/hioload-wamp/internal/session"
	"github.com/momentics/hioload-wamp/message"
)

// Sender writes one encoded envelope to the router.
type Sender interface {
	Send(payload []byte) error
}

// Options wires a Dispatcher. State, Sender, and App are required.
type Options struct {
	State      *session.State
	Sender     Sender
	App        api.Application
	Negotiator *auth.Negotiator // nil behaves as no credential
	Executor   api.Executor     // defaults to api.InlineExecutor
	Logger     *zerolog.Logger
	Metrics    *control.Metrics
}

type handlerFunc func(message.Message) error

// Dispatcher maps each inbound kind to its handler.
type Dispatcher struct {
	state      *session.State
	sender     Sender
	app        api.Application
	negotiator *auth.Negotiator
	exec       api.Executor
	log        zerolog.Logger
	metrics    *control.Metrics

	handlers map[message.Kind]handlerFunc
}

// New builds a dispatcher and its routing table.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		state:      opts.State,
		sender:     opts.Sender,
		app:        opts.App,
		negotiator: opts.Negotiator,
		exec:       opts.Executor,
		metrics:    opts.Metrics,
	}
	if d.exec == nil {
		d.exec = api.InlineExecutor{}
	}
	if opts.Logger != nil {
		d.log = *opts.Logger
	} else {
		d.log = logging.New("dispatch")
	}
	d.handlers = map[message.Kind]handlerFunc{
		message.KindWelcome:      d.handleWelcome,
		message.KindAbort:        d.handleAbort,
		message.KindChallenge:    d.handleChallenge,
		message.KindAuthenticate: d.push,
		message.KindGoodbye:      d.push,
		message.KindError:        d.handleError,
		message.KindSubscribed:   d.handleSubscribed,
		message.KindEvent:        d.handleEvent,
		message.KindResult:       d.push,
		message.KindRegistered:   d.handleRegistered,
		message.KindInvocation:   d.handleInvocation,
	}
	return d
}

// HandleMessage decodes raw and routes it. Unknown kinds are logged and
// dropped. Malformed envelopes and failed lookups are returned; the caller
// treats them as fatal for the session.
func (d *Dispatcher) HandleMessage(raw []byte) error {
	m, err := message.Decode(raw)
	if err != nil {
		if errors.Is(err, api.ErrUnknownMessageKind) {
			d.log.Warn().Err(err).Msg("unexpected message kind")
			d.metrics.UnknownMessage()
			return nil
		}
		return err
	}
	d.metrics.MessageReceived(m.Kind().String())

	h, ok := d.handlers[m.Kind()]
	if !ok {
		d.log.Warn().Stringer("kind", m.Kind()).Msg("no handler for inbound message kind")
		d.metrics.UnknownMessage()
		return nil
	}
	return h(m)
}

func (d *Dispatcher) push(m message.Message) error {
	d.state.Queue().Put(m)
	return nil
}

func (d *Dispatcher) send(m message.Message) error {
	raw, err := message.Encode(m)
	if err != nil {
		return err
	}
	return d.sender.Send(raw)
}

func (d *Dispatcher) handleWelcome(m message.Message) error {
	w := m.(*message.Welcome)
	d.state.SetSessionID(w.Session)
	d.log.Info().Uint64("session", w.Session).Msg("session established")
	d.state.Queue().Put(w)
	if err := d.app.RegisterRoles(); err != nil {
		return fmt.Errorf("register roles: %w", err)
	}
	return nil
}

func (d *Dispatcher) handleAbort(m message.Message) error {
	a := m.(*message.Abort)
	d.log.Warn().Str("reason", a.Reason).Interface("details", a.Details).Msg("router aborted the session")
	return d.push(a)
}

func (d *Dispatcher) handleError(m message.Message) error {
	e := m.(*message.Error)
	d.log.Error().
		Str("uri", e.URI).
		Stringer("request_type", e.RequestType).
		Uint64("request", e.Request).
		Msg("received error")
	return d.push(e)
}

func (d *Dispatcher) handleChallenge(m message.Message) error {
	ch := m.(*message.Challenge)
	reply, err := d.negotiator.Respond(ch)
	if err != nil {
		if errors.Is(err, api.ErrConfiguration) {
			d.log.Error().Err(err).Msg("cannot answer challenge")
			return d.push(ch)
		}
		return err
	}
	return d.send(reply)
}

func (d *Dispatcher) handleSubscribed(m message.Message) error {
	s := m.(*message.Subscribed)
	p, err := d.state.TakePending(s.Request)
	if err != nil {
		return err
	}
	req, ok := p.Request.(*message.Subscribe)
	if !ok {
		return fmt.Errorf("%w: request %d answered with subscribed but was %s",
			api.ErrProtocol, s.Request, p.Request.Kind())
	}
	d.state.AddSubscription(s.Subscription, session.Subscription{Handler: p.Handler, Topic: req.Topic})
	d.log.Debug().Str("topic", req.Topic).Uint64("subscription", s.Subscription).Msg("subscribed")
	return nil
}

func (d *Dispatcher) handleRegistered(m message.Message) error {
	r := m.(*message.Registered)
	p, err := d.state.TakePending(r.Request)
	if err != nil {
		return err
	}
	req, ok := p.Request.(*message.Register)
	if !ok {
		return fmt.Errorf("%w: request %d answered with registered but was %s",
			api.ErrProtocol, r.Request, p.Request.Kind())
	}
	d.state.AddRegistration(r.Registration, req.Procedure)
	d.log.Debug().Str("procedure", req.Procedure).Uint64("registration", r.Registration).Msg("registered")
	return nil
}

func (d *Dispatcher) handleEvent(m message.Message) error {
	ev := m.(*message.Event)
	sub, err := d.state.Subscription(ev.Subscription)
	if err != nil {
		return err
	}
	if sub.Handler == nil {
		return nil
	}
	kwargs := maps.Clone(ev.Kwargs)
	if kwargs == nil {
		kwargs = make(map[string]any, 1)
	}
	kwargs["meta"] = map[string]any{
		"topic":           sub.Topic,
		"subscription_id": ev.Subscription,
	}
	args := ev.Args
	if args == nil {
		args = []any{}
	}
	return d.submitOrdered(ev.Subscription, func() {
		defer func() {
			if r := recover(); r != nil {
				d.log.Error().Interface("panic", r).Str("topic", sub.Topic).Msg("event handler panicked")
			}
		}()
		sub.Handler(args, kwargs)
	})
}

func (d *Dispatcher) handleInvocation(m message.Message) error {
	inv := m.(*message.Invocation)
	name, err := d.state.Registration(inv.Registration)
	if err != nil {
		return err
	}
	proc, ok := d.app.Procedure(name)
	if !ok {
		return fmt.Errorf("%w: no procedure %q for registration %d", api.ErrLookup, name, inv.Registration)
	}
	return d.submit(func() {
		result, failure := invoke(proc, inv.Args, inv.Kwargs)
		if failure != nil {
			d.log.Error().Err(failure).Str("procedure", name).Msg("error calling procedure")
		}
		d.ProcessResult(inv, result, failure)
	})
}

// submitOrdered keeps callbacks for one key in frame order when the
// executor supports keyed lanes.
func (d *Dispatcher) submitOrdered(key uint64, task func()) error {
	ordered, ok := d.exec.(api.OrderedExecutor)
	if !ok {
		return d.submit(task)
	}
	if err := ordered.SubmitOrdered(key, task); err != nil {
		return fmt.Errorf("submit callback: %w", err)
	}
	return nil
}

func (d *Dispatcher) submit(task func()) error {
	if err := d.exec.Submit(task); err != nil {
		return fmt.Errorf("submit callback: %w", err)
	}
	return nil
}
