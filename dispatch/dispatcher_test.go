package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-wamp/api"
	"github.com/momentics/hioload-wamp/auth"
	"github.com/momentics/hioload-wamp/dispatch"
	"github.com/momentics/hioload-wamp/internal/concurrency"
	"github.com/momentics/hioload-wamp/internal/session"
	"github.com/momentics/hioload-wamp/message"
)

type recorder struct {
	mu   sync.Mutex
	sent []message.Message
	err  error
}

func (r *recorder) Send(payload []byte) error {
	if r.err != nil {
		return r.err
	}
	m, err := message.Decode(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.sent = append(r.sent, m)
	r.mu.Unlock()
	return nil
}

func (r *recorder) messages() []message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]message.Message(nil), r.sent...)
}

type app struct {
	procedures map[string]api.Procedure
	roles      int
}

func (a *app) Procedure(name string) (api.Procedure, bool) {
	p, ok := a.procedures[name]
	return p, ok
}

func (a *app) RegisterRoles() error {
	a.roles++
	return nil
}

type fixture struct {
	d     *dispatch.Dispatcher
	state *session.State
	out   *recorder
	app   *app
}

func newFixture(cred *auth.Credential) *fixture {
	nop := zerolog.Nop()
	f := &fixture{
		state: session.NewState(),
		out:   &recorder{},
		app:   &app{procedures: map[string]api.Procedure{}},
	}
	f.d = dispatch.New(dispatch.Options{
		State:      f.state,
		Sender:     f.out,
		App:        f.app,
		Negotiator: auth.NewNegotiator(cred, nil, nop),
		Executor:   api.InlineExecutor{},
		Logger:     &nop,
	})
	return f
}

func (f *fixture) next(t *testing.T) message.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m, err := f.state.Queue().Get(ctx)
	require.NoError(t, err)
	return m
}

func TestQueuedKinds(t *testing.T) {
	cases := map[string]struct {
		raw  string
		kind message.Kind
	}{
		"abort":        {`[3,{"message":"no"},"wamp.error.no_such_realm"]`, message.KindAbort},
		"authenticate": {`[5,"sig",{}]`, message.KindAuthenticate},
		"goodbye":      {`[6,{},"wamp.close.goodbye_and_out"]`, message.KindGoodbye},
		"error":        {`[8,48,7,{},"wamp.error.no_such_procedure"]`, message.KindError},
		"result":       {`[50,7,{},[3]]`, message.KindResult},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(nil)
			require.NoError(t, f.d.HandleMessage([]byte(tc.raw)))
			assert.Equal(t, tc.kind, f.next(t).Kind())
			assert.Empty(t, f.out.messages())
		})
	}
}

func TestWelcomeEstablishesSessionAndRegistersRoles(t *testing.T) {
	f := newFixture(nil)
	require.NoError(t, f.d.HandleMessage([]byte(`[2,12345,{"roles":{"broker":{}}}]`)))

	id, ok := f.state.SessionID()
	assert.True(t, ok)
	assert.Equal(t, uint64(12345), id)
	assert.Equal(t, message.KindWelcome, f.next(t).Kind())
	assert.Equal(t, 1, f.app.roles)
}

func TestUnknownKindIsDropped(t *testing.T) {
	f := newFixture(nil)
	require.NoError(t, f.d.HandleMessage([]byte(`[99,1,2,3]`)))
	assert.Equal(t, session.Stats{}, f.state.Stats())
	assert.Empty(t, f.out.messages())
}

func TestKindWithoutInboundHandlerIsDropped(t *testing.T) {
	f := newFixture(nil)
	require.NoError(t, f.d.HandleMessage([]byte(`[1,"realm1",{}]`)))
	assert.Zero(t, f.state.Queue().Len())
}

func TestMalformedEnvelopeIsFatal(t *testing.T) {
	f := newFixture(nil)
	for _, raw := range []string{`[36,"x",0,{}]`, `[33,1]`, `{"kind":2}`, `[2,1,{}`} {
		err := f.d.HandleMessage([]byte(raw))
		assert.ErrorIs(t, err, api.ErrProtocol, raw)
	}
}

func TestSubscribeScenario(t *testing.T) {
	f := newFixture(nil)
	var gotArgs []any
	var gotKwargs map[string]any
	handler := func(args []any, kwargs map[string]any) {
		gotArgs, gotKwargs = args, kwargs
	}

	req := f.state.NextRequestID()
	require.NoError(t, f.state.AddPending(req, session.PendingRequest{
		Request: &message.Subscribe{Request: req, Topic: "com.example.answers"},
		Handler: handler,
	}))
	require.NoError(t, f.d.HandleMessage([]byte(`[33,1,7001]`)))

	sub, err := f.state.Subscription(7001)
	require.NoError(t, err)
	assert.Equal(t, "com.example.answers", sub.Topic)
	assert.Zero(t, f.state.Stats().Pending)

	require.NoError(t, f.d.HandleMessage([]byte(`[36,7001,0,{},[42],{}]`)))
	assert.Equal(t, []any{float64(42)}, gotArgs)
	assert.Equal(t, map[string]any{
		"topic":           "com.example.answers",
		"subscription_id": uint64(7001),
	}, gotKwargs["meta"])
}

func TestSubscribedWithoutPendingRequest(t *testing.T) {
	f := newFixture(nil)
	err := f.d.HandleMessage([]byte(`[33,404,1]`))
	assert.ErrorIs(t, err, api.ErrLookup)
}

func TestEventForUnknownSubscription(t *testing.T) {
	f := newFixture(nil)
	err := f.d.HandleMessage([]byte(`[36,1,2,{},[1]]`))
	assert.ErrorIs(t, err, api.ErrLookup)
}

func TestEventHandlerPanicIsContained(t *testing.T) {
	f := newFixture(nil)
	f.state.AddSubscription(5, session.Subscription{
		Topic:   "t",
		Handler: func([]any, map[string]any) { panic("boom") },
	})
	assert.NoError(t, f.d.HandleMessage([]byte(`[36,5,1,{}]`)))
}

func TestRegisteredCreatesRegistration(t *testing.T) {
	f := newFixture(nil)
	require.NoError(t, f.state.AddPending(3, session.PendingRequest{
		Request: &message.Register{Request: 3, Procedure: "com.example.add"},
	}))
	require.NoError(t, f.d.HandleMessage([]byte(`[65,3,900]`)))

	name, err := f.state.Registration(900)
	require.NoError(t, err)
	assert.Equal(t, "com.example.add", name)
}

func TestAcknowledgementKindMismatch(t *testing.T) {
	f := newFixture(nil)
	require.NoError(t, f.state.AddPending(3, session.PendingRequest{
		Request: &message.Subscribe{Request: 3, Topic: "t"},
	}))
	err := f.d.HandleMessage([]byte(`[65,3,900]`))
	assert.ErrorIs(t, err, api.ErrProtocol)
}

func welcomed(t *testing.T, f *fixture, procedure string, proc api.Procedure) {
	t.Helper()
	f.state.SetSessionID(777)
	f.state.AddRegistration(900, procedure)
	f.app.procedures[procedure] = proc
}

func TestInvocationSuccessSendsOneYield(t *testing.T) {
	f := newFixture(nil)
	welcomed(t, f, "com.example.add", func(args []any, _ map[string]any) (any, error) {
		return args[0].(float64) + args[1].(float64), nil
	})

	require.NoError(t, f.d.HandleMessage([]byte(`[68,31,900,{},[2,3]]`)))

	sent := f.out.messages()
	require.Len(t, sent, 1)
	y, ok := sent[0].(*message.Yield)
	require.True(t, ok)
	assert.Equal(t, uint64(31), y.Request)
	assert.Equal(t, []any{float64(5)}, y.Args)
	assert.Equal(t, float64(5), y.Kwargs["message"])
	assert.Equal(t, map[string]any{
		"procedure_name": "com.example.add",
		"session_id":     float64(777),
	}, y.Kwargs["meta"])
}

func TestInvocationFailureSendsErrorThenYield(t *testing.T) {
	f := newFixture(nil)
	welcomed(t, f, "com.example.div", func([]any, map[string]any) (any, error) {
		return nil, errors.New("division by zero")
	})

	require.NoError(t, f.d.HandleMessage([]byte(`[68,32,900,{},[1,0],{"strict":true}]`)))

	sent := f.out.messages()
	require.Len(t, sent, 2)
	e, ok := sent[0].(*message.Error)
	require.True(t, ok)
	assert.Equal(t, message.KindInvocation, e.RequestType)
	assert.Equal(t, uint64(32), e.Request)
	assert.Equal(t, "com.example.div", e.URI)
	assert.Equal(t, []any{}, e.Args)
	assert.Equal(t, "errorString", e.Kwargs["exc_type"])
	assert.Equal(t, "division by zero", e.Kwargs["message"])
	assert.Equal(t, []any{float64(1), float64(0)}, e.Kwargs["call_args"])
	assert.Equal(t, map[string]any{"strict": true}, e.Kwargs["call_kwargs"])

	y, ok := sent[1].(*message.Yield)
	require.True(t, ok)
	assert.Equal(t, uint64(32), y.Request)
	assert.Equal(t, []any{nil}, y.Args)
	assert.Nil(t, y.Kwargs["message"])
}

func TestInvocationPanicIsReportedAsError(t *testing.T) {
	f := newFixture(nil)
	welcomed(t, f, "com.example.crash", func([]any, map[string]any) (any, error) {
		panic("nil map write")
	})

	require.NoError(t, f.d.HandleMessage([]byte(`[68,33,900,{}]`)))
	sent := f.out.messages()
	require.Len(t, sent, 2)
	e := sent[0].(*message.Error)
	assert.Equal(t, "panic", e.Kwargs["exc_type"])
	assert.Contains(t, e.Kwargs["message"], "nil map write")
	assert.Equal(t, []any{}, e.Kwargs["call_args"])
	assert.Equal(t, map[string]any{}, e.Kwargs["call_kwargs"])
}

type customFailure struct{}

func (*customFailure) Error() string { return "custom" }

func TestInvocationFailureTypeIsUnqualified(t *testing.T) {
	f := newFixture(nil)
	welcomed(t, f, "com.example.custom", func([]any, map[string]any) (any, error) {
		return nil, &customFailure{}
	})

	require.NoError(t, f.d.HandleMessage([]byte(`[68,34,900,{}]`)))
	e := f.out.messages()[0].(*message.Error)
	assert.Equal(t, "customFailure", e.Kwargs["exc_type"])
}

func TestEventsKeepFrameOrderOnWorkerPool(t *testing.T) {
	const n = 2000
	nop := zerolog.Nop()
	exec := concurrency.NewExecutor(concurrency.Options{Workers: 4, Logger: nop})
	defer exec.Close()
	state := session.NewState()
	d := dispatch.New(dispatch.Options{State: state, Sender: &recorder{}, Executor: exec, Logger: &nop})

	var mu sync.Mutex
	got := make([]int, 0, n)
	done := make(chan struct{})
	require.NoError(t, state.AddPending(1, session.PendingRequest{
		Request: &message.Subscribe{Request: 1, Topic: "com.example.seq"},
		Handler: func(args []any, _ map[string]any) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, int(args[0].(float64)))
			if len(got) == n {
				close(done)
			}
		},
	}))
	require.NoError(t, d.HandleMessage([]byte(`[33,1,9]`)))

	for i := 0; i < n; i++ {
		require.NoError(t, d.HandleMessage([]byte(fmt.Sprintf(`[36,9,%d,{},[%d]]`, i, i))))
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("events not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("event %d delivered at position %d", v, i)
		}
	}
}

func TestInvocationLookupFailures(t *testing.T) {
	f := newFixture(nil)
	err := f.d.HandleMessage([]byte(`[68,1,900,{}]`))
	assert.ErrorIs(t, err, api.ErrLookup)

	f.state.AddRegistration(900, "com.example.gone")
	err = f.d.HandleMessage([]byte(`[68,1,900,{}]`))
	assert.ErrorIs(t, err, api.ErrLookup)
}

func TestProcessResultAfterSessionEnded(t *testing.T) {
	f := newFixture(nil)
	f.state.AddRegistration(900, "p")
	f.d.ProcessResult(&message.Invocation{Request: 1, Registration: 900}, "late", nil)
	assert.Empty(t, f.out.messages())
}

func TestChallengeAnsweredWithCredential(t *testing.T) {
	f := newFixture(auth.NewCredentialString("letmein"))
	require.NoError(t, f.d.HandleMessage([]byte(`[4,"ticket",{}]`)))

	sent := f.out.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "letmein", sent[0].(*message.Authenticate).Signature)
	assert.Zero(t, f.state.Queue().Len())
}

func TestChallengeWithoutCredentialIsHandedOff(t *testing.T) {
	f := newFixture(nil)
	require.NoError(t, f.d.HandleMessage([]byte(`[4,"wampcra",{"challenge":"c"}]`)))

	assert.Empty(t, f.out.messages())
	ch, ok := f.next(t).(*message.Challenge)
	require.True(t, ok)
	assert.Equal(t, "wampcra", ch.AuthMethod)
}
