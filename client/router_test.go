package client_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/momentics/hioload-wamp/message"
)

const testSession = 4242

// router is a minimal single-client WAMP router for tests.
type router struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	// behaviour
	abort     bool
	challenge string // auth method to challenge with
	signature string // expected AUTHENTICATE signature

	wmu sync.Mutex // serializes writes to ws
	ws  *websocket.Conn

	mu        sync.Mutex
	nextID    uint64
	subs      map[string]uint64
	regs      map[string]uint64
	hello     *message.Hello
	auth      *message.Authenticate
	goodbye   *message.Goodbye
	published []*message.Publish

	yields chan *message.Yield
	errs   chan *message.Error
}

func newRouter(t *testing.T) *router {
	r := &router{
		t:        t,
		upgrader: websocket.Upgrader{Subprotocols: []string{"wamp.2.json"}},
		subs:     make(map[string]uint64),
		regs:     make(map[string]uint64),
		yields:   make(chan *message.Yield, 8),
		errs:     make(chan *message.Error, 8),
	}
	r.srv = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *router) url() string {
	return "ws://" + r.srv.Listener.Addr().String() + "/ws"
}

func (r *router) id() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return r.nextID
}

func (r *router) write(m message.Message) {
	raw, err := message.Encode(m)
	if err != nil {
		r.t.Errorf("router encode: %v", err)
		return
	}
	r.wmu.Lock()
	defer r.wmu.Unlock()
	if r.ws == nil {
		return
	}
	if err := r.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
		r.t.Logf("router write: %v", err)
	}
}

func (r *router) serve(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.t.Errorf("router upgrade: %v", err)
		return
	}
	r.wmu.Lock()
	r.ws = ws
	r.wmu.Unlock()
	defer ws.Close()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		m, err := message.Decode(raw)
		if err != nil {
			r.t.Errorf("router decode %s: %v", raw, err)
			return
		}
		if !r.handle(m) {
			return
		}
	}
}

func (r *router) handle(m message.Message) bool {
	switch m := m.(type) {
	case *message.Hello:
		r.mu.Lock()
		r.hello = m
		r.mu.Unlock()
		switch {
		case r.abort:
			r.write(&message.Abort{
				Details: map[string]any{"message": "no such realm"},
				Reason:  "wamp.error.no_such_realm",
			})
		case r.challenge != "":
			r.write(&message.Challenge{AuthMethod: r.challenge, Extra: map[string]any{"challenge": "nonce-123"}})
		default:
			r.write(&message.Welcome{Session: testSession})
		}
	case *message.Authenticate:
		r.mu.Lock()
		r.auth = m
		r.mu.Unlock()
		if m.Signature == r.signature {
			r.write(&message.Welcome{Session: testSession})
		} else {
			r.write(&message.Abort{Reason: "wamp.error.not_authorized"})
		}
	case *message.Subscribe:
		id := r.id()
		r.write(&message.Subscribed{Request: m.Request, Subscription: id})
		r.mu.Lock()
		r.subs[m.Topic] = id
		r.mu.Unlock()
	case *message.Register:
		id := r.id()
		r.write(&message.Registered{Request: m.Request, Registration: id})
		r.mu.Lock()
		r.regs[m.Procedure] = id
		r.mu.Unlock()
	case *message.Publish:
		r.mu.Lock()
		r.published = append(r.published, m)
		sub, ok := r.subs[m.Topic]
		r.mu.Unlock()
		if ok {
			r.write(&message.Event{Subscription: sub, Publication: r.id(), Args: m.Args, Kwargs: m.Kwargs})
		}
	case *message.Call:
		switch m.Procedure {
		case "com.example.add":
			sum := 0.0
			for _, a := range m.Args {
				sum += a.(float64)
			}
			r.write(&message.Result{Request: m.Request, Args: []any{sum}})
		default:
			r.write(&message.Error{
				RequestType: message.KindCall,
				Request:     m.Request,
				URI:         "wamp.error.no_such_procedure",
				Args:        []any{m.Procedure},
			})
		}
	case *message.Yield:
		r.yields <- m
	case *message.Error:
		r.errs <- m
	case *message.Goodbye:
		r.mu.Lock()
		r.goodbye = m
		r.mu.Unlock()
		r.write(&message.Goodbye{Reason: message.ReasonGoodbyeAndOut})
		return false
	}
	return true
}

// invoke sends an INVOCATION for a procedure the client registered.
func (r *router) invoke(procedure string, args []any) uint64 {
	r.mu.Lock()
	reg := r.regs[procedure]
	r.mu.Unlock()
	req := r.id()
	r.write(&message.Invocation{Request: req, Registration: reg, Args: args})
	return req
}

func (r *router) subscribed(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[topic]
	return ok
}

func (r *router) registered(procedure string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.regs[procedure]
	return ok
}

func (r *router) seenHello() *message.Hello {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hello
}

func (r *router) seenGoodbye() *message.Goodbye {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.goodbye
}

func (r *router) seenAuth() *message.Authenticate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.auth
}

// closeConn drops the client connection abruptly.
func (r *router) closeConn() {
	r.wmu.Lock()
	defer r.wmu.Unlock()
	if r.ws != nil {
		_ = r.ws.Close()
	}
}
