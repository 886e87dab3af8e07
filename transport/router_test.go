package transport_test

import (
	"context"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-wamp/api"
	"github.com/momentics/hioload-wamp/transport"
)

// echoRouter upgrades with the WAMP subprotocol, optionally pings, and
// echoes every data message back.
func echoRouter(t *testing.T, pinged chan<- string) http.Handler {
	upgrader := websocket.Upgrader{Subprotocols: []string{"wamp.2.json"}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade: %v", err)
			return
		}
		defer ws.Close()
		if pinged != nil {
			ws.SetPongHandler(func(data string) error {
				pinged <- data
				return nil
			})
			_ = ws.WriteControl(websocket.PingMessage, []byte("are-you-there"), time.Now().Add(time.Second))
		}
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, data); err != nil {
				return
			}
		}
	})
}

func wsURL(srv *httptest.Server, scheme string) string {
	return scheme + "://" + srv.Listener.Addr().String() + "/ws"
}

func TestRoundTripAgainstWebSocketServer(t *testing.T) {
	pinged := make(chan string, 1)
	srv := httptest.NewServer(echoRouter(t, pinged))
	defer srv.Close()

	conn, err := transport.Dial(context.Background(), wsURL(srv, "ws"), testConfig())
	require.NoError(t, err)
	defer conn.Disconnect()
	assert.Equal(t, "wamp.2.json", conn.Subprotocol())

	require.NoError(t, conn.Send([]byte(`[1,"realm1",{}]`)))
	frame, err := conn.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `[1,"realm1",{}]`, string(frame.Payload))

	select {
	case data := <-pinged:
		assert.Equal(t, "are-you-there", data)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received pong")
	}
}

func TestSecureRoundTrip(t *testing.T) {
	srv := httptest.NewTLSServer(echoRouter(t, nil))
	defer srv.Close()

	roots := x509.NewCertPool()
	roots.AddCert(srv.Certificate())
	cfg := testConfig()
	cfg.TLS.RootCAs = roots

	conn, err := transport.Dial(context.Background(), wsURL(srv, "wss"), cfg)
	require.NoError(t, err)
	defer conn.Disconnect()
	assert.True(t, conn.Secure())

	require.NoError(t, conn.Send([]byte(`[6,{},"wamp.close.close_realm"]`)))
	frame, err := conn.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `[6,{},"wamp.close.close_realm"]`, string(frame.Payload))
}

func TestSecureRejectsUntrustedCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(echoRouter(t, nil))
	defer srv.Close()

	_, err := transport.Dial(context.Background(), wsURL(srv, "wss"), testConfig())
	assert.ErrorIs(t, err, api.ErrConnectionFailure)
}

func TestSecureRejectsMissingCABundle(t *testing.T) {
	srv := httptest.NewTLSServer(echoRouter(t, nil))
	defer srv.Close()

	cfg := testConfig()
	cfg.TLS.CAFile = t.TempDir() + "/missing.pem"
	_, err := transport.Dial(context.Background(), wsURL(srv, "wss"), cfg)
	assert.ErrorIs(t, err, api.ErrConnectionFailure)
}
