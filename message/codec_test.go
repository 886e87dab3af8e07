package message_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-wamp/api"
	"github.com/momentics/hioload-wamp/message"
)

func TestDecodeInboundKinds(t *testing.T) {
	cases := []struct {
		raw  string
		kind message.Kind
	}{
		{`[2, 9129137332, {"roles": {"broker": {}}}]`, message.KindWelcome},
		{`[3, {"message": "no such realm"}, "wamp.error.no_such_realm"]`, message.KindAbort},
		{`[4, "wampcra", {"challenge": "abc"}]`, message.KindChallenge},
		{`[5, "sig", {}]`, message.KindAuthenticate},
		{`[6, {}, "wamp.close.system_shutdown"]`, message.KindGoodbye},
		{`[8, 48, 7, {}, "wamp.error.no_such_procedure"]`, message.KindError},
		{`[33, 713845233, 5512315355]`, message.KindSubscribed},
		{`[36, 5512315355, 4429313566, {}, [42], {"k": "v"}]`, message.KindEvent},
		{`[50, 7, {}, [30]]`, message.KindResult},
		{`[65, 25349185, 2103333224]`, message.KindRegistered},
		{`[68, 6131533, 9823526, {}, ["Hello"], {}]`, message.KindInvocation},
	}
	for _, tc := range cases {
		m, err := message.Decode([]byte(tc.raw))
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.kind, m.Kind(), tc.raw)
	}
}

func TestDecodeEventFields(t *testing.T) {
	m, err := message.Decode([]byte(`[36, 77, 0, {}, [42], {}]`))
	require.NoError(t, err)
	ev, ok := m.(*message.Event)
	require.True(t, ok)
	assert.Equal(t, uint64(77), ev.Subscription)
	assert.Equal(t, []any{float64(42)}, ev.Args)
	assert.NotNil(t, ev.Kwargs)
}

func TestDecodeOptionalPayloadAbsent(t *testing.T) {
	m, err := message.Decode([]byte(`[50, 7, {}]`))
	require.NoError(t, err)
	res := m.(*message.Result)
	assert.Nil(t, res.Args)
	assert.Empty(t, res.Kwargs)
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := message.Decode([]byte(`[999, 1, 2]`))
	assert.True(t, errors.Is(err, api.ErrUnknownMessageKind), "got %v", err)
	assert.False(t, message.Kind(999).Known())
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{
		`{"kind": 2}`,
		`not json`,
		`["2", 1, {}]`,
		`[2.5, 1, {}]`,
		`[2, 1]`,
		`[33, 1, 2, 3]`,
		`[33, "one", 2]`,
	} {
		_, err := message.Decode([]byte(raw))
		assert.True(t, errors.Is(err, api.ErrProtocol), "%s: got %v", raw, err)
	}
}

func TestEncodeShapes(t *testing.T) {
	cases := []struct {
		msg  message.Message
		want string
	}{
		{&message.Hello{Realm: "realm1"}, `[1,"realm1",{}]`},
		{&message.Subscribe{Request: 1, Topic: "t1"}, `[32,1,{},"t1"]`},
		{&message.Register{Request: 2, Procedure: "p"}, `[64,2,{},"p"]`},
		{&message.Call{Request: 3, Procedure: "p"}, `[48,3,{},"p"]`},
		{&message.Call{Request: 3, Procedure: "p", Kwargs: map[string]any{"a": 1}}, `[48,3,{},"p",[],{"a":1}]`},
		{&message.Yield{Request: 4, Args: []any{nil}}, `[70,4,{},[null]]`},
		{&message.Error{RequestType: message.KindInvocation, Request: 5, URI: "p", Kwargs: map[string]any{"x": "y"}}, `[8,68,5,{},"p",[],{"x":"y"}]`},
		{&message.Goodbye{Reason: message.ReasonCloseRealm}, `[6,{},"wamp.close.close_realm"]`},
		{&message.Authenticate{Signature: "s"}, `[5,"s",{}]`},
	}
	for _, tc := range cases {
		data, err := message.Encode(tc.msg)
		require.NoError(t, err)
		assert.JSONEq(t, tc.want, string(data))
	}
}

func TestPeek(t *testing.T) {
	k, err := message.Peek([]byte(`[68, 1, 2, {}]`))
	require.NoError(t, err)
	assert.Equal(t, message.KindInvocation, k)
	assert.Equal(t, "invocation", k.String())
	assert.Equal(t, "12", message.Kind(12).String())
}

func TestChallengeAccessor(t *testing.T) {
	ch := &message.Challenge{AuthMethod: "wampcra", Extra: map[string]any{"challenge": "{\"nonce\":1}"}}
	assert.Equal(t, "{\"nonce\":1}", ch.Challenge())
	assert.Equal(t, "", (&message.Challenge{}).Challenge())
}
