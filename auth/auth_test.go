package auth_test

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-wamp/api"
	"github.com/momentics/hioload-wamp/auth"
	"github.com/momentics/hioload-wamp/message"
)

const challengeText = `{"authid": "peter", "nonce": "abc"}`

func TestCRASignerKnownVector(t *testing.T) {
	sig, err := auth.CRASigner{}.Sign([]byte("secret2"), []byte(challengeText))
	require.NoError(t, err)
	assert.Equal(t, "ok3H5kOoPxBUunjrewI7qsptstGCH2g654UUrz2TzR4=", string(sig))
}

func TestDeriveKeyKnownVector(t *testing.T) {
	key := auth.DeriveKey([]byte("secret2"), []byte("salt123"), 100, 16)
	assert.Equal(t, "LG5/FwnS5WvgmlEyLPk/pQ==", string(key))
}

func TestDeriveKeyDefaults(t *testing.T) {
	a := auth.DeriveKey([]byte("s"), []byte("salt"), 0, 0)
	b := auth.DeriveKey([]byte("s"), []byte("salt"), auth.DefaultIterations, auth.DefaultKeyLen)
	assert.Equal(t, a, b)
}

func TestRespondTicket(t *testing.T) {
	n := auth.NewNegotiator(auth.NewCredentialString("letmein"), nil, zerolog.Nop())
	reply, err := n.Respond(&message.Challenge{AuthMethod: auth.MethodTicket})
	require.NoError(t, err)
	assert.Equal(t, "letmein", reply.Signature)
}

func TestRespondCRA(t *testing.T) {
	n := auth.NewNegotiator(auth.NewCredentialString("secret2"), nil, zerolog.Nop())
	reply, err := n.Respond(&message.Challenge{
		AuthMethod: auth.MethodCRA,
		Extra:      map[string]any{"challenge": challengeText},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok3H5kOoPxBUunjrewI7qsptstGCH2g654UUrz2TzR4=", reply.Signature)
}

func TestRespondSaltedCRA(t *testing.T) {
	n := auth.NewNegotiator(auth.NewCredentialString("secret2"), nil, zerolog.Nop())
	reply, err := n.Respond(&message.Challenge{
		AuthMethod: auth.MethodCRA,
		Extra: map[string]any{
			"challenge":  challengeText,
			"salt":       "salt123",
			"iterations": float64(100),
			"keylen":     float64(16),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "3qPKHJQlk9r9CWprYljqg6x5gQQ6rytjWWbtiNbMZpM=", reply.Signature)
}

func TestRespondWithoutCredential(t *testing.T) {
	for _, n := range []*auth.Negotiator{
		auth.NewNegotiator(nil, nil, zerolog.Nop()),
		auth.NewNegotiator(auth.NewCredential(nil), nil, zerolog.Nop()),
	} {
		assert.False(t, n.HasCredential())
		_, err := n.Respond(&message.Challenge{AuthMethod: auth.MethodCRA})
		assert.ErrorIs(t, err, api.ErrConfiguration)
	}
}

type failingSigner struct{}

func (failingSigner) Sign(_, _ []byte) ([]byte, error) { return nil, errors.New("hsm offline") }

func TestRespondPropagatesSignerFailure(t *testing.T) {
	n := auth.NewNegotiator(auth.NewCredentialString("x"), failingSigner{}, zerolog.Nop())
	_, err := n.Respond(&message.Challenge{AuthMethod: auth.MethodCRA})
	assert.ErrorContains(t, err, "hsm offline")
}

func TestCredentialWithSecret(t *testing.T) {
	c := auth.NewCredentialString("abc")
	assert.False(t, c.Empty())
	var got string
	require.NoError(t, c.WithSecret(func(s []byte) error {
		got = string(s)
		return nil
	}))
	assert.Equal(t, "abc", got)

	var nilCred *auth.Credential
	assert.True(t, nilCred.Empty())
	assert.ErrorIs(t, nilCred.WithSecret(func([]byte) error { return nil }), api.ErrConfiguration)
}
