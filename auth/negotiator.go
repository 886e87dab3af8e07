// File: auth/negotiator.go
// Package auth
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package auth

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-wamp/api"
	"github.com/momentics/hioload-wamp/message"
)

const (
	MethodTicket = "ticket"
	MethodCRA    = "wampcra"
)

// Negotiator turns a Challenge into an Authenticate reply.
type Negotiator struct {
	cred   *Credential
	signer Signer
	log    zerolog.Logger
}

// NewNegotiator builds a negotiator. A nil signer selects CRASigner.
func NewNegotiator(cred *Credential, signer Signer, log zerolog.Logger) *Negotiator {
	if signer == nil {
		signer = CRASigner{}
	}
	return &Negotiator{cred: cred, signer: signer, log: log}
}

// HasCredential reports whether a secret is configured.
func (n *Negotiator) HasCredential() bool {
	return n != nil && !n.cred.Empty()
}

// Respond answers ch. Without a credential it returns api.ErrConfiguration
// and the caller is expected to hand the challenge to the foreground.
func (n *Negotiator) Respond(ch *message.Challenge) (*message.Authenticate, error) {
	if !n.HasCredential() {
		return nil, fmt.Errorf("%w: challenge %q received but no secret is configured",
			api.ErrConfiguration, ch.AuthMethod)
	}

	var reply *message.Authenticate
	err := n.cred.WithSecret(func(secret []byte) error {
		if ch.AuthMethod == MethodTicket {
			n.log.Info().Msg("proceeding with ticket authentication")
			reply = &message.Authenticate{Signature: string(secret)}
			return nil
		}

		n.log.Info().Str("method", ch.AuthMethod).Msg("answering with wampcra signature")
		key := secret
		if salt, ok := ch.Extra["salt"].(string); ok && salt != "" {
			key = DeriveKey(secret, []byte(salt),
				intField(ch.Extra, "iterations"), intField(ch.Extra, "keylen"))
		}
		sig, err := n.signer.Sign(key, []byte(ch.Challenge()))
		if err != nil {
			return fmt.Errorf("auth: sign challenge: %w", err)
		}
		reply = &message.Authenticate{Signature: string(sig)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

func intField(extra map[string]any, key string) int {
	switch v := extra[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}
