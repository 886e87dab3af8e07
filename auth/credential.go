// File: auth/credential.go
// Package auth
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package auth

import (
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/momentics/hioload-wamp/api"
)

// Credential is a shared secret sealed in encrypted memory.
// A nil Credential is valid and reports Empty.
type Credential struct {
	enclave *memguard.Enclave
}

// NewCredential seals secret. memguard wipes the source slice.
// An empty secret yields an empty credential.
func NewCredential(secret []byte) *Credential {
	if len(secret) == 0 {
		return &Credential{}
	}
	return &Credential{enclave: memguard.NewEnclave(secret)}
}

// NewCredentialString seals a secret given as a string.
func NewCredentialString(secret string) *Credential {
	return NewCredential([]byte(secret))
}

// Empty reports whether no secret is held.
func (c *Credential) Empty() bool {
	return c == nil || c.enclave == nil
}

// WithSecret decrypts the secret for the duration of fn.
// fn must not retain the slice.
func (c *Credential) WithSecret(fn func(secret []byte) error) error {
	if c.Empty() {
		return fmt.Errorf("%w: no secret configured", api.ErrConfiguration)
	}
	buf, err := c.enclave.Open()
	if err != nil {
		return fmt.Errorf("auth: open enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}
