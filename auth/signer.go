// File: auth/signer.go
// Package auth
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations applies when a salted challenge omits iterations.
	DefaultIterations = 1000
	// DefaultKeyLen applies when a salted challenge omits keylen.
	DefaultKeyLen = 32
)

// Signer produces the WAMP-CRA signature of a challenge.
type Signer interface {
	Sign(key, challenge []byte) ([]byte, error)
}

// CRASigner signs with base64(HMAC-SHA256(key, challenge)).
type CRASigner struct{}

// Sign implements Signer.
func (CRASigner) Sign(key, challenge []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, key)
	mac.Write(challenge)
	sum := mac.Sum(nil)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum)
	return out, nil
}

// DeriveKey returns base64(PBKDF2-HMAC-SHA256(secret, salt)), the key a
// salted challenge is signed with. Non-positive iterations or keyLen fall
// back to the defaults.
func DeriveKey(secret, salt []byte, iterations, keyLen int) []byte {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	if keyLen <= 0 {
		keyLen = DefaultKeyLen
	}
	dk := pbkdf2.Key(secret, salt, iterations, keyLen, sha256.New)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(dk)))
	base64.StdEncoding.Encode(out, dk)
	return out
}
