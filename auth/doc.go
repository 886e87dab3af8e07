// File: auth/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package auth answers router authentication challenges.
// Supported methods are ticket and WAMP-CRA, including salted CRA where the
// signing key is derived with PBKDF2. The shared secret is kept in an
// encrypted memguard enclave and decrypted only while signing.
package auth
