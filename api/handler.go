// File: api/handler.go
// Package api defines the application collaborator contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// EventHandler receives the positional and keyword payload of an EVENT.
// kwargs always carries a "meta" entry with the topic and subscription id.
type EventHandler func(args []any, kwargs map[string]any)

// Procedure serves an INVOCATION. A returned error, or a panic, is reported
// to the caller as an ERROR envelope.
type Procedure func(args []any, kwargs map[string]any) (any, error)

// Application is the collaborator the dispatcher consults for procedures
// and notifies once a session has been welcomed.
type Application interface {
	// Procedure resolves a registered procedure by name.
	Procedure(name string) (Procedure, bool)

	// RegisterRoles (re)issues the subscriptions and registrations the
	// application declares. Called once per WELCOME from the receive loop;
	// it must not wait for acknowledgements.
	RegisterRoles() error
}
