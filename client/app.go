// File: client/app.go
// Package client
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// App declares the roles a client plays: topics it subscribes to and
// procedures it serves. Roles are (re)issued after every WELCOME.

package client

import (
	"sync"

	"github.com/momentics/hioload-wamp/api"
)

// Topic pairs a topic with its event handler.
type Topic struct {
	Name    string
	Handler api.EventHandler
}

// App is a concurrency-safe role registry.
type App struct {
	mu         sync.RWMutex
	topics     []Topic
	procedures map[string]api.Procedure
	order      []string
}

// NewApp returns an empty registry.
func NewApp() *App {
	return &App{procedures: make(map[string]api.Procedure)}
}

// Subscribe declares a subscription. Declaring a topic twice replaces its
// handler.
func (a *App) Subscribe(topic string, h api.EventHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.topics {
		if a.topics[i].Name == topic {
			a.topics[i].Handler = h
			return
		}
	}
	a.topics = append(a.topics, Topic{Name: topic, Handler: h})
}

// Register declares a procedure under name.
func (a *App) Register(name string, p api.Procedure) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.procedures[name]; !ok {
		a.order = append(a.order, name)
	}
	a.procedures[name] = p
}

// Procedure resolves a declared procedure.
func (a *App) Procedure(name string) (api.Procedure, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.procedures[name]
	return p, ok
}

// Topics returns the declared subscriptions in declaration order.
func (a *App) Topics() []Topic {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Topic(nil), a.topics...)
}

// Procedures returns the declared procedure names in declaration order.
func (a *App) Procedures() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.order...)
}

// Roles returns the HELLO role details. Every role is offered so that
// roles declared after Start work without a new session.
func (a *App) Roles() map[string]any {
	return map[string]any{
		"publisher":  map[string]any{},
		"subscriber": map[string]any{},
		"caller":     map[string]any{},
		"callee":     map[string]any{},
	}
}
