// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Protocol session bookkeeping: request correlation, subscriptions,
// registrations, and the established session identity.

package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-wamp/api"
	"github.com/momentics/hioload-wamp/message"
)

// ErrDuplicateRequest is returned when a request id is already pending.
var ErrDuplicateRequest = errors.New("session: request id already pending")

// PendingRequest correlates a sent SUBSCRIBE or REGISTER with its acknowledgement.
type PendingRequest struct {
	Request message.Message
	Handler api.EventHandler // set for subscriptions
}

// Subscription is the local half of a router-assigned subscription id.
type Subscription struct {
	Handler api.EventHandler
	Topic   string
}

// Stats is a point-in-time view of the bookkeeping maps.
type Stats struct {
	Pending       int
	Subscriptions int
	Registrations int
	Queued        int
}

// State holds per-session bookkeeping. The maps are written by the receive
// loop and read by executor goroutines and foreground callers, hence the lock.
type State struct {
	mu            sync.RWMutex
	sessionID     uint64
	established   bool
	pending       map[uint64]PendingRequest
	subscriptions map[uint64]Subscription
	registrations map[uint64]string

	nextRequest atomic.Uint64
	queue       *HandoffQueue
}

// NewState returns empty bookkeeping with an open handoff queue.
func NewState() *State {
	return &State{
		pending:       make(map[uint64]PendingRequest),
		subscriptions: make(map[uint64]Subscription),
		registrations: make(map[uint64]string),
		queue:         NewHandoffQueue(),
	}
}

// Queue returns the handoff queue toward the foreground caller.
func (s *State) Queue() *HandoffQueue {
	return s.queue
}

// NextRequestID returns a fresh request id. Ids start at 1 and are never reused.
func (s *State) NextRequestID() uint64 {
	return s.nextRequest.Add(1)
}

// AddPending records a request awaiting acknowledgement.
func (s *State) AddPending(id uint64, p PendingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateRequest, id)
	}
	s.pending[id] = p
	return nil
}

// TakePending removes and returns the request with the given id.
func (s *State) TakePending(id uint64) (PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return PendingRequest{}, fmt.Errorf("%w: no pending request %d", api.ErrLookup, id)
	}
	delete(s.pending, id)
	return p, nil
}

// DropPending forgets a request, for instance after a failed send.
func (s *State) DropPending(id uint64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// AddSubscription maps a router subscription id to its handler and topic.
func (s *State) AddSubscription(id uint64, sub Subscription) {
	s.mu.Lock()
	s.subscriptions[id] = sub
	s.mu.Unlock()
}

// Subscription resolves a subscription id.
func (s *State) Subscription(id uint64) (Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[id]
	if !ok {
		return Subscription{}, fmt.Errorf("%w: unknown subscription %d", api.ErrLookup, id)
	}
	return sub, nil
}

// AddRegistration maps a router registration id to a procedure name.
func (s *State) AddRegistration(id uint64, procedure string) {
	s.mu.Lock()
	s.registrations[id] = procedure
	s.mu.Unlock()
}

// Registration resolves a registration id to its procedure name.
func (s *State) Registration(id uint64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.registrations[id]
	if !ok {
		return "", fmt.Errorf("%w: unknown registration %d", api.ErrLookup, id)
	}
	return name, nil
}

// SetSessionID marks the session established.
func (s *State) SetSessionID(id uint64) {
	s.mu.Lock()
	s.sessionID = id
	s.established = true
	s.mu.Unlock()
}

// ClearSessionID marks the session ended.
func (s *State) ClearSessionID() {
	s.mu.Lock()
	s.sessionID = 0
	s.established = false
	s.mu.Unlock()
}

// SessionID returns the session id and whether a session is established.
func (s *State) SessionID() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID, s.established
}

// Reset drops all session-scoped entries and the session id. The request id
// counter keeps counting so ids stay unique across sessions.
func (s *State) Reset() {
	s.mu.Lock()
	s.sessionID = 0
	s.established = false
	s.pending = make(map[uint64]PendingRequest)
	s.subscriptions = make(map[uint64]Subscription)
	s.registrations = make(map[uint64]string)
	s.mu.Unlock()
}

// Stats returns entry counts.
func (s *State) Stats() Stats {
	s.mu.RLock()
	st := Stats{
		Pending:       len(s.pending),
		Subscriptions: len(s.subscriptions),
		Registrations: len(s.registrations),
	}
	s.mu.RUnlock()
	st.Queued = s.queue.Len()
	return st
}
