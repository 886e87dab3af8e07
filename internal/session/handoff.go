// File: internal/session/handoff.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HandoffQueue carries awaited messages from the receive loop to the
// foreground caller blocked on a specific reply.

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-wamp/api"
	"github.com/momentics/hioload-wamp/message"
)

// HandoffQueue is an unbounded FIFO safe for concurrent producers and consumers.
type HandoffQueue struct {
	mu     sync.Mutex
	items  *queue.Queue
	ready  chan struct{} // one pending wakeup, cap 1
	done   chan struct{}
	closed bool
	cause  error
}

// NewHandoffQueue creates an empty, open queue.
func NewHandoffQueue() *HandoffQueue {
	return &HandoffQueue{
		items: queue.New(),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Put appends m. Messages put after Close are dropped and false is returned.
func (q *HandoffQueue) Put(m message.Message) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items.Add(m)
	q.mu.Unlock()
	q.signal()
	return true
}

// Get removes and returns the oldest message, waiting until one is available.
//
// If ctx expires first the error wraps api.ErrHandoffTimeout; other
// cancellations return ctx.Err(). Once the queue is closed and drained, Get
// returns the close cause.
func (q *HandoffQueue) Get(ctx context.Context) (message.Message, error) {
	for {
		q.mu.Lock()
		if q.items.Length() > 0 {
			m := q.items.Remove().(message.Message)
			more := q.items.Length() > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return m, nil
		}
		if q.closed {
			cause := q.cause
			q.mu.Unlock()
			return nil, cause
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %w", api.ErrHandoffTimeout, ctx.Err())
			}
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of queued messages.
func (q *HandoffQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Close stops accepting messages and wakes every waiter. Waiters drain what
// is already queued before receiving cause (api.ErrConnectionClosed if nil).
// Only the first call has effect.
func (q *HandoffQueue) Close(cause error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if cause == nil {
		cause = api.ErrConnectionClosed
	}
	q.closed = true
	q.cause = cause
	close(q.done)
}

func (q *HandoffQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
