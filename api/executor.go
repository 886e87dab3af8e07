// Package api
// Author: momentics
//
// Executor contract for isolating application callbacks from the receive loop.

package api

// Executor abstracts parallel task execution.
type Executor interface {
	// Submit schedules task for execution. Implementations may block to
	// apply backpressure.
	Submit(task func()) error

	// NumWorkers returns current number of active worker routines.
	NumWorkers() int
}

// OrderedExecutor additionally runs tasks sharing a key one at a time, in
// submission order.
type OrderedExecutor interface {
	Executor
	SubmitOrdered(key uint64, task func()) error
}

// InlineExecutor runs every task on the calling goroutine.
type InlineExecutor struct{}

// Submit runs task immediately.
func (InlineExecutor) Submit(task func()) error {
	task()
	return nil
}

// SubmitOrdered runs task immediately.
func (InlineExecutor) SubmitOrdered(_ uint64, task func()) error {
	task()
	return nil
}

// NumWorkers reports a single logical worker.
func (InlineExecutor) NumWorkers() int { return 1 }
