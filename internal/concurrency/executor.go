// File: internal/concurrency/executor.go
// Package concurrency implements a bounded callback executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks to a fixed set of worker goroutines through a
// bounded queue. Submit blocks while the queue is full, which pushes back on
// the receive loop instead of growing without limit. SubmitOrdered pins a
// key to one worker's private lane so tasks for that key run serially.

package concurrency

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-wamp/api"
)

var _ api.OrderedExecutor = (*Executor)(nil)

// ErrExecutorClosed is returned by Submit after Close.
var ErrExecutorClosed = errors.New("concurrency: executor closed")

// TaskFunc is a unit of work to execute.
type TaskFunc func()

// PanicHook observes a recovered task panic.
type PanicHook func(recovered any)

// Options tunes an Executor. Zero values pick defaults.
type Options struct {
	Workers   int // defaults to runtime.NumCPU()
	QueueSize int // defaults to Workers*4
	Logger    zerolog.Logger
	OnPanic   PanicHook
}

// Executor manages a pool of worker goroutines.
type Executor struct {
	queue   chan TaskFunc
	lanes   []chan TaskFunc // one per worker
	closeCh chan struct{}
	closed  atomic.Bool
	wg      sync.WaitGroup
	workers int
	log     zerolog.Logger
	onPanic PanicHook

	// statistics
	totalTasks     atomic.Int64
	completedTasks atomic.Int64
	panics         atomic.Int64
}

// NewExecutor starts the workers.
func NewExecutor(opts Options) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = opts.Workers * 4
	}
	e := &Executor{
		queue:   make(chan TaskFunc, opts.QueueSize),
		closeCh: make(chan struct{}),
		workers: opts.Workers,
		log:     opts.Logger,
		onPanic: opts.OnPanic,
	}
	e.lanes = make([]chan TaskFunc, opts.Workers)
	for i := range e.lanes {
		e.lanes[i] = make(chan TaskFunc, opts.QueueSize)
	}
	e.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go e.run(i)
	}
	return e
}

// Submit enqueues a task, blocking while the queue is full.
func (e *Executor) Submit(task func()) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	return e.enqueue(e.queue, task)
}

// SubmitOrdered enqueues task on the lane owned by key. Tasks with the same
// key run one at a time in submission order.
func (e *Executor) SubmitOrdered(key uint64, task func()) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	return e.enqueue(e.lanes[key%uint64(len(e.lanes))], task)
}

func (e *Executor) enqueue(q chan TaskFunc, task TaskFunc) error {
	select {
	case q <- task:
		e.totalTasks.Add(1)
		return nil
	case <-e.closeCh:
		return ErrExecutorClosed
	}
}

// NumWorkers returns the number of workers.
func (e *Executor) NumWorkers() int {
	return e.workers
}

// Close stops accepting tasks, lets workers finish what is queued, and waits
// for them to exit.
func (e *Executor) Close() {
	if e.closed.CompareAndSwap(false, true) {
		close(e.closeCh)
	}
	e.wg.Wait()
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	total := e.totalTasks.Load()
	done := e.completedTasks.Load()
	return map[string]int64{
		"total_tasks":     total,
		"completed_tasks": done,
		"pending_tasks":   total - done,
		"panics":          e.panics.Load(),
		"num_workers":     int64(e.workers),
	}
}

func (e *Executor) run(id int) {
	defer e.wg.Done()
	lane := e.lanes[id]
	for {
		select {
		case task := <-lane:
			e.execute(id, task)
		case task := <-e.queue:
			e.execute(id, task)
		case <-e.closeCh:
			// drain what was accepted before Close
			for {
				select {
				case task := <-lane:
					e.execute(id, task)
				case task := <-e.queue:
					e.execute(id, task)
				default:
					return
				}
			}
		}
	}
}

// execute runs the task and updates statistics, recovering from panics.
func (e *Executor) execute(id int, task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.log.Error().
				Int("worker", id).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("task panicked")
			if e.onPanic != nil {
				e.onPanic(r)
			}
		}
		e.completedTasks.Add(1)
	}()
	task()
}
