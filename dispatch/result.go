// File: dispatch/result.go
// Package dispatch
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dispatch

import (
	"fmt"
	"strings"

	"github.com/momentics/hioload-wamp/api"
	"github.com/momentics/hioload-wamp/message"
)

// TypedError lets a procedure error name its own exc_type.
type TypedError interface {
	error
	ErrorType() string
}

// PanicError is the failure reported for a procedure that panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string     { return fmt.Sprintf("procedure panicked: %v", e.Value) }
func (e *PanicError) ErrorType() string { return "panic" }

// ProcessResult answers an invocation. A failure produces an ERROR for
// the invocation followed by a YIELD carrying a nil result; success
// produces a single YIELD. Nothing is sent once the session has ended.
func (d *Dispatcher) ProcessResult(inv *message.Invocation, result any, failure error) {
	sessionID, ok := d.state.SessionID()
	if !ok {
		d.log.Error().Uint64("request", inv.Request).Msg("session already ended, not processing result")
		return
	}
	name, err := d.state.Registration(inv.Registration)
	if err != nil {
		d.log.Error().Err(err).Uint64("request", inv.Request).Msg("result for unknown registration")
		return
	}

	if failure != nil {
		d.metrics.Invocation("error")
		callArgs := inv.Args
		if callArgs == nil {
			callArgs = []any{}
		}
		callKwargs := inv.Kwargs
		if callKwargs == nil {
			callKwargs = map[string]any{}
		}
		errMsg := &message.Error{
			RequestType: message.KindInvocation,
			Request:     inv.Request,
			URI:         name,
			Args:        []any{},
			Kwargs: map[string]any{
				"exc_type":    excType(failure),
				"message":     failure.Error(),
				"call_args":   callArgs,
				"call_kwargs": callKwargs,
			},
		}
		d.log.Error().Str("procedure", name).Uint64("request", inv.Request).Msg("returning with error")
		if err := d.send(errMsg); err != nil {
			d.log.Error().Err(err).Msg("send error reply")
		}
	} else {
		d.metrics.Invocation("ok")
	}

	y := &message.Yield{
		Request: inv.Request,
		Args:    []any{result},
		Kwargs: map[string]any{
			"message": result,
			"meta": map[string]any{
				"procedure_name": name,
				"session_id":     sessionID,
			},
		},
	}
	if err := d.send(y); err != nil {
		d.log.Error().Err(err).Msg("send yield")
	}
}

// invoke runs proc, turning a panic into a *PanicError.
func invoke(proc api.Procedure, args []any, kwargs map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &PanicError{Value: r}
		}
	}()
	if args == nil {
		args = []any{}
	}
	return proc(args, kwargs)
}

func excType(err error) string {
	if te, ok := err.(TypedError); ok {
		return te.ErrorType()
	}
	name := strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}
