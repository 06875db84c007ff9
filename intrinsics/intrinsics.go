// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package intrinsics implements the named-intrinsic extension point:
// a registry of handlers dispatched by name from OpIntrinsic, plus a
// configured default action for unregistered names.
package intrinsics

import "github.com/concrete-ir/ircore/state"

// Action is what an intrinsic handler (or the configured default) asks
// the Interpreter to do next.
type Action int

const (
	// Pass: continue to the next op normally.
	Pass Action = iota
	// Branch: transfer control to Target.
	Branch
	// Halt: stop the machine.
	Halt
)

// Outcome is an intrinsic handler's result.
type Outcome struct {
	Action Action
	Target uint64 // valid when Action == Branch
	Err    error  // carried by Halt
}

// Handler is a named behavior dispatched by OpIntrinsic. It receives the
// full composite state, the op's input operand values (already read) and
// an optional output operand to write.
type Handler func(st *state.PCodeState, in [][]byte, out *state.Operand) Outcome

// Registry holds intrinsic handlers by name plus a configured default
// action applied when OpIntrinsic names a handler that isn't registered.
type Registry struct {
	handlers map[string]Handler
	fallback Outcome
}

// NewRegistry constructs a registry whose default action for an
// unregistered name is Pass.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler), fallback: Outcome{Action: Pass}}
}

// SetDefault configures the action taken when OpIntrinsic names a handler
// that isn't registered.
func (r *Registry) SetDefault(o Outcome) { r.fallback = o }

// Register installs handler under name, replacing any prior handler for
// that name.
func (r *Registry) Register(name string, handler Handler) { r.handlers[name] = handler }

// Unregister removes the handler registered under name, if any.
func (r *Registry) Unregister(name string) { delete(r.handlers, name) }

// Dispatch invokes the handler registered under name, or the configured
// default action if none is registered.
func (r *Registry) Dispatch(name string, st *state.PCodeState, in [][]byte, out *state.Operand) Outcome {
	h, ok := r.handlers[name]
	if !ok {
		return r.fallback
	}
	return h(st, in, out)
}

// Clone deep-copies the registry's bookkeeping for fork(); handler values
// (typically stateless closures over shared configuration) are shared,
// not duplicated.
func (r *Registry) Clone() *Registry {
	out := NewRegistry()
	out.fallback = r.fallback
	for name, h := range r.handlers {
		out.handlers[name] = h
	}
	return out
}
