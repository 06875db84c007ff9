// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hooks implements the emulator's extension surface: one
// capability-set interface with defaulted no-op methods (not a
// parallel trait per event), an ordered registry, and downcast-by-name
// retrieval.
package hooks

import (
	"github.com/concrete-ir/ircore/state"
	"github.com/concrete-ir/ircore/step"
)

// Action is the kind of outcome a hook callback requests.
type Action int

const (
	// Pass: take no special action, proceed normally.
	Pass Action = iota
	// Flip: (CBranch only) negate the condition before it's consumed.
	Flip
	// Skip: (Call, or invalid-access writes) skip the normal effect.
	Skip
	// Halt: stop the machine, surfacing an error if one is carried.
	Halt
	// Value: (invalid-access reads only) substitute the carried bytes.
	Value
)

// Outcome is what every hook callback returns: an action plus whether the
// hook changed machine-visible state (used by invalid-access recovery to
// decide whether a retry is worthwhile).
type Outcome struct {
	Action       Action
	Err          error  // carried by Halt
	Bytes        []byte // carried by Value
	StateChanged bool
}

// PassOutcome is the zero-cost default every Hook method should return
// when it has nothing to say.
var PassOutcome = Outcome{Action: Pass}

// AccessSource names which path an invalid-memory-access callback fired
// for.
type AccessSource int

const (
	SourceRead AccessSource = iota
	SourceReadVia
	SourceWrite
	SourceWriteVia
)

// Hook is the single capability-set interface every extension point
// implements a subset of; every method defaults to returning PassOutcome
// via the embedded Base, so implementations only override what they need.
type Hook interface {
	MemoryRead(mem *state.PagedState, a uint64, n int) Outcome
	MemoryWrite(mem *state.PagedState, a uint64, in []byte) Outcome
	RegisterRead(regs *state.RegisterState, off, n int) Outcome
	RegisterWrite(regs *state.RegisterState, off int, in []byte) Outcome
	OperandRead(op state.Operand) Outcome
	OperandWrite(op state.Operand, in []byte) Outcome
	Call(target uint64) Outcome
	CBranch(target uint64, cond bool) Outcome
	OperationStep(op step.Op) Outcome
	ArchitecturalStep(block *step.Block) Outcome
	InvalidMemoryAccess(a uint64, n int, source AccessSource, cause error) Outcome
}

// Base implements Hook with every method returning PassOutcome. Embed it
// in a concrete hook and override only the methods that matter.
type Base struct{}

func (Base) MemoryRead(*state.PagedState, uint64, int) Outcome            { return PassOutcome }
func (Base) MemoryWrite(*state.PagedState, uint64, []byte) Outcome        { return PassOutcome }
func (Base) RegisterRead(*state.RegisterState, int, int) Outcome          { return PassOutcome }
func (Base) RegisterWrite(*state.RegisterState, int, []byte) Outcome      { return PassOutcome }
func (Base) OperandRead(state.Operand) Outcome                            { return PassOutcome }
func (Base) OperandWrite(state.Operand, []byte) Outcome                   { return PassOutcome }
func (Base) Call(uint64) Outcome                                          { return PassOutcome }
func (Base) CBranch(uint64, bool) Outcome                                 { return PassOutcome }
func (Base) OperationStep(step.Op) Outcome                                { return PassOutcome }
func (Base) ArchitecturalStep(*step.Block) Outcome                        { return PassOutcome }
func (Base) InvalidMemoryAccess(uint64, int, AccessSource, error) Outcome { return PassOutcome }

// entry pairs a registered hook with its unique insertion name.
type entry struct {
	name string
	hook Hook
}

// Registry holds hooks in registration order; that order is observed at
// every fire point.
type Registry struct {
	entries []entry
	byName  map[string]int
}

// NewRegistry constructs an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Register inserts hook under name. Names are unique within one registry;
// registering a duplicate name replaces the previous hook in place
// (preserving its original position, since re-registration under the same
// name is how callers usually mean to update a hook's configuration).
func (r *Registry) Register(name string, hook Hook) {
	if i, ok := r.byName[name]; ok {
		r.entries[i].hook = hook
		return
	}
	r.byName[name] = len(r.entries)
	r.entries = append(r.entries, entry{name: name, hook: hook})
}

// Unregister removes the hook registered under name, if any.
func (r *Registry) Unregister(name string) {
	i, ok := r.byName[name]
	if !ok {
		return
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	delete(r.byName, name)
	for n, idx := range r.byName {
		if idx > i {
			r.byName[n] = idx - 1
		}
	}
}

// Lookup retrieves the hook registered under name; callers type-assert
// the returned Hook to their concrete type.
func (r *Registry) Lookup(name string) (Hook, bool) {
	i, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.entries[i].hook, true
}

// All returns every registered hook in registration order.
func (r *Registry) All() []Hook {
	out := make([]Hook, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.hook
	}
	return out
}

// Len reports how many hooks are registered.
func (r *Registry) Len() int { return len(r.entries) }

// Clone deep-copies the registry for fork(): hook values themselves are
// not copied (they're typically immutable configuration plus references
// shared across forked instances), but the registry's own bookkeeping is
// independent so registering/unregistering in a fork never affects its
// parent.
func (r *Registry) Clone() *Registry {
	out := NewRegistry()
	for _, e := range r.entries {
		out.Register(e.name, e.hook)
	}
	return out
}
