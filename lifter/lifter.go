// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lifter defines the narrow interfaces this emulator core
// consumes from its external collaborators: the lifter that turns bytes
// into IR, the loader that turns a binary into an initial PagedState, and
// calling-convention metadata. None of these are
// implemented here; the core treats them as plug-in points. See
// internal/reference for a toy implementation used by tests and the
// reference CLI driver.
package lifter

import (
	"github.com/concrete-ir/ircore/addr"
	"github.com/concrete-ir/ircore/state"
	"github.com/concrete-ir/ircore/step"
)

// Lifter turns bytes at an address into one lifted instruction.
type Lifter interface {
	// Lift produces one lifted instruction (address, length, ordered
	// micro-ops) from a byte view at address. The mutable lift context is
	// opaque to the core; implementations may thread per-call scratch
	// state through it (e.g. a disassembler's internal buffers).
	Lift(ctx any, address uint64, bytes []byte) (*step.Block, error)

	// RegisterSpace, UniqueSpace report the sizes and address.Space
	// handles for the register and temporary spaces this lifter's target
	// architecture uses.
	RegisterSpace() (addr.Space, int)
	UniqueSpace() (addr.Space, int)

	// MemorySpace reports the default memory address.Space.
	MemorySpace() addr.Space

	// ProgramCounter reports the program-counter varnode as an Operand in
	// the register space.
	ProgramCounter() state.Operand

	// Disassemble produces a human-readable disassembly of the same
	// inputs Lift would consume, for diagnostics only.
	Disassemble(ctx any, address uint64, bytes []byte) (string, error)

	// Conventions enumerates the compiler conventions this lifter's
	// target knows about, by name.
	Conventions() []string

	// ResolveOperand converts an abstract operand descriptor (as produced
	// by a particular lifter's IR) into a concrete state.Operand.
	ResolveOperand(descriptor any) (state.Operand, error)
}

// SegmentInfo is one (address-range, name, bytes) tuple a Loader
// enumerates.
type SegmentInfo struct {
	Name  string
	Start uint64
	Bytes []byte
}

// Loader produces the inputs needed to construct the initial PagedState
// from a binary path and a language database.
type Loader interface {
	// Load returns the enumerated segments and the default memory space
	// handle for path, interpreted against langDB.
	Load(path string, langDB string) ([]SegmentInfo, addr.Space, error)
}

// Convention supplies the stack-pointer varnode, return-location
// descriptor, and extra-pop byte count a calling convention contributes.
type Convention struct {
	Name           string
	StackPointer   state.Operand
	ReturnLocation state.ReturnLocation
	ExtraPop       int
}

// DefaultConvention is a fallback a component may use when a
// binary's language metadata doesn't declare a convention: return address
// on the stack at offset 0 from SP, no extra pop.
func DefaultConvention(sp state.Operand, pointerSize int) Convention {
	return Convention{
		Name:         "default",
		StackPointer: sp,
		ReturnLocation: state.ReturnLocation{
			Kind:        state.ReturnOnStack,
			StackOffset: 0,
			PointerSize: pointerSize,
		},
		ExtraPop: 0,
	}
}
