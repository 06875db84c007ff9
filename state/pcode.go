// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package state

import (
	"encoding/binary"
)

// ByteOrder selects how Operand::Constant reads produce their byte
// sequence.
type ByteOrder int

const (
	// LittleEndian: the low-order byte of value becomes byte 0.
	LittleEndian ByteOrder = iota
	// BigEndian: the high-order byte of value becomes byte 0.
	BigEndian
)

// OperandKind discriminates the Operand ABI's four variants.
type OperandKind int

const (
	OperandAddress OperandKind = iota
	OperandRegister
	OperandVariable
	OperandConstant
)

// Operand addresses memory, a register, a temporary, or an immediate
// constant.
type Operand struct {
	Kind  OperandKind
	Value uint64 // Address: the memory address; Constant: the immediate.
	Off   int    // Register/Variable: offset into their flat space.
	Size  int    // Declared size in bytes.
}

// AddressOperand builds an Operand{Address, value, size}.
func AddressOperand(value uint64, size int) Operand {
	return Operand{Kind: OperandAddress, Value: value, Size: size}
}

// RegisterOperand builds an Operand{Register, offset, size}.
func RegisterOperand(off, size int) Operand {
	return Operand{Kind: OperandRegister, Off: off, Size: size}
}

// VariableOperand builds an Operand{Variable, offset, size}.
func VariableOperand(off, size int) Operand {
	return Operand{Kind: OperandVariable, Off: off, Size: size}
}

// ConstantOperand builds an Operand{Constant, value, size}.
func ConstantOperand(value uint64, size int) Operand {
	return Operand{Kind: OperandConstant, Value: value, Size: size}
}

// ConstantWritePanic is the value recovered by the Interpreter's dispatch
// boundary when code attempts to write an Operand::Constant. A constant
// is immutable, so this is a hard abort (programmer error), not a soft
// error return, and never mutates state: the panic happens before any
// write is attempted.
type ConstantWritePanic struct{ Operand Operand }

func (p ConstantWritePanic) String() string { return "attempted write to Operand::Constant" }

// ReturnLocationKind discriminates where a calling convention places the
// return address.
type ReturnLocationKind int

const (
	// ReturnInRegister: the return address lives in a register varnode.
	ReturnInRegister ReturnLocationKind = iota
	// ReturnOnStack: the return address lives at a stack-relative offset.
	ReturnOnStack
)

// ReturnLocation describes where a calling convention places the return
// address.
type ReturnLocation struct {
	Kind          ReturnLocationKind
	RegisterOff   int   // valid when Kind == ReturnInRegister
	RegisterSize  int   // valid when Kind == ReturnInRegister
	StackOffset   int64 // valid when Kind == ReturnOnStack, relative to SP
	PointerSize   int   // byte width of the return address value
}

// PCodeState is the composite state unifying memory, registers,
// temporaries, and the operand ABI, plus the calling-convention-derived
// program-counter/stack-pointer/return-location references.
type PCodeState struct {
	Memory    *PagedState
	Registers *RegisterState
	Unique    *UniqueState
	Order     ByteOrder

	PC             Operand
	SP             Operand
	ReturnLocation ReturnLocation
	// ExtraPop is the calling convention's extra stack cleanup in bytes,
	// applied to SP when a hook skips a call.
	ExtraPop int
}

// NewPCodeState assembles a composite state from its three layers and the
// calling-convention-derived operand references.
func NewPCodeState(mem *PagedState, regs *RegisterState, uniq *UniqueState, order ByteOrder, pc, sp Operand, ret ReturnLocation) *PCodeState {
	return &PCodeState{Memory: mem, Registers: regs, Unique: uniq, Order: order, PC: pc, SP: sp, ReturnLocation: ret}
}

// Close releases every owned layer's backing mapping.
func (s *PCodeState) Close() error {
	if err := s.Memory.Close(); err != nil {
		return err
	}
	if err := s.Registers.Close(); err != nil {
		return err
	}
	return s.Unique.Close()
}

// ReadOperand reads an Operand's value into out (len(out) must equal
// op.Size). Constant reads produce the byte-order-obedient, zero-extended
// encoding of Value; they never touch any backing store.
func (s *PCodeState) ReadOperand(op Operand, out []byte) error {
	switch op.Kind {
	case OperandAddress:
		return s.Memory.GetValues(op.Value, out)
	case OperandRegister:
		return s.Registers.Get(op.Off, out)
	case OperandVariable:
		return s.Unique.Get(op.Off, out)
	case OperandConstant:
		encodeConstant(op.Value, op.Size, s.Order, out)
		return nil
	default:
		return &IncompatibleOperandsError{Reason: "unknown operand kind"}
	}
}

// WriteOperand writes in (len(in) must equal op.Size) to an Operand's
// target. Writing Operand::Constant panics with ConstantWritePanic before
// any state is touched.
func (s *PCodeState) WriteOperand(op Operand, in []byte) error {
	switch op.Kind {
	case OperandAddress:
		return s.Memory.SetValues(op.Value, in)
	case OperandRegister:
		return s.Registers.Set(op.Off, in)
	case OperandVariable:
		return s.Unique.Set(op.Off, in)
	case OperandConstant:
		panic(ConstantWritePanic{Operand: op})
	default:
		return &IncompatibleOperandsError{Reason: "unknown operand kind"}
	}
}

// encodeConstant writes value's size-byte representation into out in the
// given byte order, zero-extended.
func encodeConstant(value uint64, size int, order ByteOrder, out []byte) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	switch order {
	case LittleEndian:
		for i := 0; i < size; i++ {
			if i < 8 {
				out[i] = buf[i]
			} else {
				out[i] = 0
			}
		}
	case BigEndian:
		// The high-order byte of value becomes byte 0: write the
		// size-byte big-endian encoding, truncating/zero-extending value
		// to that width first.
		for i := 0; i < size; i++ {
			shift := (size - 1 - i) * 8
			if shift < 64 {
				out[i] = byte(value >> uint(shift))
			} else {
				out[i] = 0
			}
		}
	}
}

// SetPC updates the program-counter operand's backing storage to addr.
func (s *PCodeState) SetPC(address uint64) error {
	buf := make([]byte, s.PC.Size)
	encodeConstant(address, s.PC.Size, s.Order, buf)
	return s.WriteOperand(s.PC, buf)
}

// Fork deep-copies all three sub-states, producing an independent
// PCodeState whose dirty sets start empty.
func (s *PCodeState) Fork() (*PCodeState, error) {
	mem, err := s.Memory.Fork()
	if err != nil {
		return nil, err
	}
	regs, err := s.Registers.Fork()
	if err != nil {
		mem.Close()
		return nil, err
	}
	uniq, err := s.Unique.Fork()
	if err != nil {
		mem.Close()
		regs.Close()
		return nil, err
	}
	return &PCodeState{
		Memory:         mem,
		Registers:      regs,
		Unique:         uniq,
		Order:          s.Order,
		PC:             s.PC,
		SP:             s.SP,
		ReturnLocation: s.ReturnLocation,
		ExtraPop:       s.ExtraPop,
	}, nil
}

// Restore rolls every sub-state's dirty blocks back to other's contents,
// restoring byte-for-byte equality across memory, registers, and
// temporaries.
func (s *PCodeState) Restore(other *PCodeState) {
	s.Memory.Restore(other.Memory)
	s.Registers.Restore(other.Registers)
	s.Unique.Restore(other.Unique)
}
