// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package step implements StepState: the lifted IR for one architectural
// instruction plus a cursor, and the Local/Global branch resolution
// rules.
package step

import "github.com/concrete-ir/ircore/state"

// OpCode discriminates the micro-op dispatch table the Interpreter
// resolves statically.
type OpCode int

const (
	OpCopy OpCode = iota
	OpLoad
	OpStore
	OpBranch
	OpCBranch
	OpIBranch
	OpICall
	OpCall
	OpReturn
	OpIntrinsic
	OpSubpiece
	OpPopCount
	OpIntAdd
	OpIntSub
	OpIntMul
	OpIntDiv
	OpIntSDiv
	OpIntRem
	OpIntSRem
	OpIntAnd
	OpIntOr
	OpIntXor
	OpIntShl
	OpIntShr
	OpIntSar
	OpIntEqual
	OpIntNotEqual
	OpIntLess
	OpIntSLess
	OpIntLessEqual
	OpIntSLessEqual
	OpIntNegate
	OpIntNot
	OpBoolAnd
	OpBoolOr
	OpBoolXor
	OpBoolNegate
	OpIntSext
	OpIntZext
	OpIntCarry
	OpIntSCarry
	OpIntSBorrow
	OpFloatAdd
	OpFloatSub
	OpFloatMul
	OpFloatDiv
	OpFloatNeg
	OpFloatAbs
	OpFloatSqrt
	OpFloatEqual
	OpFloatNotEqual
	OpFloatLess
	OpFloatLessEqual
	OpFloatIsNaN
	OpFloatCeil
	OpFloatFloor
	OpFloatRound
	OpFloatTruncToInt
	OpIntToFloat
	OpFloatToFloat
)

// Op is one micro-operation: an opcode, 1-3 input operands, and an
// optional output operand. IntrinsicName/LocalDelta/GlobalTarget carry
// opcode-specific immediates
// that don't fit the Operand ABI (a name, a raw Local delta, and so on).
type Op struct {
	Code    OpCode
	Out     *state.Operand
	In      [3]state.Operand
	NumIn   int
	// IntrinsicName names the handler for OpIntrinsic.
	IntrinsicName string
	// LocalDelta/GlobalTarget carry OpBranch's destination when it is
	// known statically at lift time rather than read from an operand
	// (some lifters resolve direct branches this way); both are zero when
	// the destination is read from In[0] instead.
	LocalDelta   int64
	HasLocal     bool
	GlobalTarget uint64
	HasGlobal    bool
}

// Block is the lifted form of one architectural instruction: its address,
// byte length, and ordered micro-op sequence.
type Block struct {
	Address uint64
	Length  uint64
	Ops     []Op
}

// Fallthrough is the address immediately following this block in memory,
// the default successor when the block's cursor is exhausted.
func (b *Block) Fallthrough() uint64 { return b.Address + b.Length }

// State is a Block plus a position cursor: 0 <= position <= len(Ops).
// When position == len(Ops) the block is exhausted.
type State struct {
	Block    *Block
	position int
}

// NewState wraps block with a cursor at its first op.
func NewState(block *Block) *State {
	return &State{Block: block, position: 0}
}

// Position reports the cursor's current index.
func (s *State) Position() int { return s.position }

// Current yields the op at the cursor, or false when exhausted.
func (s *State) Current() (Op, bool) {
	if s.position >= len(s.Block.Ops) {
		return Op{}, false
	}
	return s.Block.Ops[s.position], true
}

// Address reports the block's architectural address.
func (s *State) Address() uint64 { return s.Block.Address }

// Fallthrough reports the block's fallthrough address.
func (s *State) Fallthrough() uint64 { return s.Block.Fallthrough() }

// Action is the outcome a micro-op's branch behavior requests.
type Action int

const (
	// Next advances the cursor by one op.
	Next Action = iota
	// Local performs an arithmetic offset within the block.
	Local
	// Global yields a new instruction address outside the block.
	Global
)

// BranchRequest names the Action and, for Local, the signed delta, or for
// Global, the target address.
type BranchRequest struct {
	Action Action
	Delta  int64  // valid when Action == Local
	Target uint64 // valid when Action == Global
}

// Outcome is the resolved result of applying a BranchRequest to a State:
// either the cursor moved within the block (Local) or a new instruction
// address was yielded (Global).
type Outcome struct {
	Action Action // Local or Global; Next never appears here (folded into Local)
	Target uint64 // valid when Action == Global
}

// Branch mutates the cursor (Next, Local) or returns a Global outcome
// without moving it. After local motion, if the cursor
// falls off the end, the outcome becomes Global(fallthrough()).
func (s *State) Branch(req BranchRequest) Outcome {
	switch req.Action {
	case Next:
		s.position++
	case Local:
		newPos := int64(s.position) + req.Delta
		if newPos < 0 {
			panic("step: Local branch delta underflows block start")
		}
		s.position = int(newPos)
	case Global:
		return Outcome{Action: Global, Target: req.Target}
	}

	if s.position >= len(s.Block.Ops) {
		return Outcome{Action: Global, Target: s.Block.Fallthrough()}
	}
	return Outcome{Action: Local}
}
