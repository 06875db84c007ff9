// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package irvalidate statically walks a lifted Block and checks the
// invariants the Interpreter otherwise only discovers at dispatch time:
// operand sizes within the configured ceiling, pointer-operand widths
// legal, and no op writing to Operand::Constant. Each check walks the
// ops once and reports the first violation.
package irvalidate

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/concrete-ir/ircore/state"
	"github.com/concrete-ir/ircore/step"
)

var logger = logrus.WithField("component", "irvalidate")

// ConstantWriteError reports a statically-detectable write to
// Operand::Constant, the same fault the Interpreter raises as a panic at
// dispatch time, caught here before execution begins.
type ConstantWriteError struct {
	BlockAddress uint64
	OpIndex      int
}

func (e *ConstantWriteError) Error() string {
	return fmt.Sprintf("block 0x%x op %d: write to Operand::Constant", e.BlockAddress, e.OpIndex)
}

// OversizeOperandError reports an operand wider than the configured
// ceiling.
type OversizeOperandError struct {
	BlockAddress uint64
	OpIndex      int
	Size         int
	Ceiling      int
}

func (e *OversizeOperandError) Error() string {
	return fmt.Sprintf("block 0x%x op %d: operand size %d exceeds ceiling %d", e.BlockAddress, e.OpIndex, e.Size, e.Ceiling)
}

// IllegalPointerSizeError reports a pointer-bearing operand (Load/Store's
// address input, IBranch/ICall's target) whose size isn't one of
// the legal pointer widths.
type IllegalPointerSizeError struct {
	BlockAddress uint64
	OpIndex      int
	Size         int
}

func (e *IllegalPointerSizeError) Error() string {
	return fmt.Sprintf("block 0x%x op %d: illegal pointer operand size %d (want 1, 2, 4, or 8)", e.BlockAddress, e.OpIndex, e.Size)
}

func legalPointerSize(n int) bool {
	return n == 1 || n == 2 || n == 4 || n == 8
}

// Block walks every op in b and returns the first violation found, or nil
// if the block is well-formed for a ceiling-byte operand limit.
func Block(b *step.Block, ceiling int) error {
	for i, op := range b.Ops {
		if op.Out != nil {
			if op.Out.Kind == state.OperandConstant {
				return &ConstantWriteError{BlockAddress: b.Address, OpIndex: i}
			}
			if op.Out.Size > ceiling {
				return &OversizeOperandError{BlockAddress: b.Address, OpIndex: i, Size: op.Out.Size, Ceiling: ceiling}
			}
		}
		for n := 0; n < op.NumIn; n++ {
			if op.In[n].Size > ceiling {
				return &OversizeOperandError{BlockAddress: b.Address, OpIndex: i, Size: op.In[n].Size, Ceiling: ceiling}
			}
		}
		if err := checkPointerOperand(b.Address, i, op); err != nil {
			return err
		}
		if err := checkFloatOperand(b.Address, i, op); err != nil {
			return err
		}
	}
	logger.WithField("address", b.Address).Debug("block validated")
	return nil
}

func checkPointerOperand(blockAddr uint64, i int, op step.Op) error {
	switch op.Code {
	case step.OpLoad, step.OpStore, step.OpIBranch, step.OpICall:
		if !legalPointerSize(op.In[0].Size) {
			return &IllegalPointerSizeError{BlockAddress: blockAddr, OpIndex: i, Size: op.In[0].Size}
		}
	}
	return nil
}

// IllegalFloatFormatError reports a float op whose operand size names no
// known float format (only 4- and 8-byte IEEE formats exist).
type IllegalFloatFormatError struct {
	BlockAddress uint64
	OpIndex      int
	Size         int
}

func (e *IllegalFloatFormatError) Error() string {
	return fmt.Sprintf("block 0x%x op %d: no float format for operand size %d", e.BlockAddress, e.OpIndex, e.Size)
}

func legalFloatSize(n int) bool { return n == 4 || n == 8 }

func checkFloatOperand(blockAddr uint64, i int, op step.Op) error {
	switch op.Code {
	case step.OpFloatAdd, step.OpFloatSub, step.OpFloatMul, step.OpFloatDiv,
		step.OpFloatEqual, step.OpFloatNotEqual, step.OpFloatLess, step.OpFloatLessEqual:
		for n := 0; n < op.NumIn; n++ {
			if !legalFloatSize(op.In[n].Size) {
				return &IllegalFloatFormatError{BlockAddress: blockAddr, OpIndex: i, Size: op.In[n].Size}
			}
		}
	case step.OpFloatNeg, step.OpFloatAbs, step.OpFloatSqrt, step.OpFloatIsNaN,
		step.OpFloatCeil, step.OpFloatFloor, step.OpFloatRound, step.OpFloatTruncToInt:
		if !legalFloatSize(op.In[0].Size) {
			return &IllegalFloatFormatError{BlockAddress: blockAddr, OpIndex: i, Size: op.In[0].Size}
		}
	case step.OpIntToFloat, step.OpFloatToFloat:
		if op.Out != nil && !legalFloatSize(op.Out.Size) {
			return &IllegalFloatFormatError{BlockAddress: blockAddr, OpIndex: i, Size: op.Out.Size}
		}
	}
	return nil
}
