// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interp

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/concrete-ir/ircore/state"
	"github.com/concrete-ir/ircore/step"
)

func writeFloat64Reg(t *testing.T, ip *Interpreter, off int, v float64) state.Operand {
	t.Helper()
	op := state.RegisterOperand(off, 8)
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	if err := ip.State.WriteOperand(op, b); err != nil {
		t.Fatalf("WriteOperand: %v", err)
	}
	return op
}

func readFloat64Reg(t *testing.T, ip *Interpreter, off int) float64 {
	t.Helper()
	b := readReg(t, ip, off, 8)
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func TestFloatBinaryOps(t *testing.T) {
	ip := newTestInterp(t)
	lhs := writeFloat64Reg(t, ip, 0, 6.5)
	rhs := writeFloat64Reg(t, ip, 8, 2.0)
	out := state.RegisterOperand(16, 8)

	for _, tc := range []struct {
		code step.OpCode
		want float64
	}{
		{step.OpFloatAdd, 8.5},
		{step.OpFloatSub, 4.5},
		{step.OpFloatMul, 13.0},
		{step.OpFloatDiv, 3.25},
	} {
		runOp(t, ip, step.Op{Code: tc.code, In: [3]state.Operand{lhs, rhs}, NumIn: 2, Out: &out})
		if got := readFloat64Reg(t, ip, 16); got != tc.want {
			t.Fatalf("op %d: got=%v want=%v", tc.code, got, tc.want)
		}
	}
}

// IEEE division by zero is an infinity, never DivisionByZero.
func TestFloatDivByZeroIsInf(t *testing.T) {
	ip := newTestInterp(t)
	lhs := writeFloat64Reg(t, ip, 0, 1.0)
	rhs := writeFloat64Reg(t, ip, 8, 0.0)
	out := state.RegisterOperand(16, 8)
	runOp(t, ip, step.Op{Code: step.OpFloatDiv, In: [3]state.Operand{lhs, rhs}, NumIn: 2, Out: &out})
	if got := readFloat64Reg(t, ip, 16); !math.IsInf(got, 1) {
		t.Fatalf("1.0/0.0: got=%v want +Inf", got)
	}
}

func TestFloatComparisons(t *testing.T) {
	ip := newTestInterp(t)
	lhs := writeFloat64Reg(t, ip, 0, 1.5)
	rhs := writeFloat64Reg(t, ip, 8, 2.5)
	out := state.RegisterOperand(16, 1)

	for _, tc := range []struct {
		code step.OpCode
		want byte
	}{
		{step.OpFloatLess, 1},
		{step.OpFloatLessEqual, 1},
		{step.OpFloatEqual, 0},
		{step.OpFloatNotEqual, 1},
	} {
		runOp(t, ip, step.Op{Code: tc.code, In: [3]state.Operand{lhs, rhs}, NumIn: 2, Out: &out})
		if got := readReg(t, ip, 16, 1); got[0] != tc.want {
			t.Fatalf("op %d: got=%d want=%d", tc.code, got[0], tc.want)
		}
	}
}

func TestFloatNaN(t *testing.T) {
	ip := newTestInterp(t)
	src := writeFloat64Reg(t, ip, 0, math.NaN())
	out := state.RegisterOperand(16, 1)
	runOp(t, ip, step.Op{Code: step.OpFloatIsNaN, In: [3]state.Operand{src}, NumIn: 1, Out: &out})
	if got := readReg(t, ip, 16, 1); got[0] != 1 {
		t.Fatalf("isnan(NaN): got=%d want=1", got[0])
	}

	src = writeFloat64Reg(t, ip, 0, 3.0)
	runOp(t, ip, step.Op{Code: step.OpFloatIsNaN, In: [3]state.Operand{src}, NumIn: 1, Out: &out})
	if got := readReg(t, ip, 16, 1); got[0] != 0 {
		t.Fatalf("isnan(3.0): got=%d want=0", got[0])
	}
}

func TestFloatUnaryOps(t *testing.T) {
	ip := newTestInterp(t)
	out := state.RegisterOperand(16, 8)
	for _, tc := range []struct {
		code step.OpCode
		in   float64
		want float64
	}{
		{step.OpFloatNeg, 2.5, -2.5},
		{step.OpFloatAbs, -7.0, 7.0},
		{step.OpFloatSqrt, 9.0, 3.0},
		{step.OpFloatCeil, 1.2, 2.0},
		{step.OpFloatFloor, 1.8, 1.0},
		{step.OpFloatRound, 2.5, 3.0},
	} {
		src := writeFloat64Reg(t, ip, 0, tc.in)
		runOp(t, ip, step.Op{Code: tc.code, In: [3]state.Operand{src}, NumIn: 1, Out: &out})
		if got := readFloat64Reg(t, ip, 16); got != tc.want {
			t.Fatalf("op %d(%v): got=%v want=%v", tc.code, tc.in, got, tc.want)
		}
	}
}

func TestIntToFloatAndBack(t *testing.T) {
	ip := newTestInterp(t)
	fOut := state.RegisterOperand(16, 8)

	// -3 as a 4-byte signed integer converts to -3.0.
	src := state.RegisterOperand(0, 4)
	if err := ip.State.WriteOperand(src, []byte{0xFD, 0xFF, 0xFF, 0xFF}); err != nil {
		t.Fatalf("WriteOperand: %v", err)
	}
	runOp(t, ip, step.Op{Code: step.OpIntToFloat, In: [3]state.Operand{src}, NumIn: 1, Out: &fOut})
	if got := readFloat64Reg(t, ip, 16); got != -3.0 {
		t.Fatalf("int2float(-3): got=%v", got)
	}

	iOut := state.RegisterOperand(24, 4)
	fSrc := writeFloat64Reg(t, ip, 32, -3.75)
	runOp(t, ip, step.Op{Code: step.OpFloatTruncToInt, In: [3]state.Operand{fSrc}, NumIn: 1, Out: &iOut})
	got := readReg(t, ip, 24, 4)
	if got[0] != 0xFD || got[1] != 0xFF {
		t.Fatalf("trunc(-3.75): got=%v want -3", got)
	}
}

func TestFloatToFloatWidens(t *testing.T) {
	ip := newTestInterp(t)
	src := state.RegisterOperand(0, 4)
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(1.5))
	if err := ip.State.WriteOperand(src, b); err != nil {
		t.Fatalf("WriteOperand: %v", err)
	}
	out := state.RegisterOperand(16, 8)
	runOp(t, ip, step.Op{Code: step.OpFloatToFloat, In: [3]state.Operand{src}, NumIn: 1, Out: &out})
	if got := readFloat64Reg(t, ip, 16); got != 1.5 {
		t.Fatalf("float2float(1.5f): got=%v", got)
	}
}

func TestUnsupportedFloatFormat(t *testing.T) {
	ip := newTestInterp(t)
	src := state.RegisterOperand(0, 2)
	out := state.RegisterOperand(16, 2)
	block := &step.Block{Address: 0, Length: 4, Ops: []step.Op{{
		Code: step.OpFloatNeg, In: [3]state.Operand{src}, NumIn: 1, Out: &out,
	}}}
	_, err := ip.Step(step.NewState(block))
	if _, ok := err.(*UnsupportedFloatFormatError); !ok {
		t.Fatalf("2-byte float: got %T (%v), want *UnsupportedFloatFormatError", err, err)
	}
}
