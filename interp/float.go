// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interp

import (
	"encoding/binary"
	"math"
	"math/big"

	"github.com/pkg/errors"

	"github.com/concrete-ir/ircore/state"
	"github.com/concrete-ir/ircore/step"
)

// Float operand handling. The format is derived from the operand's
// declared size: 4 bytes is IEEE-754 binary32, 8 bytes is
// binary64. Any other size fails with UnsupportedFloatFormat.

func floatFromBytes(b []byte, order state.ByteOrder) (float64, error) {
	le := make([]byte, len(b))
	copy(le, b)
	if order == state.BigEndian {
		reverse(le)
	}
	switch len(b) {
	case 4:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(le))), nil
	case 8:
		return math.Float64frombits(binary.LittleEndian.Uint64(le)), nil
	default:
		return 0, &UnsupportedFloatFormatError{Size: len(b)}
	}
}

func floatToBytes(v float64, size int, order state.ByteOrder) ([]byte, error) {
	out := make([]byte, size)
	switch size {
	case 4:
		binary.LittleEndian.PutUint32(out, math.Float32bits(float32(v)))
	case 8:
		binary.LittleEndian.PutUint64(out, math.Float64bits(v))
	default:
		return nil, &UnsupportedFloatFormatError{Size: size}
	}
	if order == state.BigEndian {
		reverse(out)
	}
	return out, nil
}

func (ip *Interpreter) execFloat(op step.Op) (Outcome, error) {
	lhsBytes, halt, err := ip.readOperand(op.In[0])
	if err != nil {
		return Outcome{}, err
	}
	if halt != nil {
		return *halt, nil
	}

	// Int2Float reinterprets its input as a signed integer, not a float.
	if op.Code == step.OpIntToFloat {
		v := bvFromBytes(lhsBytes, ip.State.Order, true)
		f, _ := new(big.Float).SetInt(v).Float64()
		out, ferr := floatToBytes(f, op.Out.Size, ip.State.Order)
		if ferr != nil {
			return Outcome{}, ferr
		}
		return ip.writeResult(op, out)
	}

	lhs, err := floatFromBytes(lhsBytes, ip.State.Order)
	if err != nil {
		return Outcome{}, err
	}

	switch op.Code {
	case step.OpFloatNeg:
		return ip.writeFloat(op, -lhs)
	case step.OpFloatAbs:
		return ip.writeFloat(op, math.Abs(lhs))
	case step.OpFloatSqrt:
		return ip.writeFloat(op, math.Sqrt(lhs))
	case step.OpFloatCeil:
		return ip.writeFloat(op, math.Ceil(lhs))
	case step.OpFloatFloor:
		return ip.writeFloat(op, math.Floor(lhs))
	case step.OpFloatRound:
		return ip.writeFloat(op, math.Round(lhs))
	case step.OpFloatIsNaN:
		return ip.writeResult(op, boolBytes(math.IsNaN(lhs), op.Out.Size))
	case step.OpFloatToFloat:
		// Re-encode at the destination's format; binary32 <-> binary64.
		out, ferr := floatToBytes(lhs, op.Out.Size, ip.State.Order)
		if ferr != nil {
			return Outcome{}, ferr
		}
		return ip.writeResult(op, out)
	case step.OpFloatTruncToInt:
		t := math.Trunc(lhs)
		i, _ := new(big.Float).SetFloat64(t).Int(nil)
		return ip.writeResult(op, bvToBytes(i, op.Out.Size, ip.State.Order))
	}

	rhsBytes, halt, err := ip.readOperand(op.In[1])
	if err != nil {
		return Outcome{}, err
	}
	if halt != nil {
		return *halt, nil
	}
	rhs, err := floatFromBytes(rhsBytes, ip.State.Order)
	if err != nil {
		return Outcome{}, err
	}

	switch op.Code {
	case step.OpFloatAdd:
		return ip.writeFloat(op, lhs+rhs)
	case step.OpFloatSub:
		return ip.writeFloat(op, lhs-rhs)
	case step.OpFloatMul:
		return ip.writeFloat(op, lhs*rhs)
	case step.OpFloatDiv:
		// IEEE division: x/0 is an infinity or NaN, never a fault.
		return ip.writeFloat(op, lhs/rhs)
	case step.OpFloatEqual:
		return ip.writeResult(op, boolBytes(lhs == rhs, op.Out.Size))
	case step.OpFloatNotEqual:
		return ip.writeResult(op, boolBytes(lhs != rhs, op.Out.Size))
	case step.OpFloatLess:
		return ip.writeResult(op, boolBytes(lhs < rhs, op.Out.Size))
	case step.OpFloatLessEqual:
		return ip.writeResult(op, boolBytes(lhs <= rhs, op.Out.Size))
	default:
		return Outcome{}, errors.Errorf("interp: unhandled float opcode %d", op.Code)
	}
}

// writeFloat encodes v at op.Out's format and stores it.
func (ip *Interpreter) writeFloat(op step.Op, v float64) (Outcome, error) {
	out, err := floatToBytes(v, op.Out.Size, ip.State.Order)
	if err != nil {
		return Outcome{}, err
	}
	return ip.writeResult(op, out)
}

// writeResult stores out to op.Out and folds the write's halt/err handling
// into a single Outcome.
func (ip *Interpreter) writeResult(op step.Op, out []byte) (Outcome, error) {
	if halt, err := ip.writeOperand(*op.Out, out); err != nil {
		return Outcome{}, err
	} else if halt != nil {
		return *halt, nil
	}
	return nextOutcome, nil
}
