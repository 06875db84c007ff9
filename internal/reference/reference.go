// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package reference is a toy lifter/loader pair used by the core's own
// tests and by cmd/ircore-run: a fixed-width, 16-register, three-address
// instruction encoding, not any real architecture.
package reference

import (
	"fmt"

	"github.com/concrete-ir/ircore/addr"
	"github.com/concrete-ir/ircore/lifter"
	"github.com/concrete-ir/ircore/state"
	"github.com/concrete-ir/ircore/step"
)

// Instruction width and register-file layout.
const (
	InstrWidth = 4
	RegSize    = 8
	NumRegs    = 16
	RegPC      = 15
	RegLink    = 13
	RegSP      = 14
)

// Opcode is this toy ISA's one-byte instruction tag.
type Opcode byte

const (
	OpHalt Opcode = iota
	OpCopy
	OpAdd
	OpSub
	OpMul
	OpCmpEq
	OpCmpLt
	OpLoadImm
	OpLoad
	OpStore
	OpJmp
	OpJnz
	OpCall
	OpRet
)

// Space constructs the register, unique, and memory address.Space handles
// this lifter's register/unique/memory layout uses.
func Space() (registers, unique, memory addr.Space) {
	registers = addr.NewSpace("register", addr.Register, 1)
	unique = addr.NewSpace("unique", addr.Temporary, 1)
	memory = addr.NewSpace("ram", addr.Memory, 1)
	return
}

// Lifter implements lifter.Lifter for the toy instruction encoding.
type Lifter struct {
	regSpace, uniqSpace, memSpace addr.Space
}

// New constructs a reference Lifter.
func New() *Lifter {
	regSpace, uniqSpace, memSpace := Space()
	return &Lifter{regSpace: regSpace, uniqSpace: uniqSpace, memSpace: memSpace}
}

func reg(i int) state.Operand { return state.RegisterOperand(i*RegSize, RegSize) }

func (l *Lifter) RegisterSpace() (addr.Space, int) { return l.regSpace, NumRegs * RegSize }
func (l *Lifter) UniqueSpace() (addr.Space, int)   { return l.uniqSpace, 32 }
func (l *Lifter) MemorySpace() addr.Space          { return l.memSpace }
func (l *Lifter) ProgramCounter() state.Operand    { return reg(RegPC) }
func (l *Lifter) Conventions() []string            { return []string{"default"} }

func (l *Lifter) ResolveOperand(descriptor any) (state.Operand, error) {
	if op, ok := descriptor.(state.Operand); ok {
		return op, nil
	}
	return state.Operand{}, fmt.Errorf("reference: cannot resolve operand descriptor %T", descriptor)
}

// Convention returns this ISA's one calling convention: return address in
// the link register, no extra pop.
func (l *Lifter) Convention() lifter.Convention {
	return lifter.Convention{
		Name:         "default",
		StackPointer: reg(RegSP),
		ReturnLocation: state.ReturnLocation{
			Kind:         state.ReturnInRegister,
			RegisterOff:  RegLink * RegSize,
			RegisterSize: RegSize,
			PointerSize:  RegSize,
		},
	}
}

func (l *Lifter) Disassemble(ctx any, address uint64, bytes []byte) (string, error) {
	if len(bytes) < InstrWidth {
		return "", fmt.Errorf("reference: need %d bytes to disassemble, got %d", InstrWidth, len(bytes))
	}
	op, a, b, c := Opcode(bytes[0]), bytes[1], bytes[2], bytes[3]
	switch op {
	case OpHalt:
		return "halt", nil
	case OpCopy:
		return fmt.Sprintf("copy   r%d, r%d", a, b), nil
	case OpAdd:
		return fmt.Sprintf("add    r%d, r%d, r%d", a, b, c), nil
	case OpSub:
		return fmt.Sprintf("sub    r%d, r%d, r%d", a, b, c), nil
	case OpMul:
		return fmt.Sprintf("mul    r%d, r%d, r%d", a, b, c), nil
	case OpCmpEq:
		return fmt.Sprintf("cmpeq  r%d, r%d, r%d", a, b, c), nil
	case OpCmpLt:
		return fmt.Sprintf("cmplt  r%d, r%d, r%d", a, b, c), nil
	case OpLoadImm:
		return fmt.Sprintf("loadi  r%d, #%d", a, int8(b)), nil
	case OpLoad:
		return fmt.Sprintf("load   r%d, [r%d]", a, b), nil
	case OpStore:
		return fmt.Sprintf("store  [r%d], r%d", a, b), nil
	case OpJmp:
		return fmt.Sprintf("jmp    %+d", int8(a)), nil
	case OpJnz:
		return fmt.Sprintf("jnz    r%d, %+d", a, int8(b)), nil
	case OpCall:
		return fmt.Sprintf("call   %+d", int8(a)), nil
	case OpRet:
		return "ret", nil
	default:
		return "", fmt.Errorf("reference: unknown opcode 0x%x", op)
	}
}

// Lift decodes one InstrWidth-byte instruction at address into a Block.
// Most opcodes lift to a single micro-op; call additionally emits a Copy
// that saves the link register first.
func (l *Lifter) Lift(ctx any, address uint64, raw []byte) (*step.Block, error) {
	if len(raw) < InstrWidth {
		return nil, fmt.Errorf("reference: need %d bytes to lift, got %d", InstrWidth, len(raw))
	}
	op, a, b, c := Opcode(raw[0]), raw[1], raw[2], raw[3]
	block := &step.Block{Address: address, Length: InstrWidth}

	rel := func(imm byte) uint64 { return uint64(int64(address) + int64(int8(imm))*InstrWidth) }

	switch op {
	case OpHalt:
		block.Ops = []step.Op{{Code: step.OpIntrinsic, IntrinsicName: "halt"}}
	case OpCopy:
		out := reg(int(a))
		block.Ops = []step.Op{{Code: step.OpCopy, In: [3]state.Operand{reg(int(b))}, NumIn: 1, Out: &out}}
	case OpAdd, OpSub, OpMul, OpCmpEq, OpCmpLt:
		out := reg(int(a))
		code := map[Opcode]step.OpCode{
			OpAdd: step.OpIntAdd, OpSub: step.OpIntSub, OpMul: step.OpIntMul,
			OpCmpEq: step.OpIntEqual, OpCmpLt: step.OpIntLess,
		}[op]
		block.Ops = []step.Op{{Code: code, In: [3]state.Operand{reg(int(b)), reg(int(c))}, NumIn: 2, Out: &out}}
	case OpLoadImm:
		out := reg(int(a))
		block.Ops = []step.Op{{Code: step.OpCopy, In: [3]state.Operand{state.ConstantOperand(uint64(int64(int8(b))), RegSize)}, NumIn: 1, Out: &out}}
	case OpLoad:
		out := reg(int(a))
		block.Ops = []step.Op{{Code: step.OpLoad, In: [3]state.Operand{reg(int(b))}, NumIn: 1, Out: &out}}
	case OpStore:
		block.Ops = []step.Op{{Code: step.OpStore, In: [3]state.Operand{reg(int(a)), reg(int(b))}, NumIn: 2}}
	case OpJmp:
		block.Ops = []step.Op{{Code: step.OpBranch, HasGlobal: true, GlobalTarget: rel(a)}}
	case OpJnz:
		block.Ops = []step.Op{{Code: step.OpCBranch, In: [3]state.Operand{{}, reg(int(a))}, NumIn: 2, HasGlobal: true, GlobalTarget: rel(b)}}
	case OpCall:
		link := reg(RegLink)
		fallthroughAddr := address + InstrWidth
		saveLink := step.Op{Code: step.OpCopy, In: [3]state.Operand{state.ConstantOperand(fallthroughAddr, RegSize)}, NumIn: 1, Out: &link}
		call := step.Op{Code: step.OpCall, In: [3]state.Operand{state.ConstantOperand(rel(a), RegSize)}, NumIn: 1}
		block.Ops = []step.Op{saveLink, call}
	case OpRet:
		block.Ops = []step.Op{{Code: step.OpReturn}}
	default:
		return nil, fmt.Errorf("reference: unknown opcode 0x%x at 0x%x", op, address)
	}
	return block, nil
}

// Loader implements lifter.Loader: it treats path's entire contents as one
// Static segment of raw toy-ISA bytes starting at address 0.
type Loader struct{}

func (Loader) Load(path string, langDB string) ([]lifter.SegmentInfo, addr.Space, error) {
	bytes, err := readFile(path)
	if err != nil {
		return nil, addr.Space{}, err
	}
	_, _, mem := Space()
	return []lifter.SegmentInfo{{Name: "text", Start: 0, Bytes: bytes}}, mem, nil
}
