// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package machine

import (
	"testing"

	"github.com/concrete-ir/ircore/addr"
	"github.com/concrete-ir/ircore/interp"
	"github.com/concrete-ir/ircore/state"
	"github.com/concrete-ir/ircore/step"
)

// mapLifter serves pre-built blocks keyed by address.
type mapLifter struct{ blocks map[uint64]*step.Block }

func (l *mapLifter) Lift(_ any, address uint64, _ []byte) (*step.Block, error) {
	b, ok := l.blocks[address]
	if !ok {
		return nil, &interp.LiftError{Address: address}
	}
	return b, nil
}
func (l *mapLifter) RegisterSpace() (addr.Space, int) {
	return addr.NewSpace("register", addr.Register, 1), 128
}
func (l *mapLifter) UniqueSpace() (addr.Space, int) {
	return addr.NewSpace("unique", addr.Temporary, 1), 64
}
func (l *mapLifter) MemorySpace() addr.Space { return addr.NewSpace("ram", addr.Memory, 1) }
func (l *mapLifter) ProgramCounter() state.Operand {
	return state.RegisterOperand(120, 8)
}
func (l *mapLifter) Conventions() []string                        { return []string{"default"} }
func (l *mapLifter) ResolveOperand(d any) (state.Operand, error)  { return d.(state.Operand), nil }
func (l *mapLifter) Disassemble(any, uint64, []byte) (string, error) { return "", nil }

// jumpTo builds a one-op block at address that branches to target.
func jumpTo(address, target uint64) *step.Block {
	return &step.Block{Address: address, Length: 4, Ops: []step.Op{
		{Code: step.OpBranch, HasGlobal: true, GlobalTarget: target},
	}}
}

// fallthroughBlock builds a block at address whose single op advances.
func fallthroughBlock(address uint64) *step.Block {
	out := state.RegisterOperand(0, 4)
	return &step.Block{Address: address, Length: 4, Ops: []step.Op{
		{Code: step.OpCopy, In: [3]state.Operand{state.ConstantOperand(1, 4)}, NumIn: 1, Out: &out},
	}}
}

func newTestMachine(t *testing.T, blocks map[uint64]*step.Block) *Machine {
	t.Helper()
	memSpace := addr.NewSpace("ram", addr.Memory, 1)
	flat, err := state.NewFlatState(memSpace, 0x1000, state.PermRW)
	if err != nil {
		t.Fatalf("NewFlatState: %v", err)
	}
	paged := state.NewPagedState(memSpace, flat)
	if err := paged.AddStatic("ram", 0, 0, 0x1000); err != nil {
		t.Fatalf("AddStatic: %v", err)
	}
	regs, err := state.NewRegisterState(addr.NewSpace("register", addr.Register, 1), 128)
	if err != nil {
		t.Fatalf("NewRegisterState: %v", err)
	}
	uniq, err := state.NewUniqueState(addr.NewSpace("unique", addr.Temporary, 1), 64)
	if err != nil {
		t.Fatalf("NewUniqueState: %v", err)
	}
	st := state.NewPCodeState(paged, regs, uniq, state.LittleEndian,
		state.RegisterOperand(120, 8), state.RegisterOperand(112, 8),
		state.ReturnLocation{Kind: state.ReturnInRegister, RegisterOff: 104, RegisterSize: 8, PointerSize: 8})
	t.Cleanup(func() { st.Close() })
	return New(interp.New(&mapLifter{blocks: blocks}, nil, st, 16))
}

func TestStepFallthrough(t *testing.T) {
	m := newTestMachine(t, map[uint64]*step.Block{0: fallthroughBlock(0)})
	res, err := m.Step(Location{Address: 0})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Halted || res.Next != 4 {
		t.Fatalf("fallthrough: halted=%v next=0x%x want next=0x4", res.Halted, res.Next)
	}
}

func TestStepGlobalBranch(t *testing.T) {
	m := newTestMachine(t, map[uint64]*step.Block{0: jumpTo(0, 0x40)})
	res, err := m.Step(Location{Address: 0})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Next != 0x40 {
		t.Fatalf("branch: next=0x%x want 0x40", res.Next)
	}
}

func TestRunUntilAddress(t *testing.T) {
	m := newTestMachine(t, map[uint64]*step.Block{
		0: fallthroughBlock(0),
		4: fallthroughBlock(4),
		8: fallthroughBlock(8),
	})
	res, err := m.RunUntil(Location{Address: 0}, &AddressBound{Target: 8})
	if err != nil {
		t.Fatalf("RunUntil: %v", err)
	}
	if !res.Reached || res.Next != 8 {
		t.Fatalf("address bound: reached=%v next=0x%x", res.Reached, res.Next)
	}
}

func TestRunUntilSteps(t *testing.T) {
	// An infinite self-loop: only the step bound can stop it.
	m := newTestMachine(t, map[uint64]*step.Block{0: jumpTo(0, 0)})
	res, err := m.RunUntil(Location{Address: 0}, &StepsBound{Remaining: 5})
	if err != nil {
		t.Fatalf("RunUntil: %v", err)
	}
	if !res.Reached {
		t.Fatal("step bound never fired")
	}
}

func TestRunUntilReachCount(t *testing.T) {
	// 0 -> 4 -> 0 -> 4 ... ; require address 0 to be visited three times.
	m := newTestMachine(t, map[uint64]*step.Block{
		0: jumpTo(0, 4),
		4: jumpTo(4, 0),
	})
	bound := &AddressReachCountOrStepsBound{Target: 0, ReachRemaining: 3, StepRemaining: 100}
	res, err := m.RunUntil(Location{Address: 0}, bound)
	if err != nil {
		t.Fatalf("RunUntil: %v", err)
	}
	if !res.Reached {
		t.Fatal("reach-count bound never fired")
	}
	if bound.StepRemaining >= 100 {
		t.Fatal("deplete never decremented the step count")
	}
}

func TestRunUntilAnyOf(t *testing.T) {
	m := newTestMachine(t, map[uint64]*step.Block{0: jumpTo(0, 0)})
	bound := BoundAnyOf{Bounds: []Bound{
		&AddressBound{Target: 0x999},
		&StepsBound{Remaining: 3},
	}}
	res, err := m.RunUntil(Location{Address: 0}, bound)
	if err != nil {
		t.Fatalf("RunUntil: %v", err)
	}
	if !res.Reached {
		t.Fatal("composite bound never fired")
	}
}

func TestRunUntilLiftErrorPropagates(t *testing.T) {
	m := newTestMachine(t, map[uint64]*step.Block{0: fallthroughBlock(0)})
	_, err := m.RunUntil(Location{Address: 0}, UnboundedBound{})
	if err == nil {
		t.Fatal("expected the lift of the unmapped follow-on address to fail")
	}
}

// ignore_errors converts an op-level failure into Next: the block's
// remaining ops still run and the machine reaches the fallthrough.
func TestIgnoreErrors(t *testing.T) {
	out := state.RegisterOperand(0, 4)
	bad := step.Op{Code: step.OpIntDiv,
		In:    [3]state.Operand{state.ConstantOperand(1, 4), state.ConstantOperand(0, 4)},
		NumIn: 2, Out: &out}
	good := step.Op{Code: step.OpCopy,
		In: [3]state.Operand{state.ConstantOperand(0x77, 4)}, NumIn: 1, Out: &out}
	block := &step.Block{Address: 0, Length: 4, Ops: []step.Op{bad, good}}

	m := newTestMachine(t, map[uint64]*step.Block{0: block})
	m.IgnoreErrors = true

	res, err := m.Step(Location{Address: 0})
	if err != nil {
		t.Fatalf("Step with IgnoreErrors: %v", err)
	}
	if res.Next != 4 {
		t.Fatalf("next: got=0x%x want 0x4", res.Next)
	}
	got := make([]byte, 4)
	if err := m.Interp.State.ReadOperand(out, got); err != nil {
		t.Fatalf("ReadOperand: %v", err)
	}
	if got[0] != 0x77 {
		t.Fatalf("op after the ignored failure did not run: got=%v", got)
	}
}

func TestStepResumesMidBlock(t *testing.T) {
	r0 := state.RegisterOperand(0, 4)
	r1 := state.RegisterOperand(8, 4)
	first := step.Op{Code: step.OpCopy,
		In: [3]state.Operand{state.ConstantOperand(0x11, 4)}, NumIn: 1, Out: &r0}
	second := step.Op{Code: step.OpCopy,
		In: [3]state.Operand{state.ConstantOperand(0x22, 4)}, NumIn: 1, Out: &r1}
	block := &step.Block{Address: 0, Length: 4, Ops: []step.Op{first, second}}

	m := newTestMachine(t, map[uint64]*step.Block{0: block})
	res, err := m.Step(Location{Address: 0, Position: 1})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Next != 4 {
		t.Fatalf("next: got=0x%x", res.Next)
	}
	got := make([]byte, 4)
	if err := m.Interp.State.ReadOperand(r0, got); err != nil {
		t.Fatalf("ReadOperand: %v", err)
	}
	if got[0] != 0 {
		t.Fatalf("mid-block resume ran the skipped op: r0=0x%x", got[0])
	}
	if err := m.Interp.State.ReadOperand(r1, got); err != nil {
		t.Fatalf("ReadOperand: %v", err)
	}
	if got[0] != 0x22 {
		t.Fatalf("resumed op did not run: r1=0x%x", got[0])
	}
}
