// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package state

import (
	"testing"

	"github.com/concrete-ir/ircore/addr"
)

func buildPCode(t *testing.T, order ByteOrder) *PCodeState {
	t.Helper()
	memSpace := testSpace()
	flat, err := NewFlatState(memSpace, 0x1000, PermRW)
	if err != nil {
		t.Fatalf("NewFlatState: %v", err)
	}
	paged := NewPagedState(memSpace, flat)
	if err := paged.AddStatic("ram", 0, 0, 0x1000); err != nil {
		t.Fatalf("AddStatic: %v", err)
	}
	regs, err := NewRegisterState(addr.NewSpace("register", addr.Register, 1), 128)
	if err != nil {
		t.Fatalf("NewRegisterState: %v", err)
	}
	uniq, err := NewUniqueState(addr.NewSpace("unique", addr.Temporary, 1), 64)
	if err != nil {
		t.Fatalf("NewUniqueState: %v", err)
	}
	pc := RegisterOperand(120, 8)
	sp := RegisterOperand(112, 8)
	ret := ReturnLocation{Kind: ReturnInRegister, RegisterOff: 104, RegisterSize: 8, PointerSize: 8}
	return NewPCodeState(paged, regs, uniq, order, pc, sp, ret)
}

func TestConstantReadLittleEndian(t *testing.T) {
	s := buildPCode(t, LittleEndian)
	defer s.Close()

	out := make([]byte, 4)
	if err := s.ReadOperand(ConstantOperand(0x11223344, 4), out); err != nil {
		t.Fatalf("ReadOperand: %v", err)
	}
	want := []byte{0x44, 0x33, 0x22, 0x11}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("LE constant byte %d: got=0x%x want=0x%x", i, out[i], want[i])
		}
	}
}

func TestConstantReadBigEndian(t *testing.T) {
	s := buildPCode(t, BigEndian)
	defer s.Close()

	out := make([]byte, 4)
	if err := s.ReadOperand(ConstantOperand(0x11223344, 4), out); err != nil {
		t.Fatalf("ReadOperand: %v", err)
	}
	want := []byte{0x11, 0x22, 0x33, 0x44}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("BE constant byte %d: got=0x%x want=0x%x", i, out[i], want[i])
		}
	}
}

func TestConstantReadZeroExtends(t *testing.T) {
	s := buildPCode(t, LittleEndian)
	defer s.Close()

	out := make([]byte, 10)
	if err := s.ReadOperand(ConstantOperand(0xFF, 10), out); err != nil {
		t.Fatalf("ReadOperand: %v", err)
	}
	if out[0] != 0xFF {
		t.Fatalf("low byte: got=0x%x", out[0])
	}
	for i := 1; i < 10; i++ {
		if out[i] != 0 {
			t.Fatalf("byte %d not zero-extended: got=0x%x", i, out[i])
		}
	}
}

// A Constant write is a hard abort and must not mutate any state.
func TestConstantWritePanics(t *testing.T) {
	s := buildPCode(t, LittleEndian)
	defer s.Close()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected WriteOperand on a Constant to panic")
		}
		if _, ok := r.(ConstantWritePanic); !ok {
			t.Fatalf("panic value: got %T want ConstantWritePanic", r)
		}
	}()
	s.WriteOperand(ConstantOperand(7, 4), []byte{1, 2, 3, 4})
}

func TestOperandRoundTrips(t *testing.T) {
	s := buildPCode(t, LittleEndian)
	defer s.Close()

	for _, op := range []Operand{
		AddressOperand(0x40, 4),
		RegisterOperand(8, 4),
		VariableOperand(16, 4),
	} {
		in := []byte{1, 2, 3, 4}
		if err := s.WriteOperand(op, in); err != nil {
			t.Fatalf("WriteOperand kind=%d: %v", op.Kind, err)
		}
		out := make([]byte, 4)
		if err := s.ReadOperand(op, out); err != nil {
			t.Fatalf("ReadOperand kind=%d: %v", op.Kind, err)
		}
		for i := range in {
			if out[i] != in[i] {
				t.Fatalf("kind=%d byte %d: got=%d want=%d", op.Kind, i, out[i], in[i])
			}
		}
	}
}

// Fork then immediate restore is the identity; fork, arbitrary writes,
// then restore yields byte-for-byte equality across all three sub-states.
func TestPCodeForkRestore(t *testing.T) {
	s := buildPCode(t, LittleEndian)
	defer s.Close()

	if err := s.WriteOperand(AddressOperand(0x80, 2), []byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("WriteOperand: %v", err)
	}
	if err := s.WriteOperand(RegisterOperand(0, 2), []byte{0x01, 0x02}); err != nil {
		t.Fatalf("WriteOperand: %v", err)
	}
	if err := s.WriteOperand(VariableOperand(0, 2), []byte{0x03, 0x04}); err != nil {
		t.Fatalf("WriteOperand: %v", err)
	}

	child, err := s.Fork()
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	defer child.Close()

	if err := child.WriteOperand(AddressOperand(0x80, 2), []byte{0, 0}); err != nil {
		t.Fatalf("WriteOperand on child: %v", err)
	}
	if err := child.WriteOperand(RegisterOperand(0, 2), []byte{0xFF, 0xFF}); err != nil {
		t.Fatalf("WriteOperand on child: %v", err)
	}
	if err := child.WriteOperand(VariableOperand(0, 2), []byte{0xFF, 0xFF}); err != nil {
		t.Fatalf("WriteOperand on child: %v", err)
	}

	child.Restore(s)

	for _, tc := range []struct {
		op   Operand
		want []byte
	}{
		{AddressOperand(0x80, 2), []byte{0xAA, 0xBB}},
		{RegisterOperand(0, 2), []byte{0x01, 0x02}},
		{VariableOperand(0, 2), []byte{0x03, 0x04}},
	} {
		out := make([]byte, 2)
		if err := child.ReadOperand(tc.op, out); err != nil {
			t.Fatalf("ReadOperand kind=%d: %v", tc.op.Kind, err)
		}
		if out[0] != tc.want[0] || out[1] != tc.want[1] {
			t.Fatalf("kind=%d after restore: got=%v want=%v", tc.op.Kind, out, tc.want)
		}
	}
}

func TestSetPC(t *testing.T) {
	s := buildPCode(t, LittleEndian)
	defer s.Close()

	if err := s.SetPC(0xDEADBEEF); err != nil {
		t.Fatalf("SetPC: %v", err)
	}
	out := make([]byte, 8)
	if err := s.ReadOperand(s.PC, out); err != nil {
		t.Fatalf("ReadOperand: %v", err)
	}
	if out[0] != 0xEF || out[1] != 0xBE || out[2] != 0xAD || out[3] != 0xDE {
		t.Fatalf("PC bytes: got=%v", out)
	}
}
