// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package addr

import "testing"

func TestAddressEquality(t *testing.T) {
	ram := NewSpace("ram", Memory, 1)
	reg := NewSpace("register", Register, 1)

	a := New(ram, 0x100)
	b := New(ram, 0x100)
	c := New(reg, 0x100)

	if !a.Equal(b) {
		t.Fatal("same (space, offset) must compare equal")
	}
	if a.Equal(c) {
		t.Fatal("equality must be by (space, offset), not offset alone")
	}
}

func TestAddressArithmeticPreservesSpace(t *testing.T) {
	ram := NewSpace("ram", Memory, 1)
	a := New(ram, 0x100).Add(0x20)
	if a.Offset() != 0x120 {
		t.Fatalf("Add: got=0x%x want=0x120", a.Offset())
	}
	if a.Space() != ram {
		t.Fatal("Add changed the address space")
	}

	b := a.AddSigned(-0x20)
	if b.Offset() != 0x100 {
		t.Fatalf("AddSigned: got=0x%x want=0x100", b.Offset())
	}
}

func TestAddOverflowWraps(t *testing.T) {
	ram := NewSpace("ram", Memory, 1)
	a := New(ram, ^uint64(0)).Add(1)
	if a.Offset() != 0 {
		t.Fatalf("overflow: got=0x%x want=0", a.Offset())
	}
}

func TestSpaceMask(t *testing.T) {
	for _, tc := range []struct {
		addrSize int
		in       uint64
		want     uint64
	}{
		{1, 0x1FF, 0xFF},
		{2, 0x1234567, 0x4567},
		{4, 0x11_2233_4455, 0x2233_4455},
		{8, ^uint64(0), ^uint64(0)},
	} {
		s := NewSpaceSized("ram", Memory, 1, tc.addrSize)
		if got := s.Mask(tc.in); got != tc.want {
			t.Fatalf("addrSize=%d: Mask(0x%x)=0x%x want=0x%x", tc.addrSize, tc.in, got, tc.want)
		}
	}
}

func TestSpaceDefaults(t *testing.T) {
	s := NewSpace("ram", Memory, 0)
	if s.WordSize() != 1 {
		t.Fatalf("word size floor: got=%d want=1", s.WordSize())
	}
	if s.AddrSize() != 8 {
		t.Fatalf("default addr size: got=%d want=8", s.AddrSize())
	}
}
