// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hooks

import "testing"

type tagged struct {
	Base
	tag string
}

func TestRegistryOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("a", &tagged{tag: "a"})
	r.Register("b", &tagged{tag: "b"})
	r.Register("c", &tagged{tag: "c"})

	var got []string
	for _, h := range r.All() {
		got = append(got, h.(*tagged).tag)
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("registration order violated: got=%v want=%v", got, want)
		}
	}
}

func TestRegistryReplaceKeepsPosition(t *testing.T) {
	r := NewRegistry()
	r.Register("a", &tagged{tag: "a"})
	r.Register("b", &tagged{tag: "b1"})
	r.Register("c", &tagged{tag: "c"})
	r.Register("b", &tagged{tag: "b2"})

	if r.Len() != 3 {
		t.Fatalf("re-registration must replace, not append: len=%d", r.Len())
	}
	if got := r.All()[1].(*tagged).tag; got != "b2" {
		t.Fatalf("replaced hook not at its original position: got=%q", got)
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register("probe", &tagged{tag: "probe"})

	h, ok := r.Lookup("probe")
	if !ok {
		t.Fatal("Lookup failed for a registered name")
	}
	if _, ok := h.(*tagged); !ok {
		t.Fatalf("downcast failed: got %T", h)
	}
	if _, ok := r.Lookup("absent"); ok {
		t.Fatal("Lookup succeeded for an unregistered name")
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register("a", &tagged{tag: "a"})
	r.Register("b", &tagged{tag: "b"})
	r.Register("c", &tagged{tag: "c"})
	r.Unregister("b")

	if r.Len() != 2 {
		t.Fatalf("len after unregister: got=%d want=2", r.Len())
	}
	if _, ok := r.Lookup("b"); ok {
		t.Fatal("unregistered hook still resolvable")
	}
	// The survivors keep their relative order and remain addressable.
	if got := r.All()[1].(*tagged).tag; got != "c" {
		t.Fatalf("order after unregister: got=%q want=c", got)
	}
	h, ok := r.Lookup("c")
	if !ok || h.(*tagged).tag != "c" {
		t.Fatal("index map stale after unregister")
	}
}

func TestRegistryCloneIndependent(t *testing.T) {
	r := NewRegistry()
	r.Register("a", &tagged{tag: "a"})

	c := r.Clone()
	c.Register("b", &tagged{tag: "b"})
	c.Unregister("a")

	if r.Len() != 1 {
		t.Fatalf("clone mutation leaked into parent: len=%d", r.Len())
	}
	if _, ok := r.Lookup("a"); !ok {
		t.Fatal("parent lost a hook after clone mutation")
	}
}
