// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package walkers

import (
	"testing"

	"github.com/concrete-ir/ircore/hooks"
	"github.com/concrete-ir/ircore/state"
	"github.com/concrete-ir/ircore/step"
)

func TestPathWalkerRecordsInOrder(t *testing.T) {
	w := NewPathWalker()
	for _, a := range []uint64{0x100, 0x104, 0x100} {
		w.ArchitecturalStep(&step.Block{Address: a, Length: 4})
	}
	want := []uint64{0x100, 0x104, 0x100}
	if len(w.Path) != len(want) {
		t.Fatalf("path length: got=%d want=%d", len(w.Path), len(want))
	}
	for i := range want {
		if w.Path[i] != want[i] {
			t.Fatalf("path: got=%v want=%v", w.Path, want)
		}
	}
	w.Reset()
	if len(w.Path) != 0 {
		t.Fatal("Reset did not discard the path")
	}
}

func TestBranchWalkerFlipsAgainstDirection(t *testing.T) {
	w := NewBranchWalker(true)

	if out := w.CBranch(0x100, false); out.Action != hooks.Flip {
		t.Fatalf("false cond under take-true: action=%d want Flip", out.Action)
	}
	if out := w.CBranch(0x100, true); out.Action != hooks.Pass {
		t.Fatalf("true cond under take-true: action=%d want Pass", out.Action)
	}
	if w.Flips != 1 {
		t.Fatalf("flip count: got=%d want=1", w.Flips)
	}
}

func TestRandomWalkerDeterministicPerSeed(t *testing.T) {
	a := NewRandomWalker(42, 0.5)
	b := NewRandomWalker(42, 0.5)
	for i := 0; i < 64; i++ {
		if a.CBranch(0, false).Action != b.CBranch(0, false).Action {
			t.Fatal("same seed produced diverging decisions")
		}
	}
}

func TestRandomWalkerExtremes(t *testing.T) {
	never := NewRandomWalker(1, 0.0)
	always := NewRandomWalker(1, 1.0)
	for i := 0; i < 16; i++ {
		if never.CBranch(0, true).Action != hooks.Pass {
			t.Fatal("0.0 flip chance flipped")
		}
		if always.CBranch(0, true).Action != hooks.Flip {
			t.Fatal("1.0 flip chance passed")
		}
	}
}

func TestWatchpointOverlap(t *testing.T) {
	w := NewWatchpoint(0x100, 16, WatchWrite)

	if out := w.MemoryWrite(nil, 0x90, []byte{1}); out.Action != hooks.Pass {
		t.Fatal("non-overlapping write fired")
	}
	// A write straddling the range start counts.
	if out := w.MemoryWrite(nil, 0xF8, make([]byte, 16)); out.Action != hooks.Halt {
		t.Fatal("straddling write did not halt")
	}
	if len(w.Hits) != 1 {
		t.Fatalf("hits: got=%d want=1", len(w.Hits))
	}
}

func TestWatchpointDirectionFilter(t *testing.T) {
	w := NewWatchpoint(0x100, 16, WatchRead)
	if out := w.MemoryWrite(nil, 0x100, []byte{1}); out.Action != hooks.Pass {
		t.Fatal("read-only watchpoint fired on a write")
	}
}

func TestWatchpointCollectsWithoutHalting(t *testing.T) {
	w := NewWatchpoint(0x100, 16, WatchWrite)
	w.HaltOnHit = false
	for i := 0; i < 3; i++ {
		if out := w.MemoryWrite(nil, 0x104, []byte{byte(i)}); out.Action != hooks.Pass {
			t.Fatal("collecting watchpoint halted")
		}
	}
	if len(w.Hits) != 3 {
		t.Fatalf("hits: got=%d want=3", len(w.Hits))
	}
}

func TestAccessLoggerRecordsWrites(t *testing.T) {
	log := state.NewAccessLog(0)
	w := NewAccessLogger(log)
	w.MemoryWrite(nil, 0x40, []byte{0xAA, 0xBB})

	entries := log.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries: got=%d want=1", len(entries))
	}
	rec := entries[0]
	if rec.Kind != state.LogWrite || rec.Offset != 0x40 || rec.Size != 2 {
		t.Fatalf("record: %+v", rec)
	}
	if rec.Value[0] != 0xAA {
		t.Fatalf("record value: %v", rec.Value)
	}
}

func TestAccessLogEviction(t *testing.T) {
	log := state.NewAccessLog(2)
	for i := 0; i < 5; i++ {
		log.Record(state.AccessRecord{Offset: uint64(i)})
	}
	entries := log.Entries()
	if len(entries) != 2 {
		t.Fatalf("capped entries: got=%d want=2", len(entries))
	}
	if entries[0].Offset != 3 || entries[1].Offset != 4 {
		t.Fatalf("eviction kept the wrong entries: %+v", entries)
	}
}
