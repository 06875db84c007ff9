// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package walkers

import (
	"github.com/concrete-ir/ircore/hooks"
	"github.com/concrete-ir/ircore/state"
)

// WatchpointSource names which access direction(s) a Watchpoint should
// fire for.
type WatchpointSource int

const (
	WatchRead WatchpointSource = 1 << iota
	WatchWrite
)

// Watchpoint halts the Machine whenever a memory access overlaps
// [Start, Start+Length) in the direction(s) named by Source and HaltOnHit
// is set. Hits records every overlapping access observed; with HaltOnHit
// false, hits are collected without stopping.
type Watchpoint struct {
	hooks.Base
	Start     uint64
	Length    int
	Source    WatchpointSource
	HaltOnHit bool

	Hits []state.AccessRecord
}

// NewWatchpoint constructs a Watchpoint over [start, start+length),
// firing for accesses matching source, halting on the first hit.
func NewWatchpoint(start uint64, length int, source WatchpointSource) *Watchpoint {
	return &Watchpoint{Start: start, Length: length, Source: source, HaltOnHit: true}
}

func (w *Watchpoint) overlaps(a uint64, n int) bool {
	return a < w.Start+uint64(w.Length) && a+uint64(n) > w.Start
}

func (w *Watchpoint) MemoryRead(mem *state.PagedState, a uint64, n int) hooks.Outcome {
	if w.Source&WatchRead == 0 || !w.overlaps(a, n) {
		return hooks.PassOutcome
	}
	buf := make([]byte, n)
	_ = mem.GetValues(a, buf)
	w.Hits = append(w.Hits, state.AccessRecord{Kind: state.LogRead, Space: "ram", Offset: a, Size: n, Value: buf})
	if w.HaltOnHit {
		return hooks.Outcome{Action: hooks.Halt}
	}
	return hooks.PassOutcome
}

func (w *Watchpoint) MemoryWrite(mem *state.PagedState, a uint64, in []byte) hooks.Outcome {
	if w.Source&WatchWrite == 0 || !w.overlaps(a, len(in)) {
		return hooks.PassOutcome
	}
	w.Hits = append(w.Hits, state.AccessRecord{Kind: state.LogWrite, Space: "ram", Offset: a, Size: len(in), Value: append([]byte(nil), in...)})
	if w.HaltOnHit {
		return hooks.Outcome{Action: hooks.Halt}
	}
	return hooks.PassOutcome
}
