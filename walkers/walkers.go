// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package walkers provides reference Hook implementations: exploration
// strategies (path/branch/random walkers) and passive observers
// (access logging, watchpoints).
package walkers

import (
	"github.com/concrete-ir/ircore/hooks"
	"github.com/concrete-ir/ircore/state"
	"github.com/concrete-ir/ircore/step"
)

// PathWalker records, in order, every instruction address the Machine
// lifts, via architectural_step.
type PathWalker struct {
	hooks.Base
	Path []uint64
}

// NewPathWalker constructs an empty PathWalker.
func NewPathWalker() *PathWalker { return &PathWalker{} }

func (w *PathWalker) ArchitecturalStep(block *step.Block) hooks.Outcome {
	w.Path = append(w.Path, block.Address)
	return hooks.PassOutcome
}

// Reset discards the recorded path.
func (w *PathWalker) Reset() { w.Path = nil }

// AccessLogger forwards every memory and register read/write to an
// *state.AccessLog.
type AccessLogger struct {
	hooks.Base
	Log *state.AccessLog
}

// NewAccessLogger constructs an AccessLogger writing into log.
func NewAccessLogger(log *state.AccessLog) *AccessLogger {
	return &AccessLogger{Log: log}
}

func (w *AccessLogger) MemoryRead(mem *state.PagedState, a uint64, n int) hooks.Outcome {
	buf := make([]byte, n)
	if err := mem.GetValues(a, buf); err == nil {
		w.Log.Record(state.AccessRecord{Kind: state.LogRead, Space: "ram", Offset: a, Size: n, Value: buf})
	}
	return hooks.PassOutcome
}

func (w *AccessLogger) MemoryWrite(mem *state.PagedState, a uint64, in []byte) hooks.Outcome {
	w.Log.Record(state.AccessRecord{Kind: state.LogWrite, Space: "ram", Offset: a, Size: len(in), Value: append([]byte(nil), in...)})
	return hooks.PassOutcome
}

func (w *AccessLogger) RegisterRead(regs *state.RegisterState, off, n int) hooks.Outcome {
	buf := make([]byte, n)
	if err := regs.Get(off, buf); err == nil {
		w.Log.Record(state.AccessRecord{Kind: state.LogRead, Space: "register", Offset: uint64(off), Size: n, Value: buf})
	}
	return hooks.PassOutcome
}

func (w *AccessLogger) RegisterWrite(regs *state.RegisterState, off int, in []byte) hooks.Outcome {
	w.Log.Record(state.AccessRecord{Kind: state.LogWrite, Space: "register", Offset: uint64(off), Size: len(in), Value: append([]byte(nil), in...)})
	return hooks.PassOutcome
}
