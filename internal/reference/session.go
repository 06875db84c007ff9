// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reference

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/concrete-ir/ircore/state"
)

// StackSize is the fixed size of the scratch mapping NewSession
// reserves for the stack, placed immediately after the loaded text
// segment.
const StackSize = 64 * 1024

// NewSession loads path through Loader and assembles a ready-to-run
// PCodeState: the text segment as a Static region, a Mapping segment for
// the stack, and registers/unique space sized per the reference Lifter,
// with SP initialized to the top of the stack mapping.
func NewSession(path string) (*state.PCodeState, *Lifter, error) {
	l := New()

	segs, memSpace, err := (Loader{}).Load(path, "")
	if err != nil {
		return nil, nil, err
	}
	if len(segs) != 1 {
		return nil, nil, errors.Errorf("reference: expected exactly one segment, got %d", len(segs))
	}
	text := segs[0]

	stackBase := alignUp(text.Start+uint64(len(text.Bytes)), 16)
	flat, err := state.NewFlatState(memSpace, len(text.Bytes), state.PermRW)
	if err != nil {
		return nil, nil, err
	}
	if err := flat.Set(0, text.Bytes); err != nil {
		return nil, nil, err
	}

	paged := state.NewPagedState(memSpace, flat)
	if err := paged.AddStatic("text", text.Start, 0, len(text.Bytes)); err != nil {
		return nil, nil, err
	}
	if err := paged.Mapping("stack", stackBase, StackSize); err != nil {
		return nil, nil, err
	}

	regSpace, regSize := l.RegisterSpace()
	regs, err := state.NewRegisterState(regSpace, regSize)
	if err != nil {
		return nil, nil, err
	}
	uniqSpace, uniqSize := l.UniqueSpace()
	uniq, err := state.NewUniqueState(uniqSpace, uniqSize)
	if err != nil {
		return nil, nil, err
	}

	conv := l.Convention()
	st := state.NewPCodeState(paged, regs, uniq, state.LittleEndian, l.ProgramCounter(), conv.StackPointer, conv.ReturnLocation)
	st.ExtraPop = conv.ExtraPop

	spVal := make([]byte, RegSize)
	binary.LittleEndian.PutUint64(spVal, stackBase+StackSize)
	if err := st.WriteOperand(conv.StackPointer, spVal); err != nil {
		return nil, nil, err
	}
	if err := st.SetPC(text.Start); err != nil {
		return nil, nil, err
	}

	return st, l, nil
}

func alignUp(v uint64, align uint64) uint64 {
	return (v + align - 1) / align * align
}
