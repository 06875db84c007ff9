// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package machine implements the per-instruction driver loop and bounded
// run loop that sits on top of an Interpreter.
package machine

import (
	"github.com/sirupsen/logrus"

	"github.com/concrete-ir/ircore/interp"
	"github.com/concrete-ir/ircore/step"
)

var log = logrus.WithField("component", "machine")

// Location names a resumption point: an instruction address plus a cursor
// position within its lifted block (position is almost always 0; a
// nonzero position resumes mid-block after an external caller stopped
// between micro-ops).
type Location struct {
	Address  uint64
	Position int
}

// Result is what one Step (or the final iteration of RunUntil) produced.
type Result struct {
	Halted  bool
	Err     error // set when Halted with a carried error; nil on a clean Halt
	Next    uint64 // the next instruction address, valid when !Halted
	Reached bool   // RunUntil only: whether the bound reported "reached"
}

// Machine drives an Interpreter through single instructions and bounded
// runs. IgnoreErrors, when set, converts any op-level failure into a Next
// outcome instead of propagating it.
type Machine struct {
	Interp       *interp.Interpreter
	IgnoreErrors bool
}

// New constructs a Machine driving ip.
func New(ip *interp.Interpreter) *Machine {
	return &Machine{Interp: ip}
}

// Step executes exactly one architectural instruction starting at loc: it
// lifts loc.Address (handling a lift-time Halt), positions the cursor at
// loc.Position, then dispatches micro-ops until a Global branch or a Halt
// outcome arises.
func (m *Machine) Step(loc Location) (Result, error) {
	block, halt, err := m.Interp.Lift(loc.Address)
	if err != nil {
		return Result{}, err
	}
	if halt != nil {
		return Result{Halted: true, Err: halt.Err}, nil
	}

	cursor := step.NewState(block)
	for cursor.Position() < loc.Position {
		cursor.Branch(step.BranchRequest{Action: step.Next})
	}

	for {
		outcome, err := m.Interp.Step(cursor)
		if err != nil {
			if m.IgnoreErrors {
				log.WithError(err).WithField("address", loc.Address).Debug("ignoring op failure")
				outcome = interp.Outcome{Branch: step.BranchRequest{Action: step.Next}}
			} else {
				return Result{}, err
			}
		}
		if outcome.Halted {
			return Result{Halted: true, Err: outcome.Err}, nil
		}

		res := cursor.Branch(outcome.Branch)
		if res.Action == step.Global {
			return Result{Next: res.Target}, nil
		}
	}
}

// RunUntil repeatedly calls Step, starting from loc and then from each
// successive instruction's address, until bound reports the run has
// reached its limit or a Step produces something other than a clean
// advance to the next address.
func (m *Machine) RunUntil(loc Location, bound Bound) (Result, error) {
	current := loc
	for {
		if bound.reached(current.Address) {
			return Result{Next: current.Address, Reached: true}, nil
		}

		res, err := m.Step(current)
		if err != nil {
			return Result{}, err
		}
		if res.Halted {
			return res, nil
		}

		bound.deplete(current.Address)
		current = Location{Address: res.Next}
	}
}
