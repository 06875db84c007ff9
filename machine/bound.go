// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package machine

// Bound decides when RunUntil should stop: reached reports whether the
// bound is already satisfied at address (checked before that instruction
// executes), and deplete updates any internal countdown after an
// instruction at address has executed.
type Bound interface {
	reached(address uint64) bool
	deplete(address uint64)
}

// AddressBound stops exactly when the current address equals Target.
type AddressBound struct{ Target uint64 }

func (b *AddressBound) reached(address uint64) bool { return address == b.Target }
func (b *AddressBound) deplete(uint64)              {}

// StepsBound stops after Remaining instructions have executed.
type StepsBound struct{ Remaining int }

func (b *StepsBound) reached(uint64) bool { return b.Remaining <= 0 }
func (b *StepsBound) deplete(uint64)      { b.Remaining-- }

// AddressOrStepsBound stops at the first of Target being reached or
// Remaining instructions having executed.
type AddressOrStepsBound struct {
	Target    uint64
	Remaining int
}

func (b *AddressOrStepsBound) reached(address uint64) bool {
	return address == b.Target || b.Remaining <= 0
}
func (b *AddressOrStepsBound) deplete(uint64) { b.Remaining-- }

// AddressReachCountOrStepsBound stops once Target has been visited
// ReachRemaining times, or once StepRemaining instructions have executed,
// whichever comes first.
type AddressReachCountOrStepsBound struct {
	Target        uint64
	ReachRemaining int
	StepRemaining  int
}

func (b *AddressReachCountOrStepsBound) reached(uint64) bool {
	return b.ReachRemaining <= 0 || b.StepRemaining <= 0
}

func (b *AddressReachCountOrStepsBound) deplete(address uint64) {
	b.StepRemaining--
	if address == b.Target {
		b.ReachRemaining--
	}
}

// UnboundedBound never stops on its own; RunUntil with it returns only
// when a Step halts or fails.
type UnboundedBound struct{}

func (UnboundedBound) reached(uint64) bool { return false }
func (UnboundedBound) deplete(uint64)      {}

// BoundAnyOf stops as soon as any one of its member bounds reports
// reached, depleting every member each iteration regardless of which one
// eventually fires.
type BoundAnyOf struct{ Bounds []Bound }

func (b BoundAnyOf) reached(address uint64) bool {
	for _, inner := range b.Bounds {
		if inner.reached(address) {
			return true
		}
	}
	return false
}

func (b BoundAnyOf) deplete(address uint64) {
	for _, inner := range b.Bounds {
		inner.deplete(address)
	}
}
