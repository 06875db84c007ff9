// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package walkers

import (
	"math/rand"

	"github.com/concrete-ir/ircore/hooks"
)

// BranchWalker deterministically steers every CBranch toward one fixed
// direction (TakeTrue), recording how many it flipped to get there.
type BranchWalker struct {
	hooks.Base
	TakeTrue bool
	Flips    int
}

// NewBranchWalker constructs a BranchWalker that forces every conditional
// branch's outcome to takeTrue.
func NewBranchWalker(takeTrue bool) *BranchWalker {
	return &BranchWalker{TakeTrue: takeTrue}
}

func (w *BranchWalker) CBranch(target uint64, cond bool) hooks.Outcome {
	if cond != w.TakeTrue {
		w.Flips++
		return hooks.Outcome{Action: hooks.Flip}
	}
	return hooks.PassOutcome
}

// RandomWalker flips each CBranch's outcome independently with
// probability FlipChance, using Rand (a caller-seeded source, so a run is
// reproducible end to end).
type RandomWalker struct {
	hooks.Base
	Rand       *rand.Rand
	FlipChance float64
}

// NewRandomWalker constructs a RandomWalker seeded by seed, flipping each
// conditional branch with the given probability (0..1).
func NewRandomWalker(seed int64, flipChance float64) *RandomWalker {
	return &RandomWalker{Rand: rand.New(rand.NewSource(seed)), FlipChance: flipChance}
}

func (w *RandomWalker) CBranch(target uint64, cond bool) hooks.Outcome {
	if w.Rand.Float64() < w.FlipChance {
		return hooks.Outcome{Action: hooks.Flip}
	}
	return hooks.PassOutcome
}
