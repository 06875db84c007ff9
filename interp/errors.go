// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interp

import "fmt"

// UnsupportedAddressSizeError is returned when a pointer operand's
// declared size isn't one of the supported pointer widths (1, 2, 4, 8).
type UnsupportedAddressSizeError struct{ Size int }

func (e *UnsupportedAddressSizeError) Error() string {
	return fmt.Sprintf("unsupported address size %d (want 1, 2, 4, or 8)", e.Size)
}

// UnsupportedOperandSizeError is returned when an operand's declared size
// exceeds the configured OPERAND_SIZE ceiling.
type UnsupportedOperandSizeError struct {
	Size    int
	Ceiling int
}

func (e *UnsupportedOperandSizeError) Error() string {
	return fmt.Sprintf("operand size %d exceeds ceiling %d", e.Size, e.Ceiling)
}

// UnsupportedBranchDestinationError is returned when a Branch/CBranch
// destination operand is neither Constant nor Address.
type UnsupportedBranchDestinationError struct{}

func (e *UnsupportedBranchDestinationError) Error() string {
	return "unsupported branch destination operand kind"
}

// UnsupportedFloatFormatError is returned when a float op's operand size
// doesn't correspond to a known float format.
type UnsupportedFloatFormatError struct{ Size int }

func (e *UnsupportedFloatFormatError) Error() string {
	return fmt.Sprintf("unsupported float format for size %d", e.Size)
}

// LiftError wraps a lifter failure with the faulting address.
type LiftError struct {
	Address uint64
	Cause   error
}

func (e *LiftError) Error() string {
	return fmt.Sprintf("lift failed at 0x%x: %v", e.Address, e.Cause)
}

func (e *LiftError) Unwrap() error { return e.Cause }

// ProgrammerError reports a violated caller invariant, currently only
// raised for an attempted Operand::Constant write.
type ProgrammerError struct{ Reason string }

func (e *ProgrammerError) Error() string { return "programmer error: " + e.Reason }
