// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package state

import (
	"fmt"

	"github.com/concrete-ir/ircore/addr"
)

// AccessKind names the kind of access a fault occurred during, reported
// alongside the faulting address.
type AccessKind int

const (
	// Read is a load access.
	Read AccessKind = iota
	// Write is a store access.
	Write
	// ReadWrite is an access requiring both bits (e.g. view_mut).
	ReadWrite
)

func (k AccessKind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	case ReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

// OutOfBoundsError reports an access whose [offset, offset+size) range
// exceeds a FlatState's backing length.
type OutOfBoundsError struct {
	Space  addr.Space
	Offset uint64
	Size   int
	Kind   AccessKind
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("%s: out-of-bounds %s at offset 0x%x size %d", e.Space.Name(), e.Kind, e.Offset, e.Size)
}

// AccessViolationError reports a permission check failure: the requested
// access kind's bit was not set on every byte in range.
type AccessViolationError struct {
	Space  addr.Space
	Offset uint64
	Size   int
	Kind   AccessKind
}

func (e *AccessViolationError) Error() string {
	return fmt.Sprintf("%s: access violation (%s) at offset 0x%x size %d", e.Space.Name(), e.Kind, e.Offset, e.Size)
}

// UnmappedAddressError reports a PagedState access that found no
// enclosing segment.
type UnmappedAddressError struct {
	Offset uint64
	Size   int
}

func (e *UnmappedAddressError) Error() string {
	return fmt.Sprintf("unmapped address 0x%x size %d", e.Offset, e.Size)
}

// OverlappedAccessError reports a PagedState access that starts within one
// segment but extends past its end.
type OverlappedAccessError struct {
	Segment string
	Offset  uint64
	Size    int
}

func (e *OverlappedAccessError) Error() string {
	return fmt.Sprintf("access at 0x%x size %d escapes segment %q", e.Offset, e.Size, e.Segment)
}

// OverlappedMappingError is returned by PagedState.Mapping and
// PagedState.AddStatic when the requested range overlaps an existing
// segment.
type OverlappedMappingError struct {
	Name string
	Base uint64
	Size uint64
}

func (e *OverlappedMappingError) Error() string {
	return fmt.Sprintf("mapping %q at 0x%x size %d overlaps an existing segment", e.Name, e.Base, e.Size)
}

// Heap faults (ChunkState invariants).

// AccessUnmanagedError reports translate_checked failing to find any live
// region containing the requested range.
type AccessUnmanagedError struct {
	Addr uint64
	Size int
}

func (e *AccessUnmanagedError) Error() string {
	return fmt.Sprintf("heap: no live allocation manages 0x%x size %d", e.Addr, e.Size)
}

// HeapOverflowError reports translate_checked finding that the requested
// range overlaps a live region without lying wholly inside one (it runs
// past an allocation's end or spans more than one live region).
type HeapOverflowError struct {
	Addr uint64
	Size int
}

func (e *HeapOverflowError) Error() string {
	return fmt.Sprintf("heap: access at 0x%x size %d spans multiple allocations", e.Addr, e.Size)
}

// FreeUnmanagedError reports a deallocate() call whose address is not the
// base of any live allocation.
type FreeUnmanagedError struct {
	Addr uint64
}

func (e *FreeUnmanagedError) Error() string {
	return fmt.Sprintf("heap: free of unmanaged address 0x%x", e.Addr)
}

// ReallocateUnmanagedError reports a reallocate() call against an address
// that isn't a live allocation's base.
type ReallocateUnmanagedError struct {
	Addr uint64
}

func (e *ReallocateUnmanagedError) Error() string {
	return fmt.Sprintf("heap: realloc of unmanaged address 0x%x", e.Addr)
}

// NotEnoughFreeSpaceError reports a ChunkList allocate()/reallocate() call
// that could not find (or make) a large enough free chunk.
type NotEnoughFreeSpaceError struct {
	Requested int
}

func (e *NotEnoughFreeSpaceError) Error() string {
	return fmt.Sprintf("heap: no free chunk of size %d available", e.Requested)
}

// IncompatibleOperandsError reports an operand that PCodeState cannot read
// or write (its Kind is none of Address, Register, Variable or Constant).
type IncompatibleOperandsError struct {
	Reason string
}

func (e *IncompatibleOperandsError) Error() string {
	return fmt.Sprintf("incompatible operands: %s", e.Reason)
}
