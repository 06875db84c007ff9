// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package state implements the layered state model: FlatState, the
// ChunkList heap allocator and ChunkState, PagedState, and the composite
// PCodeState.
package state

import (
	"github.com/concrete-ir/ircore/addr"
	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "state")

// Perm is a two-bit permission value: readable and/or writable.
type Perm uint8

const (
	// PermNone grants no access.
	PermNone Perm = 0
	// PermRead grants read access.
	PermRead Perm = 1 << 0
	// PermWrite grants write access.
	PermWrite Perm = 1 << 1
	// PermRW grants both.
	PermRW = PermRead | PermWrite
)

func (p Perm) readable() bool { return p&PermRead != 0 }
func (p Perm) writable() bool { return p&PermWrite != 0 }

// dirtyBlockSize is the fixed-size aligned block granularity used for
// dirty tracking and restore.
const dirtyBlockSize = 64

// dirtySet tracks changed blocks as both a bitmap (cheap membership test)
// and an ordered list of indices (cheap enumeration).
type dirtySet struct {
	bits []uint64
	list []int
}

func newDirtySet(blocks int) *dirtySet {
	return &dirtySet{bits: make([]uint64, (blocks+63)/64)}
}

func (d *dirtySet) mark(block int) {
	w, b := block/64, uint(block%64)
	if d.bits[w]&(1<<b) != 0 {
		return
	}
	d.bits[w] |= 1 << b
	d.list = append(d.list, block)
}

func (d *dirtySet) blocks() []int { return d.list }

func (d *dirtySet) clear() {
	for i := range d.bits {
		d.bits[i] = 0
	}
	d.list = d.list[:0]
}

// permBits packs two bits per byte, scale = 32 bytes/word.
type permBits struct {
	words []uint64
}

const permScale = 32 // bytes per 64-bit word at 2 bits/byte

func newPermBits(n int, initial Perm) *permBits {
	words := (n + permScale - 1) / permScale
	p := &permBits{words: make([]uint64, words)}
	if initial != PermNone {
		p.setRegion(0, n, initial)
	}
	return p
}

func (p *permBits) get(off int) Perm {
	w, shift := off/permScale, uint(off%permScale)*2
	return Perm((p.words[w] >> shift) & 0x3)
}

func (p *permBits) set(off int, v Perm) {
	w, shift := off/permScale, uint(off%permScale)*2
	p.words[w] = (p.words[w] &^ (0x3 << shift)) | (uint64(v&0x3) << shift)
}

func (p *permBits) setRegion(off, n int, v Perm) {
	for i := off; i < off+n; i++ {
		p.set(i, v)
	}
}

func (p *permBits) clearRegion(off, n int, mask Perm) {
	for i := off; i < off+n; i++ {
		p.set(i, p.get(i)&^mask)
	}
}

func (p *permBits) allHave(off, n int, kind AccessKind) bool {
	for i := off; i < off+n; i++ {
		perm := p.get(i)
		switch kind {
		case Read:
			if !perm.readable() {
				return false
			}
		case Write:
			if !perm.writable() {
				return false
			}
		case ReadWrite:
			if !perm.readable() || !perm.writable() {
				return false
			}
		}
	}
	return true
}

func (p *permBits) clone() *permBits {
	c := &permBits{words: make([]uint64, len(p.words))}
	copy(c.words, p.words)
	return c
}

// FlatState is a permissioned, byte-addressed buffer with dirty tracking
// and cheap fork/restore.
type FlatState struct {
	space   addr.Space
	backing mmap.MMap
	perm    *permBits
	dirty   *dirtySet
}

// NewFlatState allocates a fixed-size backing buffer of n bytes, backed by
// an anonymous memory mapping, with the given
// initial permission policy applied uniformly.
func NewFlatState(space addr.Space, n int, initial Perm) (*FlatState, error) {
	m, err := mmap.MapRegion(nil, n, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "state: mmap %d bytes for %s", n, space.Name())
	}
	return &FlatState{
		space:   space,
		backing: m,
		perm:    newPermBits(n, initial),
		dirty:   newDirtySet((n + dirtyBlockSize - 1) / dirtyBlockSize),
	}, nil
}

// Close unmaps the backing buffer. Safe to call once per FlatState,
// including forked copies (each owns its own mapping).
func (f *FlatState) Close() error {
	return f.backing.Unmap()
}

// Len reports the backing buffer's fixed size N.
func (f *FlatState) Len() int { return len(f.backing) }

// Space reports the address space this FlatState backs.
func (f *FlatState) Space() addr.Space { return f.space }

func (f *FlatState) checkRange(off, n int, kind AccessKind) error {
	if off < 0 || n < 0 || off+n > len(f.backing) {
		return &OutOfBoundsError{Space: f.space, Offset: uint64(off), Size: n, Kind: kind}
	}
	if !f.perm.allHave(off, n, kind) {
		return &AccessViolationError{Space: f.space, Offset: uint64(off), Size: n, Kind: kind}
	}
	return nil
}

// Get reads n bytes at off into out. Any single byte failing its bounds
// or permission check aborts the whole call.
func (f *FlatState) Get(off int, out []byte) error {
	if err := f.checkRange(off, len(out), Read); err != nil {
		return err
	}
	copy(out, f.backing[off:off+len(out)])
	return nil
}

// Set writes in to n bytes at off, then marks the touched blocks dirty.
func (f *FlatState) Set(off int, in []byte) error {
	if err := f.checkRange(off, len(in), Write); err != nil {
		return err
	}
	copy(f.backing[off:off+len(in)], in)
	f.markDirty(off, len(in))
	return nil
}

// View returns a read-only borrow of n bytes at off.
func (f *FlatState) View(off, n int) ([]byte, error) {
	if err := f.checkRange(off, n, Read); err != nil {
		return nil, err
	}
	return f.backing[off : off+n], nil
}

// ViewMut returns a read-write borrow of n bytes at off. It bypasses the
// Set path, so it marks the blocks covering [off, off+n) dirty itself
// before returning the slice.
func (f *FlatState) ViewMut(off, n int) ([]byte, error) {
	if err := f.checkRange(off, n, ReadWrite); err != nil {
		return nil, err
	}
	f.markDirty(off, n)
	return f.backing[off : off+n], nil
}

// MarkDirty marks the blocks covering [off, off+n) as dirty without
// performing any access check. Exposed for ViewMut-style direct mutation.
func (f *FlatState) MarkDirty(off, n int) { f.markDirty(off, n) }

func (f *FlatState) markDirty(off, n int) {
	first := off / dirtyBlockSize
	last := (off + n - 1) / dirtyBlockSize
	for b := first; b <= last; b++ {
		f.dirty.mark(b)
	}
}

// CopyWithin copies n bytes from src to dst within the same backing
// buffer; both ranges are fully bounds/permission checked, and a single
// dirty update covers the destination.
func (f *FlatState) CopyWithin(src, dst, n int) error {
	if err := f.checkRange(src, n, Read); err != nil {
		return err
	}
	if err := f.checkRange(dst, n, Write); err != nil {
		return err
	}
	copy(f.backing[dst:dst+n], f.backing[src:src+n])
	f.markDirty(dst, n)
	return nil
}

// SetRegion sets the permission bits over [off, off+n) to v.
func (f *FlatState) SetRegion(off, n int, v Perm) { f.perm.setRegion(off, n, v) }

// ClearRegion clears the given permission bits over [off, off+n).
func (f *FlatState) ClearRegion(off, n int, mask Perm) { f.perm.clearRegion(off, n, mask) }

// AllHave reports whether every byte in [off, off+n) bears the bits
// required by kind.
func (f *FlatState) AllHave(off, n int, kind AccessKind) bool {
	if off < 0 || n < 0 || off+n > len(f.backing) {
		return false
	}
	return f.perm.allHave(off, n, kind)
}

// Fork clones the backing buffer and permissions, producing a fresh,
// independent FlatState with an empty dirty set.
func (f *FlatState) Fork() (*FlatState, error) {
	m, err := mmap.MapRegion(nil, len(f.backing), mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "state: fork mmap for %s", f.space.Name())
	}
	copy(m, f.backing)
	return &FlatState{
		space:   f.space,
		backing: m,
		perm:    f.perm.clone(),
		dirty:   newDirtySet((len(f.backing) + dirtyBlockSize - 1) / dirtyBlockSize),
	}, nil
}

// Restore rolls back every block in the receiver's dirty set to other's
// contents, clears the dirty set, and replaces permissions with a clone
// of other's. Restore is linear in the changed region, not the full
// backing buffer.
func (f *FlatState) Restore(other *FlatState) {
	for _, block := range f.dirty.blocks() {
		start := block * dirtyBlockSize
		end := start + dirtyBlockSize
		if end > len(f.backing) {
			end = len(f.backing)
		}
		if end > len(other.backing) {
			end = len(other.backing)
		}
		if start >= end {
			continue
		}
		copy(f.backing[start:end], other.backing[start:end])
	}
	f.dirty.clear()
	f.perm = other.perm.clone()
	log.WithField("space", f.space.Name()).Debug("restored dirty blocks")
}
