// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package state

import (
	"sort"

	"github.com/concrete-ir/ircore/addr"
)

type segmentKind int

const (
	segStatic segmentKind = iota
	segMapping
)

// Segment is either a Static slice of the PagedState's shared backing
// buffer, or a Mapping owning a private ChunkState.
type segment struct {
	kind   segmentKind
	name   string
	start  uint64
	length int

	staticOffset int         // valid when kind == segStatic
	chunk        *ChunkState // valid when kind == segMapping
}

func (s *segment) end() uint64 { return s.start + uint64(s.length) }

// PagedState composes static slices of a shared FlatState backing buffer
// with independently-managed Mapping segments (heap regions), routed by
// absolute address range.
type PagedState struct {
	space addr.Space
	inner *FlatState // backing for every Static segment
	// segments is kept sorted by start; inserts enforce pairwise
	// disjointness, so a sorted slice searched with sort.Search gives the
	// same enclosing-segment lookup an interval tree would for disjoint
	// intervals.
	segments []*segment
}

// NewPagedState constructs an (initially segment-less) PagedState whose
// Static segments will be carved out of inner.
func NewPagedState(space addr.Space, inner *FlatState) *PagedState {
	return &PagedState{space: space, inner: inner}
}

// Close releases the shared Static backing and every Mapping segment's
// own backing.
func (p *PagedState) Close() error {
	for _, s := range p.segments {
		if s.kind == segMapping {
			if err := s.chunk.Close(); err != nil {
				return err
			}
		}
	}
	return p.inner.Close()
}

func (p *PagedState) overlaps(start uint64, length int) *segment {
	end := start + uint64(length)
	for _, s := range p.segments {
		if start < s.end() && end > s.start {
			return s
		}
	}
	return nil
}

func (p *PagedState) insert(s *segment) {
	p.segments = append(p.segments, s)
	sort.Slice(p.segments, func(i, j int) bool { return p.segments[i].start < p.segments[j].start })
}

// AddStatic records a Static segment over [start, start+length) backed by
// inner[staticOffset : staticOffset+length). The loader is expected to
// have already placed the segment's bytes into inner at staticOffset.
func (p *PagedState) AddStatic(name string, start uint64, staticOffset, length int) error {
	if s := p.overlaps(start, length); s != nil {
		return &OverlappedMappingError{Name: name, Base: start, Size: uint64(length)}
	}
	p.insert(&segment{kind: segStatic, name: name, start: start, length: length, staticOffset: staticOffset})
	return nil
}

// Mapping inserts a new, fully-managed heap Mapping segment of size bytes
// at base. Overlap with any existing segment is rejected.
func (p *PagedState) Mapping(name string, base uint64, size int) error {
	if s := p.overlaps(base, size); s != nil {
		return &OverlappedMappingError{Name: name, Base: base, Size: uint64(size)}
	}
	cs, err := NewChunkState(p.space, base, size)
	if err != nil {
		return err
	}
	p.insert(&segment{kind: segMapping, name: name, start: base, length: size, chunk: cs})
	return nil
}

// Heap returns the ChunkState owned by the named Mapping segment, for
// callers (loaders, hooks, intrinsics) that manage allocations within it.
func (p *PagedState) Heap(name string) (*ChunkState, bool) {
	for _, s := range p.segments {
		if s.kind == segMapping && s.name == name {
			return s.chunk, true
		}
	}
	return nil, false
}

func (p *PagedState) find(a uint64, n int) (*segment, error) {
	segs := p.segments
	i := sort.Search(len(segs), func(i int) bool { return segs[i].end() > a })
	if i == len(segs) || a < segs[i].start {
		return nil, &UnmappedAddressError{Offset: a, Size: n}
	}
	s := segs[i]
	if a+uint64(n) > s.end() {
		return nil, &OverlappedAccessError{Segment: s.name, Offset: a, Size: n}
	}
	return s, nil
}

// translate resolves (a, n) to a backing FlatState and byte offset within
// it, routing through the enclosing segment.
func (p *PagedState) translate(a uint64, n int) (*FlatState, int, error) {
	s, err := p.find(a, n)
	if err != nil {
		return nil, 0, err
	}
	switch s.kind {
	case segStatic:
		return p.inner, s.staticOffset + int(a-s.start), nil
	default: // segMapping
		off, terr := s.chunk.TranslateChecked(a, n)
		if terr != nil {
			return nil, 0, terr
		}
		return s.chunk.Flat(), off, nil
	}
}

// GetValues reads n bytes at a into out.
func (p *PagedState) GetValues(a uint64, out []byte) error {
	flat, off, err := p.translate(a, len(out))
	if err != nil {
		return err
	}
	return flat.Get(off, out)
}

// SetValues writes in to n bytes at a.
func (p *PagedState) SetValues(a uint64, in []byte) error {
	flat, off, err := p.translate(a, len(in))
	if err != nil {
		return err
	}
	return flat.Set(off, in)
}

// ViewValues returns a read-only borrow of n bytes at a.
func (p *PagedState) ViewValues(a uint64, n int) ([]byte, error) {
	flat, off, err := p.translate(a, n)
	if err != nil {
		return nil, err
	}
	return flat.View(off, n)
}

// ViewValuesMut returns a read-write borrow of n bytes at a.
func (p *PagedState) ViewValuesMut(a uint64, n int) ([]byte, error) {
	flat, off, err := p.translate(a, n)
	if err != nil {
		return nil, err
	}
	return flat.ViewMut(off, n)
}

// CopyValues copies n bytes from src to dst. Each range must lie inside
// one segment; when the two resolve into different FlatStates (e.g. a
// Static region and a Mapping) the bytes go through a temporary buffer.
func (p *PagedState) CopyValues(src, dst uint64, n int) error {
	srcFlat, srcOff, err := p.translate(src, n)
	if err != nil {
		return err
	}
	dstFlat, dstOff, err := p.translate(dst, n)
	if err != nil {
		return err
	}
	if srcFlat != dstFlat {
		buf := make([]byte, n)
		if err := srcFlat.Get(srcOff, buf); err != nil {
			return err
		}
		return dstFlat.Set(dstOff, buf)
	}
	return srcFlat.CopyWithin(srcOff, dstOff, n)
}

// Fork clones the segment tree: every Mapping is forked (preserving its
// own dirty semantics) and the static backing is forked.
func (p *PagedState) Fork() (*PagedState, error) {
	innerFork, err := p.inner.Fork()
	if err != nil {
		return nil, err
	}
	out := &PagedState{space: p.space, inner: innerFork}
	for _, s := range p.segments {
		switch s.kind {
		case segStatic:
			out.segments = append(out.segments, &segment{kind: segStatic, name: s.name, start: s.start, length: s.length, staticOffset: s.staticOffset})
		default:
			chunkFork, ferr := s.chunk.Fork()
			if ferr != nil {
				return nil, ferr
			}
			out.segments = append(out.segments, &segment{kind: segMapping, name: s.name, start: s.start, length: s.length, chunk: chunkFork})
		}
	}
	return out, nil
}

// Restore restores the shared backing, then for each segment present in
// the receiver: if other has a segment with an identical interval,
// restores it from that; otherwise drops it. A segment-kind or identity
// mismatch on an overlapping interval is a programming error and panics.
func (p *PagedState) Restore(other *PagedState) {
	p.inner.Restore(other.inner)

	otherByStart := make(map[uint64]*segment, len(other.segments))
	for _, s := range other.segments {
		otherByStart[s.start] = s
	}

	kept := p.segments[:0]
	for _, s := range p.segments {
		os, ok := otherByStart[s.start]
		if !ok {
			continue // dropped: not present in other
		}
		if os.kind != s.kind || os.length != s.length {
			panic("state: PagedState.Restore segment identity mismatch")
		}
		if s.kind == segMapping {
			s.chunk.Restore(os.chunk)
		}
		kept = append(kept, s)
	}
	p.segments = kept
}
