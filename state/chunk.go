// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package state

import (
	"github.com/concrete-ir/ircore/addr"
)

type chunkKind int

const (
	chunkFree chunkKind = iota
	chunkTaken
)

// chunk is a maximal Free or Taken extent in a ChunkList.
type chunk struct {
	kind   chunkKind
	offset int
	size   int
}

// ChunkList is an ordered sequence of non-overlapping chunks covering
// [0, N). Adjacent chunks are never both Free; offsets strictly increase.
type ChunkList struct {
	n      int
	chunks []chunk
}

// NewChunkList creates a ChunkList covering [0, n) as a single Free chunk.
func NewChunkList(n int) *ChunkList {
	return &ChunkList{n: n, chunks: []chunk{{kind: chunkFree, offset: 0, size: n}}}
}

func (c *ChunkList) indexAt(offset int) int {
	for i, ch := range c.chunks {
		if ch.offset == offset {
			return i
		}
	}
	return -1
}

// Allocate finds the first Free chunk with size >= n (first-fit), splits
// it if larger than needed, and returns its offset.
func (c *ChunkList) Allocate(n int) (int, error) {
	for i, ch := range c.chunks {
		if ch.kind != chunkFree || ch.size < n {
			continue
		}
		if ch.size == n {
			c.chunks[i].kind = chunkTaken
			return ch.offset, nil
		}
		taken := chunk{kind: chunkTaken, offset: ch.offset, size: n}
		rest := chunk{kind: chunkFree, offset: ch.offset + n, size: ch.size - n}
		c.chunks = append(c.chunks, chunk{})
		copy(c.chunks[i+2:], c.chunks[i+1:])
		c.chunks[i] = taken
		c.chunks[i+1] = rest
		return taken.offset, nil
	}
	return 0, &NotEnoughFreeSpaceError{Requested: n}
}

// Deallocate flips the Taken chunk at off back to Free and coalesces with
// any Free neighbors.
func (c *ChunkList) Deallocate(off int) error {
	i := c.indexAt(off)
	if i < 0 || c.chunks[i].kind != chunkTaken {
		return &FreeUnmanagedError{Addr: uint64(off)}
	}
	c.chunks[i].kind = chunkFree
	c.coalesceAround(i)
	return nil
}

// coalesceAround merges the chunk at i with adjacent Free chunks.
func (c *ChunkList) coalesceAround(i int) {
	if i+1 < len(c.chunks) && c.chunks[i+1].kind == chunkFree {
		c.chunks[i].size += c.chunks[i+1].size
		c.chunks = append(c.chunks[:i+1], c.chunks[i+2:]...)
	}
	if i-1 >= 0 && c.chunks[i-1].kind == chunkFree {
		c.chunks[i-1].size += c.chunks[i].size
		c.chunks = append(c.chunks[:i], c.chunks[i+1:]...)
	}
}

// Reallocate resizes the Taken chunk at off, returning the (possibly
// relocated) new offset and the prior size.
func (c *ChunkList) Reallocate(off, newN int) (newOff int, oldSize int, err error) {
	i := c.indexAt(off)
	if i < 0 || c.chunks[i].kind != chunkTaken {
		return 0, 0, &ReallocateUnmanagedError{Addr: uint64(off)}
	}
	oldSize = c.chunks[i].size

	switch {
	case newN == oldSize:
		// case 1: no-op
		return off, oldSize, nil

	case newN < oldSize:
		// case 2: shrink in place; extend/create an adjacent Free chunk
		// with the released bytes.
		released := oldSize - newN
		c.chunks[i].size = newN
		if i+1 < len(c.chunks) && c.chunks[i+1].kind == chunkFree {
			c.chunks[i+1].offset -= released
			c.chunks[i+1].size += released
		} else {
			newFree := chunk{kind: chunkFree, offset: off + newN, size: released}
			c.chunks = append(c.chunks, chunk{})
			copy(c.chunks[i+2:], c.chunks[i+1:])
			c.chunks[i+1] = newFree
		}
		return off, oldSize, nil

	case i+1 < len(c.chunks) && c.chunks[i+1].kind == chunkFree && c.chunks[i+1].size >= newN-oldSize:
		// case 3: merge right, absorbing just enough of the next Free chunk.
		need := newN - oldSize
		c.chunks[i].size = newN
		if c.chunks[i+1].size == need {
			c.chunks = append(c.chunks[:i+1], c.chunks[i+2:]...)
		} else {
			c.chunks[i+1].offset += need
			c.chunks[i+1].size -= need
		}
		return off, oldSize, nil

	case i-1 >= 0 && c.chunks[i-1].kind == chunkFree && c.chunks[i-1].size >= newN-oldSize:
		// case 4: absorb the previous Free neighbor (in-place left merge).
		need := newN - oldSize
		prevSize := c.chunks[i-1].size
		newOff = off - need
		if prevSize == need {
			c.chunks = append(c.chunks[:i-1], c.chunks[i:]...)
			i--
		} else {
			c.chunks[i-1].size -= need
		}
		c.chunks[i].offset = newOff
		c.chunks[i].size = newN
		return newOff, oldSize, nil

	default:
		// case 5: fallback: allocate elsewhere, then free the old chunk.
		// Re-fetch i since Allocate may have mutated the slice layout
		// (splitting some other Free chunk before this one).
		newOff, aerr := c.Allocate(newN)
		if aerr != nil {
			return 0, 0, aerr
		}
		if derr := c.Deallocate(off); derr != nil {
			return 0, 0, derr
		}
		return newOff, oldSize, nil
	}
}

// ChunkState owns a FlatState (read-only by default unless written
// through allocated regions), a ChunkList, and the set of live
// allocations.
type ChunkState struct {
	base   uint64
	flat   *FlatState
	chunks *ChunkList
	// live maps an allocation's base address to its requested (not
	// red-zone-inflated) size.
	live map[uint64]int
}

// NewChunkState constructs a ChunkState managing n bytes starting at
// base, backed by a fresh FlatState with a read-only base policy: bytes
// become writable only while a live allocation covers them.
func NewChunkState(space addr.Space, base uint64, n int) (*ChunkState, error) {
	flat, err := NewFlatState(space, n, PermRead)
	if err != nil {
		return nil, err
	}
	return &ChunkState{
		base:   base,
		flat:   flat,
		chunks: NewChunkList(n),
		live:   make(map[uint64]int),
	}, nil
}

// Close releases the underlying FlatState's backing mapping.
func (c *ChunkState) Close() error { return c.flat.Close() }

func (c *ChunkState) relOffset(a uint64) int { return int(a - c.base) }

// Allocate reserves n bytes (plus one unwritable red-zone byte accounted
// for in the ChunkList but never exposed), marks the region R+W, clears
// writable on the red-zone byte, invokes init on the mutable slice, and
// returns the absolute address.
func (c *ChunkState) Allocate(n int, init func([]byte)) (uint64, error) {
	off, err := c.chunks.Allocate(n + 1)
	if err != nil {
		return 0, err
	}
	c.flat.SetRegion(off, n, PermRW)
	c.flat.ClearRegion(off+n, 1, PermWrite)
	addrAbs := c.base + uint64(off)
	c.live[addrAbs] = n
	if init != nil {
		view, verr := c.flat.ViewMut(off, n)
		if verr != nil {
			return 0, verr
		}
		init(view)
	}
	return addrAbs, nil
}

// Reallocate resizes the allocation at addr to n bytes. The full prior
// region must currently be readable; on relocation, the old bytes are
// copied to the new offset and the old region's writable bit is cleared
// to catch use-after-realloc.
func (c *ChunkState) Reallocate(a uint64, n int) (uint64, error) {
	oldSize, ok := c.live[a]
	if !ok {
		return 0, &ReallocateUnmanagedError{Addr: a}
	}
	oldOff := c.relOffset(a)
	if !c.flat.AllHave(oldOff, oldSize, Read) {
		return 0, &AccessViolationError{Space: c.flat.Space(), Offset: a, Size: oldSize, Kind: Read}
	}

	newOff, _, err := c.chunks.Reallocate(oldOff, n+1)
	if err != nil {
		return 0, err
	}
	newAddr := c.base + uint64(newOff)

	if newOff != oldOff {
		old, operr := c.flat.View(oldOff, oldSize)
		if operr != nil {
			return 0, operr
		}
		buf := append([]byte(nil), old...)
		c.flat.ClearRegion(oldOff, oldSize+1, PermWrite)
		c.flat.SetRegion(newOff, n, PermRW)
		copyLen := len(buf)
		if n < copyLen {
			copyLen = n
		}
		if werr := c.flat.Set(newOff, buf[:copyLen]); werr != nil {
			return 0, werr
		}
	} else if n > oldSize {
		c.flat.SetRegion(oldOff+oldSize, n-oldSize, PermRW)
	} else if n < oldSize {
		c.flat.ClearRegion(oldOff+n, oldSize-n, PermWrite)
	}
	c.flat.ClearRegion(newOff+n, 1, PermWrite)

	delete(c.live, a)
	c.live[newAddr] = n
	return newAddr, nil
}

// Deallocate frees the allocation whose base equals addr. Mid-block frees
// (addr not equal to an allocation's base) are rejected.
func (c *ChunkState) Deallocate(a uint64) error {
	size, ok := c.live[a]
	if !ok {
		return &FreeUnmanagedError{Addr: a}
	}
	off := c.relOffset(a)
	c.flat.ClearRegion(off, size+1, PermWrite)
	if err := c.chunks.Deallocate(off); err != nil {
		return err
	}
	delete(c.live, a)
	return nil
}

// TranslateChecked returns the backing FlatState offset for [addr,
// addr+n) if and only if a single live region contains the whole range.
// Spanning two regions yields HeapOverflow; touching none yields
// AccessUnmanaged.
func (c *ChunkState) TranslateChecked(a uint64, n int) (int, error) {
	end := a + uint64(n)
	touched := false
	for base, size := range c.live {
		regionEnd := base + uint64(size)
		if a >= base && end <= regionEnd {
			return c.relOffset(a), nil
		}
		if a < regionEnd && end > base {
			touched = true
		}
	}
	if touched {
		return 0, &HeapOverflowError{Addr: a, Size: n}
	}
	return 0, &AccessUnmanagedError{Addr: a, Size: n}
}

// Flat exposes the underlying FlatState for PagedState routing.
func (c *ChunkState) Flat() *FlatState { return c.flat }

// Base reports the ChunkState's configured base address.
func (c *ChunkState) Base() uint64 { return c.base }

// Fork produces a deep copy of the ChunkState with its own FlatState fork.
func (c *ChunkState) Fork() (*ChunkState, error) {
	flatFork, err := c.flat.Fork()
	if err != nil {
		return nil, err
	}
	chunksCopy := &ChunkList{n: c.chunks.n, chunks: append([]chunk(nil), c.chunks.chunks...)}
	live := make(map[uint64]int, len(c.live))
	for k, v := range c.live {
		live[k] = v
	}
	return &ChunkState{base: c.base, flat: flatFork, chunks: chunksCopy, live: live}, nil
}

// Restore rolls the receiver's dirty blocks back to other's FlatState
// contents and adopts other's chunk/live bookkeeping outright (heap
// layout itself isn't dirty-tracked at block granularity; it's small
// metadata copied wholesale, same cost class as the permission clone
// FlatState.Restore already performs).
func (c *ChunkState) Restore(other *ChunkState) {
	c.flat.Restore(other.flat)
	c.chunks = &ChunkList{n: other.chunks.n, chunks: append([]chunk(nil), other.chunks.chunks...)}
	live := make(map[uint64]int, len(other.live))
	for k, v := range other.live {
		live[k] = v
	}
	c.live = live
}
