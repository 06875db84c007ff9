// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package state

import "github.com/concrete-ir/ircore/addr"

// RegisterState is the register-space flat buffer: a FlatState sized to
// hold every register varnode the target lifter's register space reports,
// always fully readable and writable.
type RegisterState struct {
	flat *FlatState
}

// NewRegisterState allocates a RegisterState of n bytes, all RW.
func NewRegisterState(space addr.Space, n int) (*RegisterState, error) {
	flat, err := NewFlatState(space, n, PermRW)
	if err != nil {
		return nil, err
	}
	return &RegisterState{flat: flat}, nil
}

// Close releases the backing mapping.
func (r *RegisterState) Close() error { return r.flat.Close() }

// Get reads n bytes at off.
func (r *RegisterState) Get(off int, out []byte) error { return r.flat.Get(off, out) }

// Set writes in to n bytes at off.
func (r *RegisterState) Set(off int, in []byte) error { return r.flat.Set(off, in) }

// Fork clones the register file.
func (r *RegisterState) Fork() (*RegisterState, error) {
	f, err := r.flat.Fork()
	if err != nil {
		return nil, err
	}
	return &RegisterState{flat: f}, nil
}

// Restore rolls the receiver back to other's contents.
func (r *RegisterState) Restore(other *RegisterState) { r.flat.Restore(other.flat) }

// UniqueState is the temporary (scratchpad) space flat buffer holding
// values live only within a single lifted instruction's micro-op
// sequence.
type UniqueState struct {
	flat *FlatState
}

// NewUniqueState allocates a UniqueState of n bytes, all RW.
func NewUniqueState(space addr.Space, n int) (*UniqueState, error) {
	flat, err := NewFlatState(space, n, PermRW)
	if err != nil {
		return nil, err
	}
	return &UniqueState{flat: flat}, nil
}

// Close releases the backing mapping.
func (u *UniqueState) Close() error { return u.flat.Close() }

// Get reads n bytes at off.
func (u *UniqueState) Get(off int, out []byte) error { return u.flat.Get(off, out) }

// Set writes in to n bytes at off.
func (u *UniqueState) Set(off int, in []byte) error { return u.flat.Set(off, in) }

// Fork clones the scratchpad.
func (u *UniqueState) Fork() (*UniqueState, error) {
	f, err := u.flat.Fork()
	if err != nil {
		return nil, err
	}
	return &UniqueState{flat: f}, nil
}

// Restore rolls the receiver back to other's contents.
func (u *UniqueState) Restore(other *UniqueState) { u.flat.Restore(other.flat) }
