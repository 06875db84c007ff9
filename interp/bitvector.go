// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interp

import (
	"math/big"

	"github.com/concrete-ir/ircore/state"
)

// DivisionByZeroError is the only arithmetic failure mode integer ops
// raise.
type DivisionByZeroError struct{}

func (DivisionByZeroError) Error() string { return "division by zero" }

// bvFromBytes interprets b (in the given byte order) as an arbitrary-width
// two's-complement integer, sign-extending when signed is true.
func bvFromBytes(b []byte, order state.ByteOrder, signed bool) *big.Int {
	le := make([]byte, len(b))
	copy(le, b)
	if order == state.BigEndian {
		reverse(le)
	}
	// le is now little-endian; build the unsigned magnitude then adjust
	// sign if requested.
	be := make([]byte, len(le))
	for i, v := range le {
		be[len(le)-1-i] = v
	}
	v := new(big.Int).SetBytes(be)
	if signed && len(b) > 0 {
		bits := uint(len(b)) * 8
		signBit := new(big.Int).Lsh(big.NewInt(1), bits-1)
		if v.Cmp(signBit) >= 0 {
			modulus := new(big.Int).Lsh(big.NewInt(1), bits)
			v.Sub(v, modulus)
		}
	}
	return v
}

// bvToBytes masks v to size*8 bits (two's complement) and writes it out
// in the given byte order.
func bvToBytes(v *big.Int, size int, order state.ByteOrder) []byte {
	bits := uint(size) * 8
	modulus := new(big.Int).Lsh(big.NewInt(1), bits)
	m := new(big.Int).Mod(v, modulus)
	if m.Sign() < 0 {
		m.Add(m, modulus)
	}
	be := m.Bytes()
	out := make([]byte, size)
	// right-align be (big-endian magnitude) into the low bytes of out.
	copy(out[size-len(be):], be)
	if order == state.LittleEndian {
		reverse(out)
	}
	return out
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// bvCast reinterprets v at toBits width, signed or unsigned. Mixed-width
// ops cast rhs to lhs's bit-width (signed if the op is signed) before
// computing.
func bvCast(v *big.Int, toBits int, signed bool) *big.Int {
	bits := uint(toBits)
	modulus := new(big.Int).Lsh(big.NewInt(1), bits)
	m := new(big.Int).Mod(v, modulus)
	if m.Sign() < 0 {
		m.Add(m, modulus)
	}
	if signed {
		signBit := new(big.Int).Lsh(big.NewInt(1), bits-1)
		if m.Cmp(signBit) >= 0 {
			m.Sub(m, modulus)
		}
	}
	return m
}

// signedOverflows reports whether v falls outside the representable range
// of a bits-wide signed two's-complement integer, the condition the
// signed carry/borrow ops test.
func signedOverflows(v *big.Int, bits int) bool {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(bits-1)), big.NewInt(1))
	min := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), uint(bits-1)))
	return v.Cmp(max) > 0 || v.Cmp(min) < 0
}

// bvPopCount counts the set bits in b's raw byte representation
// (sign/order-independent, a structural bit count).
func bvPopCount(b []byte) int {
	n := 0
	for _, v := range b {
		for v != 0 {
			n += int(v & 1)
			v >>= 1
		}
	}
	return n
}
