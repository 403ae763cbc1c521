// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package bitvec defines a bit vector type useful for
// slot management (e.g., free lists and visit marks).
package bitvec

import (
	"iter"
	"math/bits"
	"unsafe"
)

// Uint represents the granularity of a bit vector.
type Uint interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// V is a growable bit vector with custom granularity.
type V[T Uint] struct {
	s   []T
	set int
}

// nbit returns the number of bits in T.
func (*V[T]) nbit() int { return int(unsafe.Sizeof(T(0))) * 8 }

// Len returns the number of bits in the vector.
func (v *V[_]) Len() int { return len(v.s) * v.nbit() }

// Count returns the number of set bits in the vector.
func (v *V[_]) Count() int { return v.set }

// Rem returns the number of unset bits in the vector.
func (v *V[_]) Rem() int { return v.Len() - v.set }

// Grow appends nplus unset Uints to the vector.
// It returns the value of v.Len prior to growing, which is
// the index of the first new bit.
func (v *V[T]) Grow(nplus int) (index int) {
	index = v.Len()
	if nplus > 0 {
		v.s = append(v.s, make([]T, nplus)...)
	}
	return
}

// Reserve grows the vector, if needed, so that it contains
// at least n bits.
func (v *V[T]) Reserve(n int) {
	if d := n - v.Len(); d > 0 {
		nb := v.nbit()
		v.Grow((d + nb - 1) / nb)
	}
}

func (v *V[T]) loc(index int) (int, T) {
	n := v.nbit()
	return index / n, T(1) << (index % n)
}

// Set sets a given bit.
func (v *V[T]) Set(index int) {
	i, b := v.loc(index)
	if v.s[i]&b == 0 {
		v.s[i] |= b
		v.set++
	}
}

// Unset unsets a given bit.
func (v *V[T]) Unset(index int) {
	i, b := v.loc(index)
	if v.s[i]&b != 0 {
		v.s[i] &^= b
		v.set--
	}
}

// IsSet checks whether a given bit is set.
func (v *V[T]) IsSet(index int) bool {
	i, b := v.loc(index)
	return v.s[i]&b != 0
}

// Search locates the lowest unset bit in the vector.
// It fails only when v.Rem() == 0.
func (v *V[T]) Search() (index int, ok bool) {
	if v.Rem() == 0 {
		return
	}
	for i, x := range v.s {
		if x != ^T(0) {
			return i*v.nbit() + bits.TrailingZeros64(uint64(^x)), true
		}
	}
	return
}

// Clear unsets every bit in the vector.
func (v *V[T]) Clear() {
	if v.set != 0 {
		clear(v.s)
		v.set = 0
	}
}

// Ones returns an iterator over the indices of set bits,
// in ascending order.
func (v *V[T]) Ones() iter.Seq[int] {
	return func(yield func(int) bool) {
		n := v.nbit()
		for i, x := range v.s {
			for w := uint64(x); w != 0; w &= w - 1 {
				if !yield(i*n + bits.TrailingZeros64(w)) {
					return
				}
			}
		}
	}
}
