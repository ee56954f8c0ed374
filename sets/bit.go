// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package sets

import (
	"iter"
	"math/bits"
	"slices"
)

const bitWordSize = 64

// Bit is a bitmap with O(1) lookup, insertion, and deletion, suited to
// tracking small dense integer ranges such as register indices within a
// single call frame (e.g. which locals in that frame are to-be-closed).
// The zero value is an empty set.
type Bit struct {
	words []uint64
}

// NewBit returns a new set that contains the arguments passed to it.
func NewBit(elem ...uint) *Bit {
	s := new(Bit)
	s.Add(elem...)
	return s
}

// Add adds the arguments to the set.
func (s *Bit) Add(elem ...uint) {
	for _, x := range elem {
		s.add(x)
	}
}

func (s *Bit) add(x uint) {
	i := x / bitWordSize
	if i >= uint(len(s.words)) {
		n := int(i - uint(len(s.words)) + 1)
		s.words = slices.Grow(s.words, n)
		s.words = s.words[:cap(s.words)]
	}
	s.words[i] |= 1 << (x % bitWordSize)
}

// Has reports whether the set contains x.
func (s *Bit) Has(x uint) bool {
	if s == nil {
		return false
	}
	i := x / bitWordSize
	if i >= uint(len(s.words)) {
		return false
	}
	return s.words[i]&(1<<(x%bitWordSize)) != 0
}

// Delete removes x from the set if present.
func (s *Bit) Delete(x uint) {
	if s == nil {
		return
	}
	i := x / bitWordSize
	if i >= uint(len(s.words)) {
		return
	}
	s.words[i] &^= 1 << (x % bitWordSize)
}

// Len returns the number of elements in the set.
func (s *Bit) Len() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, word := range s.words {
		total += bits.OnesCount64(word)
	}
	return total
}

// Clear removes all elements from the set but retains its storage.
func (s *Bit) Clear() {
	if s != nil {
		clear(s.words)
	}
}

// All returns an iterator of the elements of s in ascending order.
func (s *Bit) All() iter.Seq[uint] {
	if s == nil {
		return func(yield func(uint) bool) {}
	}
	return func(yield func(uint) bool) {
		curr := uint(0)
		for i := 0; i < len(s.words); i++ {
			if s.words[i] == 0 {
				curr += bitWordSize
				continue
			}
			for j := 0; j < bitWordSize; j++ {
				if s.words[i]&(1<<j) != 0 {
					if !yield(curr) {
						return
					}
				}
				curr++
			}
		}
	}
}
