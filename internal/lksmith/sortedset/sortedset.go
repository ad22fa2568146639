// Package sortedset implements a small ordered set backed by a sorted slice.
//
// Lock records point to a handful of predecessors each, so compact sorted
// storage beats a hash table here: lookups are logarithmic, iteration is in
// key order, and the memory overhead per record is a single slice header.
package sortedset

import (
	"cmp"
	"slices"
)

// Set is an ordered set of comparable handles stored in a sorted slice.
//
// The zero value is an empty set ready for use. Set is not safe for
// concurrent use; callers serialize access (the registry lock does this
// for predecessor sets).
type Set[K cmp.Ordered] struct {
	elems []K
}

// Insert adds k to the set, keeping the slice sorted.
//
// Insert is idempotent: if k is already present the set is unchanged.
// It reports whether k was actually inserted.
func (s *Set[K]) Insert(k K) bool {
	i, found := slices.BinarySearch(s.elems, k)
	if found {
		return false
	}
	s.elems = slices.Insert(s.elems, i, k)
	return true
}

// Remove deletes the single occurrence of k if present.
//
// Removing an absent element is a no-op. It reports whether k was removed.
func (s *Set[K]) Remove(k K) bool {
	i, found := slices.BinarySearch(s.elems, k)
	if !found {
		return false
	}
	s.elems = slices.Delete(s.elems, i, i+1)
	return true
}

// Contains reports whether k is in the set. Logarithmic.
func (s *Set[K]) Contains(k K) bool {
	_, found := slices.BinarySearch(s.elems, k)
	return found
}

// Len returns the number of elements in the set.
func (s *Set[K]) Len() int {
	return len(s.elems)
}

// Elems returns the underlying sorted slice.
//
// The slice is shared with the set; callers must not modify it and must
// not hold it across mutations.
func (s *Set[K]) Elems() []K {
	return s.elems
}
