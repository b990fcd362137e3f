// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sets implement a set type as a `map[T]struct{}` with better ergonomics.
//
// The layout passes use it for visited sets during graph walks, and Sorted gives a deterministic
// iteration order where the walk order is observable.
package sets

import (
	"slices"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"
)

// Set implements a Set for the key type T.
type Set[T comparable] map[T]struct{}

// Make returns an empty Set, optionally reserving space for size elements.
func Make[T comparable](size ...int) Set[T] {
	if len(size) == 0 {
		return make(Set[T])
	}
	return make(Set[T], size[0])
}

// MakeWith creates a Set[T] with the given elements inserted.
func MakeWith[T comparable](elements ...T) Set[T] {
	s := Make[T](len(elements))
	s.Insert(elements...)
	return s
}

// Has returns true if Set s has the given key.
func (s Set[T]) Has(key T) bool {
	_, found := s[key]
	return found
}

// Insert keys into set.
func (s Set[T]) Insert(keys ...T) {
	for _, key := range keys {
		s[key] = struct{}{}
	}
}

// InsertNew inserts key and returns true if it was not yet in the set.
// It is the usual "visit once" check of a graph walk.
func (s Set[T]) InsertNew(key T) bool {
	if s.Has(key) {
		return false
	}
	s[key] = struct{}{}
	return true
}

// Len returns the number of elements.
func (s Set[T]) Len() int { return len(s) }

// Sorted returns the elements of the set in increasing order.
func Sorted[T constraints.Ordered](s Set[T]) []T {
	keys := maps.Keys(s)
	slices.Sort(keys)
	return keys
}
