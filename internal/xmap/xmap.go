// Package xmap provides a small generic, insertion-ordered set, built on
// golang.org/x/exp/slices the way the wider workspace already does (see
// floater's use of slices for its own small collection helpers). It exists
// because Go's built-in map has randomized iteration order, and context
// cancellation fan-out (coop.cancelCtx.children) wants a deterministic,
// reproducible order so tests asserting on propagation sequence aren't
// flaky.
package xmap

import "golang.org/x/exp/slices"

// Set is an insertion-ordered set of comparable keys.
type Set[K comparable] struct {
	index map[K]int
	order []K
}

// NewSet returns an empty Set.
func NewSet[K comparable]() *Set[K] {
	return &Set[K]{index: make(map[K]int)}
}

// Add inserts k if it is not already present.
func (s *Set[K]) Add(k K) {
	if _, ok := s.index[k]; ok {
		return
	}
	s.index[k] = len(s.order)
	s.order = append(s.order, k)
}

// Delete removes k, if present.
func (s *Set[K]) Delete(k K) {
	i, ok := s.index[k]
	if !ok {
		return
	}
	delete(s.index, k)
	s.order = slices.Delete(s.order, i, i+1)
	for j := i; j < len(s.order); j++ {
		s.index[s.order[j]] = j
	}
}

// Len returns the number of elements in the set.
func (s *Set[K]) Len() int { return len(s.order) }

// Has reports whether k is in the set.
func (s *Set[K]) Has(k K) bool {
	_, ok := s.index[k]
	return ok
}

// Values returns a copy of the set's elements in insertion order.
func (s *Set[K]) Values() []K {
	return slices.Clone(s.order)
}
