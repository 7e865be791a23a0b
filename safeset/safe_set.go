// Package safeset provides a generic set that is safe for concurrent use.
package safeset

import "sync"

// SafeSet is a thread-safe set of unique elements of comparable type T.
type SafeSet[T comparable] struct {
	m map[T]struct{}
	sync.RWMutex
}

// NewSafeSet creates a set holding the given values.
//
// Parameters:
//   - values: Initial elements; duplicates are collapsed
//
// Returns:
//   - A new SafeSet
func NewSafeSet[T comparable](values ...T) *SafeSet[T] {
	s := &SafeSet[T]{m: make(map[T]struct{}, len(values))}
	for _, v := range values {
		s.m[v] = struct{}{}
	}

	return s
}

// Size returns the number of elements in the set.
func (s *SafeSet[T]) Size() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.m)
}

// Replace swaps the whole content of the set for values in one step, so
// readers see either the old or the new content.
//
// Parameters:
//   - values: The new elements; none empties the set
func (s *SafeSet[T]) Replace(values ...T) {
	m := make(map[T]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}

	s.Lock()
	defer s.Unlock()
	s.m = m
}

// Values returns the elements in unspecified order.
func (s *SafeSet[T]) Values() []T {
	s.RLock()
	defer s.RUnlock()

	out := make([]T, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}

	return out
}
