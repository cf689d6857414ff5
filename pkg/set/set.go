package set

import (
	"cmp"
	"iter"
	"slices"
)

// Set holds the modes or kinds a model declares.
type Set[T comparable] map[T]struct{}

func New[T comparable](items ...T) Set[T] {
	s := make(Set[T], len(items))
	s.Add(items...)
	return s
}

func (s Set[T]) Add(items ...T) {
	for _, item := range items {
		s[item] = struct{}{}
	}
}

// Contains reports membership of item.
func (s Set[T]) Contains(item T) bool {
	_, exists := s[item]
	return exists
}

// ContainsAll is true when every item is a member, and for no items.
func (s Set[T]) ContainsAll(items ...T) bool {
	for _, item := range items {
		if !s.Contains(item) {
			return false
		}
	}
	return true
}

func (s Set[T]) Size() int {
	return len(s)
}

// Items yields members in map order; use Sorted for a stable listing.
func (s Set[T]) Items() iter.Seq[T] {
	return func(yield func(T) bool) {
		for item := range s {
			if !yield(item) {
				return
			}
		}
	}
}

// Sorted returns the items of s in ascending order.
func Sorted[T cmp.Ordered](s Set[T]) []T {
	return slices.Sorted(s.Items())
}
