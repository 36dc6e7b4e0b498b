package harness

import (
	"fmt"
	"sort"
)

// Reorderer sorts items by a caller-supplied key so that similarly sized
// inputs end up in the same batch, and later restores downstream results to
// the original submission order. T is the request type, R the result type.
type Reorderer[T, R any] struct {
	reordered []T
	perm      []int // perm[i] = original index of reordered item i
}

// NewReorderer sorts items ascending by key. Items with equal keys keep
// their original relative order so the restore mapping stays well defined.
func NewReorderer[T, R any](items []T, key func(T) int) *Reorderer[T, R] {
	perm := make([]int, len(items))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		return key(items[perm[a]]) < key(items[perm[b]])
	})

	reordered := make([]T, len(items))
	for i, orig := range perm {
		reordered[i] = items[orig]
	}
	return &Reorderer[T, R]{reordered: reordered, perm: perm}
}

// Reordered returns the items in sorted order.
func (r *Reorderer[T, R]) Reordered() []T {
	return r.reordered
}

// Len returns the number of submitted items.
func (r *Reorderer[T, R]) Len() int {
	return len(r.perm)
}

// Restore maps results produced in reordered order back to the original
// submission order. Passing a result count different from the submitted
// item count is a precondition violation and returns an error.
func (r *Reorderer[T, R]) Restore(results []R) ([]R, error) {
	if len(results) != len(r.perm) {
		return nil, fmt.Errorf("restore: got %d results for %d requests", len(results), len(r.perm))
	}
	restored := make([]R, len(results))
	for i, orig := range r.perm {
		restored[orig] = results[i]
	}
	return restored, nil
}
