// Package pathset implements the StringSet component of the spec: an
// ordered multiset of path strings supporting add/remove/contains and a
// count per path. The teacher's equivalent (stringv_mem in the original
// C source) used a linear scan over a growable vector; §9's design notes
// call that acceptable for small fan-outs but name a hash-multiset as
// "the modern equivalent [that] preserves the duplicate-detection
// assertion used as an invariant check" — this is that hash-multiset.
package pathset

import "sync"

// Set is a concurrency-safe multiset of path strings: the same path may
// be added more than once, and Remove undoes exactly one Add.
type Set struct {
	mu     sync.Mutex
	counts map[string]int
	order  []string // insertion order, for stable iteration
}

// New returns an empty Set.
func New() *Set {
	return &Set{counts: make(map[string]int)}
}

// Add records one more occurrence of path.
func (s *Set) Add(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts[path] == 0 {
		s.order = append(s.order, path)
	}
	s.counts[path]++
}

// Remove undoes one occurrence of path. It reports false if path was not
// present at all — the caller is expected to treat that as the fatal
// invariant violation described in §7 ("multiset entry missing on
// release... terminate the process"), not as an ordinary error.
func (s *Set) Remove(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.counts[path]
	if !ok || n == 0 {
		return false
	}
	if n == 1 {
		delete(s.counts, path)
		s.removeFromOrder(path)
	} else {
		s.counts[path] = n - 1
	}
	return true
}

func (s *Set) removeFromOrder(path string) {
	for i, p := range s.order {
		if p == path {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// Contains reports whether path has at least one occurrence.
func (s *Set) Contains(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[path] > 0
}

// Count returns the number of occurrences of path.
func (s *Set) Count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[path]
}

// Paths returns a snapshot of every distinct path currently present, in
// insertion order.
func (s *Set) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of distinct paths present (not the total
// occurrence count).
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
