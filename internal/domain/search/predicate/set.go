package predicate

import (
	"slices"
	"strings"

	"github.com/crookcounty/surveysearch/internal/domain/dataset"
)

// Set is a deduplicated collection of fragments keyed on their literal text.
type Set struct {
	seen  map[Fragment]struct{}
	order []Fragment
}

// NewSet creates an empty fragment set.
func NewSet() *Set {
	return &Set{seen: make(map[Fragment]struct{})}
}

// Add inserts f and reports whether it was new.
func (s *Set) Add(f Fragment) bool {
	if _, ok := s.seen[f]; ok {
		return false
	}
	s.seen[f] = struct{}{}
	s.order = append(s.order, f)
	return true
}

// Contains reports whether f is in the set.
func (s *Set) Contains(f Fragment) bool {
	if s == nil {
		return false
	}
	_, ok := s.seen[f]
	return ok
}

// Len returns the number of distinct fragments.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Fragments returns the fragments in insertion order.
func (s *Set) Fragments() []Fragment {
	if s == nil {
		return nil
	}
	return slices.Clone(s.order)
}

// Predicate joins the fragments with OR.
func (s *Set) Predicate() Predicate {
	if s.Len() == 0 {
		return ""
	}
	parts := make([]string, len(s.order))
	for i, f := range s.order {
		parts[i] = string(f)
	}
	return Predicate(strings.Join(parts, " OR "))
}

// ByDataset holds one fragment set per dataset for a single submission.
type ByDataset struct {
	sets map[dataset.ID]*Set
}

// NewByDataset creates empty per-dataset predicates.
func NewByDataset() ByDataset {
	return ByDataset{sets: make(map[dataset.ID]*Set)}
}

// Add inserts f into the set of id.
func (b ByDataset) Add(id dataset.ID, f Fragment) bool {
	s, ok := b.sets[id]
	if !ok {
		s = NewSet()
		b.sets[id] = s
	}
	return s.Add(f)
}

// For returns the OR-joined predicate of id (empty if none).
func (b ByDataset) For(id dataset.ID) Predicate {
	return b.sets[id].Predicate()
}

// Fragments returns the fragments of id.
func (b ByDataset) Fragments(id dataset.ID) []Fragment {
	return b.sets[id].Fragments()
}

// IsEmpty reports whether no dataset has a fragment.
func (b ByDataset) IsEmpty() bool {
	for _, s := range b.sets {
		if s.Len() > 0 {
			return false
		}
	}
	return true
}
