package chains

import "sort"

// Set is an immutable, sorted set of chain identifiers.
type Set struct {
	names []string
	index map[string]struct{}
}

// NewSet builds a Set from names, dropping empty and duplicate entries.
func NewSet(names []string) *Set {
	s := &Set{
		names: make([]string, 0, len(names)),
		index: make(map[string]struct{}, len(names)),
	}
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, dup := s.index[n]; dup {
			continue
		}
		s.index[n] = struct{}{}
		s.names = append(s.names, n)
	}
	sort.Strings(s.names)
	return s
}

// Names returns a sorted copy of the chains in the set.
func (s *Set) Names() []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Contains reports whether chain is in the set.
func (s *Set) Contains(chain string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[chain]
	return ok
}

// Len returns the number of chains in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}
