package diff

// Set is an unordered collection of unique keys. A snapshot of one feed is a Set.
type Set[K comparable] map[K]struct{}

// NewSet creates a set holding the given keys; duplicates collapse.
func NewSet[K comparable](keys ...K) Set[K] {
	s := make(Set[K], len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Add inserts a key
func (s Set[K]) Add(k K) {
	s[k] = struct{}{}
}

// Remove deletes a key if present
func (s Set[K]) Remove(k K) {
	delete(s, k)
}

// Has reports whether k is in the set
func (s Set[K]) Has(k K) bool {
	_, ok := s[k]
	return ok
}

// Len returns the number of keys
func (s Set[K]) Len() int {
	return len(s)
}

// Difference returns the keys of s that are not in other (s − other).
func (s Set[K]) Difference(other Set[K]) []K {
	var out []K
	for k := range s {
		if _, ok := other[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// Equal reports whether both sets hold exactly the same keys.
func (s Set[K]) Equal(other Set[K]) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if _, ok := other[k]; !ok {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the set.
func (s Set[K]) Clone() Set[K] {
	c := make(Set[K], len(s))
	for k := range s {
		c[k] = struct{}{}
	}
	return c
}

// Keys returns the keys in unspecified order.
func (s Set[K]) Keys() []K {
	keys := make([]K, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	return keys
}
