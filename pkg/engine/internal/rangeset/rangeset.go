// Package rangeset implements sets of partition indices represented as sorted,
// disjoint, closed intervals.
package rangeset

import (
	"fmt"
	"slices"
	"strings"
)

// Range is the closed interval [Lo, Hi] of partition indices.
type Range struct {
	Lo, Hi int
}

// Len returns the number of indices in r.
func (r Range) Len() int { return r.Hi - r.Lo + 1 }

func (r Range) String() string {
	if r.Lo == r.Hi {
		return fmt.Sprintf("[%d]", r.Lo)
	}
	return fmt.Sprintf("[%d-%d]", r.Lo, r.Hi)
}

// Set is a normalized union of ranges: sorted by Lo, non-overlapping and
// non-adjacent. A nil or empty Set is valid and contains no indices.
//
// Sets returned by this package are never modified in place; callers may
// share them freely.
type Set []Range

// Empty returns the set without any indices.
func Empty() Set { return nil }

// Full returns the set [0, n-1], or the empty set when n <= 0.
func Full(n int) Set {
	if n <= 0 {
		return nil
	}
	return Set{{Lo: 0, Hi: n - 1}}
}

// Single returns the set containing only i.
func Single(i int) Set { return Set{{Lo: i, Hi: i}} }

// Of builds a normalized set from arbitrary ranges. Ranges with Lo > Hi are
// dropped.
func Of(ranges ...Range) Set {
	out := make(Set, 0, len(ranges))
	for _, r := range ranges {
		if r.Lo <= r.Hi {
			out = append(out, r)
		}
	}
	return out.normalize()
}

func (s Set) normalize() Set {
	if len(s) == 0 {
		return nil
	}
	slices.SortFunc(s, func(a, b Range) int { return a.Lo - b.Lo })

	// Merge overlapping or adjacent ranges: [0-3], [2-7], [8-9] => [0-9].
	res := s[:1]
	for _, curr := range s[1:] {
		last := &res[len(res)-1]
		if curr.Lo > last.Hi+1 {
			res = append(res, curr)
		} else if curr.Hi > last.Hi {
			last.Hi = curr.Hi
		}
	}
	return res
}

// IsEmpty reports whether s contains no indices.
func (s Set) IsEmpty() bool { return len(s) == 0 }

// Len returns the number of indices in s.
func (s Set) Len() int {
	n := 0
	for _, r := range s {
		n += r.Len()
	}
	return n
}

// Contains reports whether i is a member of s.
func (s Set) Contains(i int) bool {
	idx, found := slices.BinarySearchFunc(s, i, func(r Range, i int) int {
		switch {
		case r.Hi < i:
			return -1
		case r.Lo > i:
			return 1
		default:
			return 0
		}
	})
	return found && idx < len(s)
}

// Intersect returns the indices present in both s and o.
func (s Set) Intersect(o Set) Set {
	var (
		res  Set
		i, j int
	)
	for i < len(s) && j < len(o) {
		lo, hi := max(s[i].Lo, o[j].Lo), min(s[i].Hi, o[j].Hi)
		if lo <= hi {
			res = append(res, Range{Lo: lo, Hi: hi})
		}
		// Advance whichever range ends first; the other may still overlap the
		// next range of its counterpart.
		if s[i].Hi < o[j].Hi {
			i++
		} else {
			j++
		}
	}
	return res
}

// Union returns the indices present in s or o.
func (s Set) Union(o Set) Set {
	merged := make(Set, 0, len(s)+len(o))
	merged = append(merged, s...)
	merged = append(merged, o...)
	return merged.normalize()
}

// Clamp restricts s to [0, n-1].
func (s Set) Clamp(n int) Set { return s.Intersect(Full(n)) }

// Indices returns every index of s in ascending order.
func (s Set) Indices() []int {
	out := make([]int, 0, s.Len())
	for _, r := range s {
		for i := r.Lo; i <= r.Hi; i++ {
			out = append(out, i)
		}
	}
	return out
}

// Equal reports whether s and o contain the same indices.
func (s Set) Equal(o Set) bool {
	return slices.Equal(s, o)
}

func (s Set) String() string {
	if len(s) == 0 {
		return "{}"
	}
	parts := make([]string, len(s))
	for i, r := range s {
		parts[i] = r.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
