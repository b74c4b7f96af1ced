package types

import (
	"fmt"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// ParamID identifies an executor parameter slot, written as $n in plans.
// Parameters are set by an enclosing operator (such as a nested loop join
// binding columns of its current outer row) and read by nodes below it.
type ParamID uint32

func (id ParamID) String() string { return fmt.Sprintf("$%d", id) }

// ParamSet is a set of parameter IDs. The zero value is an empty set.
// ParamSet values are immutable; operations return new sets.
type ParamSet struct {
	bits *bitset.BitSet
}

// NewParamSet returns a set containing ids.
func NewParamSet(ids ...ParamID) ParamSet {
	if len(ids) == 0 {
		return ParamSet{}
	}
	bits := bitset.New(0)
	for _, id := range ids {
		bits.Set(uint(id))
	}
	return ParamSet{bits: bits}
}

// IsEmpty reports whether s contains no parameters.
func (s ParamSet) IsEmpty() bool { return s.bits == nil || s.bits.None() }

// Len returns the number of parameters in s.
func (s ParamSet) Len() int {
	if s.bits == nil {
		return 0
	}
	return int(s.bits.Count())
}

// Contains reports whether id is a member of s.
func (s ParamSet) Contains(id ParamID) bool {
	return s.bits != nil && s.bits.Test(uint(id))
}

// Union returns the parameters contained in either s or o.
func (s ParamSet) Union(o ParamSet) ParamSet {
	switch {
	case s.IsEmpty():
		return o
	case o.IsEmpty():
		return s
	}
	return ParamSet{bits: s.bits.Union(o.bits)}
}

// Intersect returns the parameters contained in both s and o.
func (s ParamSet) Intersect(o ParamSet) ParamSet {
	if s.IsEmpty() || o.IsEmpty() {
		return ParamSet{}
	}
	return ParamSet{bits: s.bits.Intersection(o.bits)}
}

// Equal reports whether s and o contain the same parameters.
func (s ParamSet) Equal(o ParamSet) bool {
	if s.IsEmpty() || o.IsEmpty() {
		return s.IsEmpty() == o.IsEmpty()
	}
	return s.bits.Intersection(o.bits).Count() == s.bits.Count() && s.bits.Count() == o.bits.Count()
}

// IDs returns the members of s in ascending order.
func (s ParamSet) IDs() []ParamID {
	if s.IsEmpty() {
		return nil
	}
	ids := make([]ParamID, 0, s.bits.Count())
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		ids = append(ids, ParamID(i))
	}
	return ids
}

func (s ParamSet) String() string {
	ids := s.IDs()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Bindings holds the current values of executor parameters. A single Bindings
// value is shared by every node of one query execution; operators that own a
// parameter overwrite its value before rescanning the nodes depending on it.
type Bindings map[ParamID]Literal

// Lookup returns the value bound to id.
func (b Bindings) Lookup(id ParamID) (Literal, bool) {
	v, ok := b[id]
	return v, ok
}

// Set binds v to id and reports whether the bound value changed.
func (b Bindings) Set(id ParamID, v Literal) bool {
	prev, ok := b[id]
	b[id] = v
	return !ok || !prev.Equal(v)
}
