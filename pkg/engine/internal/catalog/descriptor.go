package catalog

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/grafana/pickyappend/pkg/engine/internal/errors"
	"github.com/grafana/pickyappend/pkg/engine/internal/rangeset"
	"github.com/grafana/pickyappend/pkg/engine/internal/types"
)

// PartitionID identifies a partition of one relation. IDs are stable for the
// lifetime of a query and unique within their relation.
type PartitionID string

// Kind is the partitioning scheme of a relation.
type Kind int

const (
	KindInvalid Kind = iota
	KindRange        // Contiguous key intervals, one per partition.
	KindHash         // Key hash modulo the number of partitions.
)

func (k Kind) String() string {
	switch k {
	case KindRange:
		return "RANGE"
	case KindHash:
		return "HASH"
	default:
		return "INVALID"
	}
}

// ParseKind parses the textual representation of a [Kind].
func ParseKind(s string) (Kind, error) {
	switch s {
	case "range", "RANGE":
		return KindRange, nil
	case "hash", "HASH":
		return KindHash, nil
	default:
		return KindInvalid, fmt.Errorf("unknown partitioning kind %q", s)
	}
}

// Partition describes a single partition. Lower and Upper are only meaningful
// for [KindRange] partitions, which hold keys in [Lower, Upper).
type Partition struct {
	ID    PartitionID
	Lower int64
	Upper int64
}

// Descriptor is the ordered, immutable partition table of one relation.
// Partition i of the descriptor is addressed by index i in range sets.
type Descriptor struct {
	relation  string
	keyColumn string
	kind      Kind

	parts []Partition
	index map[PartitionID]int
}

// NewRangeDescriptor returns a descriptor for a range-partitioned relation.
// Partitions must be sorted by their lower bound and must not overlap; gaps
// between partitions are allowed.
func NewRangeDescriptor(relation, keyColumn string, parts []Partition) (*Descriptor, error) {
	for i, p := range parts {
		if p.Lower >= p.Upper {
			return nil, fmt.Errorf("partition %s of %s: empty bounds [%d, %d)", p.ID, relation, p.Lower, p.Upper)
		}
		if i > 0 && parts[i-1].Upper > p.Lower {
			return nil, fmt.Errorf("partition %s of %s overlaps or precedes %s", p.ID, relation, parts[i-1].ID)
		}
	}
	return newDescriptor(relation, keyColumn, KindRange, parts)
}

// NewHashDescriptor returns a descriptor for a hash-partitioned relation.
func NewHashDescriptor(relation, keyColumn string, ids []PartitionID) (*Descriptor, error) {
	parts := make([]Partition, len(ids))
	for i, id := range ids {
		parts[i] = Partition{ID: id}
	}
	return newDescriptor(relation, keyColumn, KindHash, parts)
}

func newDescriptor(relation, keyColumn string, kind Kind, parts []Partition) (*Descriptor, error) {
	if keyColumn == "" {
		return nil, fmt.Errorf("relation %s: missing partition key column", relation)
	}
	index := make(map[PartitionID]int, len(parts))
	for i, p := range parts {
		if _, ok := index[p.ID]; ok {
			return nil, fmt.Errorf("relation %s: duplicate partition %s", relation, p.ID)
		}
		index[p.ID] = i
	}
	return &Descriptor{
		relation:  relation,
		keyColumn: keyColumn,
		kind:      kind,
		parts:     slices.Clone(parts),
		index:     index,
	}, nil
}

func (d *Descriptor) Relation() string  { return d.relation }
func (d *Descriptor) KeyColumn() string { return d.keyColumn }
func (d *Descriptor) Kind() Kind        { return d.kind }

// Len returns the number of partitions.
func (d *Descriptor) Len() int { return len(d.parts) }

// Partitions returns a copy of the partition table.
func (d *Descriptor) Partitions() []Partition { return slices.Clone(d.parts) }

// At returns the ID of partition i. It returns [errors.ErrContractViolation]
// if i is outside of the partition table.
func (d *Descriptor) At(i int) (PartitionID, error) {
	if i < 0 || i >= len(d.parts) {
		return "", fmt.Errorf("%w: partition index %d out of range for %s with %d partitions", errors.ErrContractViolation, i, d.relation, len(d.parts))
	}
	return d.parts[i].ID, nil
}

// IndexOf returns the index of the partition with the given ID.
func (d *Descriptor) IndexOf(id PartitionID) (int, bool) {
	i, ok := d.index[id]
	return i, ok
}

// Route returns the index of the partition that stores rows with the given
// key. The boolean is false if no partition accepts the key.
func (d *Descriptor) Route(key int64) (int, bool) {
	switch d.kind {
	case KindRange:
		i := sort.Search(len(d.parts), func(i int) bool { return d.parts[i].Upper > key })
		if i < len(d.parts) && d.parts[i].Lower <= key {
			return i, true
		}
		return 0, false
	case KindHash:
		if len(d.parts) == 0 {
			return 0, false
		}
		return hashIndex(key, len(d.parts)), true
	default:
		return 0, false
	}
}

// Matching returns the indices of every partition that may hold a key k
// satisfying `k op value`. The result is exact for range partitioning and
// falls back to all partitions wherever hash partitioning cannot narrow it.
func (d *Descriptor) Matching(op types.BinOpKind, value int64) (rangeset.Set, error) {
	n := len(d.parts)

	if op == types.BinOpKindEq {
		if i, ok := d.Route(value); ok {
			return rangeset.Single(i), nil
		}
		return rangeset.Empty(), nil
	}
	if d.kind == KindHash || op == types.BinOpKindNeq {
		return rangeset.Full(n), nil
	}

	search := func(f func(p Partition) bool) int {
		return sort.Search(n, func(i int) bool { return f(d.parts[i]) })
	}

	switch op {
	case types.BinOpKindLt:
		end := search(func(p Partition) bool { return p.Lower >= value })
		return rangeset.Of(rangeset.Range{Lo: 0, Hi: end - 1}), nil
	case types.BinOpKindLte:
		end := search(func(p Partition) bool { return p.Lower > value })
		return rangeset.Of(rangeset.Range{Lo: 0, Hi: end - 1}), nil
	case types.BinOpKindGt:
		// The largest key of a partition is Upper-1.
		start := search(func(p Partition) bool { return p.Upper-1 > value })
		return rangeset.Of(rangeset.Range{Lo: start, Hi: n - 1}), nil
	case types.BinOpKindGte:
		start := search(func(p Partition) bool { return p.Upper > value })
		return rangeset.Of(rangeset.Range{Lo: start, Hi: n - 1}), nil
	default:
		return nil, fmt.Errorf("%w: operator %s is not a comparison", errors.ErrPredicateEvaluation, op)
	}
}

func hashIndex(key int64, n int) int {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	return int(xxhash.Sum64(buf[:]) % uint64(n))
}
