package physical

import (
	"fmt"

	"github.com/grafana/pickyappend/pkg/engine/internal/catalog"
)

// Scan reads all rows of an unpartitioned relation.
type Scan struct {
	id string

	// Relation is the name of the table to read.
	Relation string
	// Predicates are filters applied to every batch read from the relation.
	// All predicates must hold for a row to be emitted.
	Predicates []Expression
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (s *Scan) ID() string {
	if s.id == "" {
		return fmt.Sprintf("%p", s)
	}
	return s.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Scan) Type() NodeType {
	return NodeTypeScan
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (s *Scan) Accept(v Visitor) error {
	return v.VisitScan(s)
}

func (*Scan) isNode() {}

// PartitionScan reads all rows of a single partition of a relation. The
// predicates may reference parameters, which makes the scan depend on them:
// whenever one of them changes, the scan must be rescanned.
type PartitionScan struct {
	id string

	Relation   string
	Partition  catalog.PartitionID
	Predicates []Expression
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (s *PartitionScan) ID() string {
	if s.id == "" {
		return fmt.Sprintf("%p", s)
	}
	return s.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*PartitionScan) Type() NodeType {
	return NodeTypePartitionScan
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (s *PartitionScan) Accept(v Visitor) error {
	return v.VisitPartitionScan(s)
}

func (*PartitionScan) isNode() {}
