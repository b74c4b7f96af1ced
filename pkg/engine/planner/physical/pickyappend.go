package physical

import (
	"fmt"

	"github.com/grafana/pickyappend/pkg/engine/internal/catalog"
)

// PickyAppend is an [Append] over the partitions of a relation that only reads
// the partitions which can hold rows matching Predicates for the current
// parameter values. The selection is recomputed whenever the node is
// rescanned.
//
// The children of a PickyAppend are [PartitionScan] nodes, one per partition.
// Their order in the plan is the registration order of the partitions.
type PickyAppend struct {
	id string

	// Relation is the partitioned relation whose partitions are the children.
	Relation string
	// Predicates are used to prune partitions. They usually compare the
	// partition key with a parameter.
	Predicates []Expression
	// Residual is evaluated against every row emitted by a selected
	// partition. Pruning is not exact, so the residual must re-check what
	// the predicates only approximate.
	Residual []Expression
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (p *PickyAppend) ID() string {
	if p.id == "" {
		return fmt.Sprintf("%p", p)
	}
	return p.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*PickyAppend) Type() NodeType {
	return NodeTypePickyAppend
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (p *PickyAppend) Accept(v Visitor) error {
	return v.VisitPickyAppend(p)
}

func (*PickyAppend) isNode() {}

// Partitions returns the partition IDs of the children of p in plan order.
func (p *PickyAppend) Partitions(plan *Plan) ([]catalog.PartitionID, error) {
	children := plan.Children(p)
	ids := make([]catalog.PartitionID, 0, len(children))
	for _, child := range children {
		scan, ok := child.(*PartitionScan)
		if !ok {
			return nil, fmt.Errorf("child %s of picky append is a %s, expected %s", child.ID(), child.Type(), NodeTypePartitionScan)
		}
		ids = append(ids, scan.Partition)
	}
	return ids, nil
}
