package physical

import (
	"fmt"

	"github.com/grafana/pickyappend/pkg/engine/internal/types"
)

// JoinType is the kind of join performed by a [NestedLoopJoin].
type JoinType uint8

const (
	JoinTypeInner JoinType = iota
	JoinTypeLeft
	JoinTypeFull
)

// String returns the string representation of the [JoinType].
func (t JoinType) String() string {
	switch t {
	case JoinTypeInner:
		return "INNER"
	case JoinTypeLeft:
		return "LEFT"
	case JoinTypeFull:
		return "FULL"
	default:
		return "UNDEFINED"
	}
}

// ParamBinding assigns the value of an outer column to a parameter.
type ParamBinding struct {
	Param       types.ParamID
	OuterColumn string
}

func (b ParamBinding) String() string {
	return fmt.Sprintf("%s=%s", b.Param, b.OuterColumn)
}

// NestedLoopJoin joins its first child (the outer side) with its second child
// (the inner side). For every outer row, the join binds Params from the row,
// rescans the inner side and pairs the outer row with every inner row it
// returns.
type NestedLoopJoin struct {
	id string

	Kind JoinType
	// Params are bound from the current outer row before every inner rescan.
	Params []ParamBinding
	// Clauses are the join conditions. They reference inner columns and
	// Params, and are evaluated by the inner side.
	Clauses []Expression
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (j *NestedLoopJoin) ID() string {
	if j.id == "" {
		return fmt.Sprintf("%p", j)
	}
	return j.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*NestedLoopJoin) Type() NodeType {
	return NodeTypeNestedLoopJoin
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (j *NestedLoopJoin) Accept(v Visitor) error {
	return v.VisitNestedLoopJoin(j)
}

func (*NestedLoopJoin) isNode() {}
