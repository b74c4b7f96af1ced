package physical

import "fmt"

// Append concatenates the output of all its children, in the order the
// children were added to the plan. When the children are the partitions of a
// relation, Relation holds its name.
type Append struct {
	id string

	Relation string
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (a *Append) ID() string {
	if a.id == "" {
		return fmt.Sprintf("%p", a)
	}
	return a.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Append) Type() NodeType {
	return NodeTypeAppend
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (a *Append) Accept(v Visitor) error {
	return v.VisitAppend(a)
}

func (*Append) isNode() {}
