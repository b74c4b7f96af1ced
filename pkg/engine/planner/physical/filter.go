package physical

import "fmt"

// Filter represents a filtering operation in the physical plan.
// It contains a list of predicates (conditional expressions) that are later
// evaluated against the input rows. Rows for which all predicates hold are
// emitted.
type Filter struct {
	id string

	Predicates []Expression
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (f *Filter) ID() string {
	if f.id == "" {
		return fmt.Sprintf("%p", f)
	}
	return f.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Filter) Type() NodeType {
	return NodeTypeFilter
}

// Accept implements the [Node] interface.
// Dispatches itself to the provided [Visitor] v
func (f *Filter) Accept(v Visitor) error {
	return v.VisitFilter(f)
}

func (*Filter) isNode() {}
