package physical

import "github.com/grafana/pickyappend/pkg/engine/internal/util/dag"

// NodeType identifies the kind of a [Node].
type NodeType uint32

const (
	NodeTypeInvalid NodeType = iota
	NodeTypeScan
	NodeTypePartitionScan
	NodeTypeAppend
	NodeTypePickyAppend
	NodeTypeNestedLoopJoin
	NodeTypeFilter
	NodeTypeLimit
)

func (t NodeType) String() string {
	switch t {
	case NodeTypeScan:
		return "Scan"
	case NodeTypePartitionScan:
		return "PartitionScan"
	case NodeTypeAppend:
		return "Append"
	case NodeTypePickyAppend:
		return "PickyAppend"
	case NodeTypeNestedLoopJoin:
		return "NestedLoopJoin"
	case NodeTypeFilter:
		return "Filter"
	case NodeTypeLimit:
		return "Limit"
	default:
		return "Undefined"
	}
}

// Node is the common interface of all nodes of a physical plan.
type Node interface {
	// ID returns a string that uniquely identifies the node in the plan.
	ID() string
	// Type returns the type of the node.
	Type() NodeType
	// Accept dispatches the node to the matching method of v.
	Accept(v Visitor) error

	isNode()
}

// Edge is a directed connection from a parent node to one of its inputs.
type Edge = dag.Edge[Node]

// Plan is a directed acyclic graph of [Node]s. The order in which children are
// added to a parent is preserved and meaningful: it is the order in which
// executors consume their inputs.
type Plan struct {
	graph dag.Graph[Node]
}

// addNode adds n to the plan. Adding the same node twice is a no-op.
func (p *Plan) addNode(n Node) Node { return p.graph.Add(n) }

// addEdge connects e.Parent to e.Child. Both nodes must already be part of
// the plan.
func (p *Plan) addEdge(e Edge) error { return p.graph.AddEdge(e) }

// Nodes returns every node of the plan in insertion order.
func (p *Plan) Nodes() []Node { return p.graph.Nodes() }

// Len returns the number of nodes in the plan.
func (p *Plan) Len() int { return p.graph.Len() }

// Children returns the inputs of n in execution order.
func (p *Plan) Children(n Node) []Node { return p.graph.Children(n) }

// Parents returns the nodes consuming n.
func (p *Plan) Parents(n Node) []Node { return p.graph.Parents(n) }

// Roots returns the nodes without parents.
func (p *Plan) Roots() []Node { return p.graph.Roots() }

// Root returns the single root of the plan.
func (p *Plan) Root() (Node, error) { return p.graph.Root() }

// DFSWalk performs a depth-first walk of the plan starting at n.
func (p *Plan) DFSWalk(n Node, f dag.WalkFunc[Node], order dag.WalkOrder) error {
	return p.graph.Walk(n, f, order)
}

// replaceNode swaps old for replacement, keeping every edge of old.
func (p *Plan) replaceNode(old, replacement Node) { p.graph.Replace(old, replacement) }

// eliminateNode removes n from the plan and connects its parents directly to
// its children.
func (p *Plan) eliminateNode(n Node) { p.graph.Eliminate(n) }
