package physical

import (
	"strings"

	"github.com/grafana/pickyappend/pkg/engine/internal/util/tree"
)

// BuildTree converts a physical plan node and its children into a tree structure
// that can be used for visualization and debugging purposes.
func BuildTree(p *Plan, n Node) *tree.Node {
	return toTree(p, n)
}

func toTree(p *Plan, n Node) *tree.Node {
	root := toTreeNode(n)
	for _, child := range p.Children(n) {
		if ch := toTree(p, child); ch != nil {
			root.AddChild(ch)
		}
	}
	return root
}

// DescribeNode returns the tree node describing n alone, without its
// children.
func DescribeNode(n Node) *tree.Node { return toTreeNode(n) }

func toTreeNode(n Node) *tree.Node {
	b := &treeBuilder{node: tree.NewNode(n.Type().String(), n.ID())}
	// Every node type is handled, visiting cannot fail.
	_ = n.Accept(b)
	return b.node
}

// treeBuilder fills the properties of a tree node from the visited plan node.
type treeBuilder struct {
	node *tree.Node
}

var _ Visitor = (*treeBuilder)(nil)

func (b *treeBuilder) add(props ...tree.Property) { b.node.Add(props...) }

func (b *treeBuilder) addExpressions(key string, exprs []Expression) {
	b.add(tree.Indexed(key, exprs)...)
}

func (b *treeBuilder) VisitScan(n *Scan) error {
	b.add(tree.NewProperty("relation", false, n.Relation))
	b.addExpressions("predicate", n.Predicates)
	return nil
}

func (b *treeBuilder) VisitPartitionScan(n *PartitionScan) error {
	b.add(
		tree.NewProperty("relation", false, n.Relation),
		tree.NewProperty("partition", false, n.Partition),
	)
	b.addExpressions("predicate", n.Predicates)
	return nil
}

func (b *treeBuilder) VisitAppend(n *Append) error {
	if n.Relation != "" {
		b.add(tree.NewProperty("relation", false, n.Relation))
	}
	return nil
}

func (b *treeBuilder) VisitPickyAppend(n *PickyAppend) error {
	b.add(tree.NewProperty("relation", false, n.Relation))
	b.addExpressions("predicate", n.Predicates)
	b.addExpressions("residual", n.Residual)
	return nil
}

func (b *treeBuilder) VisitNestedLoopJoin(n *NestedLoopJoin) error {
	b.add(tree.NewProperty("type", false, n.Kind))
	if len(n.Params) > 0 {
		b.add(tree.NewProperty("params", true, toAnySlice(n.Params)...))
	}
	b.addExpressions("clause", n.Clauses)
	return nil
}

func (b *treeBuilder) VisitFilter(n *Filter) error {
	b.addExpressions("predicate", n.Predicates)
	return nil
}

func (b *treeBuilder) VisitLimit(n *Limit) error {
	b.add(
		tree.NewProperty("offset", false, n.Skip),
		tree.NewProperty("limit", false, n.Fetch),
	)
	return nil
}

func toAnySlice[T any](s []T) []any {
	ret := make([]any, len(s))
	for i := range s {
		ret[i] = s[i]
	}
	return ret
}

// PrintAsTree converts a physical [Plan] into a human-readable tree representation.
// It processes each root node in the plan graph, and returns the combined
// string output of all trees joined by newlines.
func PrintAsTree(p *Plan) string {
	results := make([]string, 0, len(p.Roots()))

	for _, root := range p.Roots() {
		sb := &strings.Builder{}
		printer := tree.NewPrinter(sb)
		node := BuildTree(p, root)
		printer.Print(node)
		results = append(results, sb.String())
	}

	return strings.Join(results, "\n")
}
