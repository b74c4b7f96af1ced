package physical

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/pickyappend/pkg/engine/internal/types"
	"github.com/grafana/pickyappend/pkg/engine/internal/util/dag"
)

func TestPlan_AddEdge(t *testing.T) {
	plan := &Plan{}
	a := plan.addNode(&Append{id: "append"})
	s1 := plan.addNode(&PartitionScan{id: "s1"})
	s2 := plan.addNode(&PartitionScan{id: "s2"})

	require.NoError(t, plan.addEdge(Edge{Parent: a, Child: s2}))
	require.NoError(t, plan.addEdge(Edge{Parent: a, Child: s1}))
	require.Equal(t, []Node{s2, s1}, plan.Children(a), "children keep insertion order")

	require.Error(t, plan.addEdge(Edge{Parent: a, Child: s1}), "duplicate edge")
	require.Error(t, plan.addEdge(Edge{Parent: a, Child: a}), "self edge")
	require.Error(t, plan.addEdge(Edge{Parent: a, Child: &Scan{id: "other"}}), "unknown child")
	require.Error(t, plan.addEdge(Edge{Parent: a, Child: nil}))

	root, err := plan.Root()
	require.NoError(t, err)
	require.Equal(t, a, root)
}

func TestPlan_Root(t *testing.T) {
	plan := &Plan{}
	_, err := plan.Root()
	require.Error(t, err)

	plan.addNode(&Scan{id: "a"})
	plan.addNode(&Scan{id: "b"})
	_, err = plan.Root()
	require.Error(t, err)
	require.Len(t, plan.Roots(), 2)
}

func TestPlan_ReplaceNode(t *testing.T) {
	plan := &Plan{}
	join := plan.addNode(&NestedLoopJoin{id: "join"})
	outer := plan.addNode(&Scan{id: "outer"})
	inner := plan.addNode(&Append{id: "inner"})
	part := plan.addNode(&PartitionScan{id: "part"})
	_ = plan.addEdge(Edge{Parent: join, Child: outer})
	_ = plan.addEdge(Edge{Parent: join, Child: inner})
	_ = plan.addEdge(Edge{Parent: inner, Child: part})

	picky := &PickyAppend{id: "picky"}
	plan.replaceNode(inner, picky)

	require.Equal(t, []Node{outer, picky}, plan.Children(join))
	require.Equal(t, []Node{part}, plan.Children(picky))
	require.Equal(t, []Node{join}, plan.Parents(picky))
	require.Equal(t, []Node{picky}, plan.Parents(part))
	require.Empty(t, plan.Children(inner))
	require.NotContains(t, plan.Nodes(), inner)
	require.Equal(t, 4, plan.Len())
}

func TestPlan_EliminateNode(t *testing.T) {
	plan := &Plan{}
	limit := plan.addNode(&Limit{id: "limit"})
	filter := plan.addNode(&Filter{id: "filter"})
	scan := plan.addNode(&Scan{id: "scan"})
	_ = plan.addEdge(Edge{Parent: limit, Child: filter})
	_ = plan.addEdge(Edge{Parent: filter, Child: scan})

	plan.eliminateNode(filter)

	require.Equal(t, []Node{scan}, plan.Children(limit))
	require.Equal(t, []Node{limit}, plan.Parents(scan))
	require.Equal(t, 2, plan.Len())
}

func TestExpressions(t *testing.T) {
	expr := &BinaryExpr{
		Left: &BinaryExpr{
			Left:  &ColumnExpr{Name: "key"},
			Right: &ParamExpr{ID: 1},
			Op:    types.BinOpKindGte,
		},
		Right: &UnaryExpr{
			Left: &BinaryExpr{
				Left:  &ColumnExpr{Name: "item"},
				Right: &ColumnExpr{Name: "key"},
				Op:    types.BinOpKindEq,
			},
			Op: types.UnaryOpKindNot,
		},
		Op: types.BinOpKindAnd,
	}

	require.Equal(t, "AND(GTE(key, $1), NOT(EQ(item, key)))", expr.String())
	require.Equal(t, []string{"key", "item"}, ColumnsOf(expr))
	require.True(t, ParamsOf(expr).Equal(types.NewParamSet(1)))
	require.True(t, ParamsOf(NewLiteral(3)).IsEmpty())
	require.Equal(t, "3", NewLiteral(3).String())
}

func TestPlan_DFSWalk(t *testing.T) {
	plan := &Plan{}
	limit := plan.addNode(&Limit{id: "limit"})
	join := plan.addNode(&NestedLoopJoin{id: "join"})
	outer := plan.addNode(&Scan{id: "outer"})
	inner := plan.addNode(&Scan{id: "inner"})
	_ = plan.addEdge(Edge{Parent: limit, Child: join})
	_ = plan.addEdge(Edge{Parent: join, Child: outer})
	_ = plan.addEdge(Edge{Parent: join, Child: inner})

	var ids []string
	err := plan.DFSWalk(limit, func(n Node) error {
		ids = append(ids, n.ID())
		return nil
	}, dag.PostOrderWalk)
	require.NoError(t, err)
	require.Equal(t, []string{"outer", "inner", "join", "limit"}, ids)
}
