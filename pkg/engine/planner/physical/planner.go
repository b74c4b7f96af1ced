package physical

import (
	"errors"
	"fmt"
	"slices"

	"github.com/grafana/pickyappend/pkg/engine/internal/catalog"
	engineerrors "github.com/grafana/pickyappend/pkg/engine/internal/errors"
	"github.com/grafana/pickyappend/pkg/engine/internal/types"
)

// JoinCondition compares a column of the inner relation with a column of the
// outer relation: `inner.InnerColumn Op outer.OuterColumn`.
type JoinCondition struct {
	InnerColumn string
	Op          types.BinOpKind
	OuterColumn string
}

// JoinQuery describes a nested loop join of two relations.
type JoinQuery struct {
	Outer, Inner string
	Kind         JoinType
	On           []JoinCondition

	// Filter holds predicates evaluated on the joined rows.
	Filter []Expression
	// Skip and Fetch limit the joined rows. A Fetch of zero means no limit.
	Skip, Fetch uint32
}

// ScanQuery describes a full read of a single relation.
type ScanQuery struct {
	Relation string
	Filter   []Expression
	Skip     uint32
	Fetch    uint32
}

// Options controls which optimizations [Planner.Optimize] applies.
type Options struct {
	// EnablePickyAppend allows replacing partition appends under nested loop
	// joins with a [PickyAppend].
	EnablePickyAppend bool
}

// Planner creates executable physical plans for queries over the relations
// of a catalog.
//
// Planning is done in two steps:
//  1. Build
//     The query is converted into nodes of a physical plan. Partitioned
//     relations are read with an [Append] over one [PartitionScan] per
//     partition, in partition order.
//  2. Optimize
//     a) Remove filter nodes without predicates.
//     b) Replace the inner Append of a parameterized nested loop join with a
//     [PickyAppend], if enabled.
type Planner struct {
	catalog *catalog.Catalog
	opts    Options
	plan    *Plan
}

// NewPlanner creates a new planner for the tables of the given catalog.
func NewPlanner(c *catalog.Catalog, opts Options) *Planner {
	return &Planner{catalog: c, opts: opts}
}

// BuildScan converts q into a physical plan. The filter is pushed down into
// the scans of the relation.
func (p *Planner) BuildScan(q ScanQuery) (*Plan, error) {
	p.plan = &Plan{}

	table, err := p.catalog.Table(q.Relation)
	if err != nil {
		return nil, err
	}
	if err := checkColumns(table, q.Filter...); err != nil {
		return nil, err
	}

	node := p.processRelation(table, q.Filter)
	if _, err := p.processLimit(node, q.Skip, q.Fetch); err != nil {
		return nil, err
	}
	return p.plan, nil
}

// BuildJoin converts q into a physical plan. Every distinct outer column
// referenced by q.On is bound to a parameter, and the join conditions are
// pushed down into the scans of the inner relation.
func (p *Planner) BuildJoin(q JoinQuery) (*Plan, error) {
	p.plan = &Plan{}

	if q.Kind == JoinTypeFull {
		return nil, fmt.Errorf("%s nested loop join: %w", q.Kind, engineerrors.ErrNotImplemented)
	}

	outer, err := p.catalog.Table(q.Outer)
	if err != nil {
		return nil, err
	}
	inner, err := p.catalog.Table(q.Inner)
	if err != nil {
		return nil, err
	}
	for _, f := range inner.Schema.Fields() {
		if outer.Schema.HasField(f.Name) {
			return nil, fmt.Errorf("column %s exists in both %s and %s", f.Name, q.Outer, q.Inner)
		}
	}

	join := &NestedLoopJoin{Kind: q.Kind}
	params := make(map[string]types.ParamID)
	for _, cond := range q.On {
		if !cond.Op.IsComparison() {
			return nil, fmt.Errorf("join condition on %s: %s is not a comparison", cond.InnerColumn, cond.Op)
		}
		if !outer.Schema.HasField(cond.OuterColumn) {
			return nil, fmt.Errorf("column %s not found in %s", cond.OuterColumn, q.Outer)
		}
		if !inner.Schema.HasField(cond.InnerColumn) {
			return nil, fmt.Errorf("column %s not found in %s", cond.InnerColumn, q.Inner)
		}

		id, ok := params[cond.OuterColumn]
		if !ok {
			id = types.ParamID(len(params))
			params[cond.OuterColumn] = id
			join.Params = append(join.Params, ParamBinding{Param: id, OuterColumn: cond.OuterColumn})
		}
		join.Clauses = append(join.Clauses, &BinaryExpr{
			Left:  &ColumnExpr{Name: cond.InnerColumn},
			Right: &ParamExpr{ID: id},
			Op:    cond.Op,
		})
	}

	p.plan.addNode(join)
	outerNode := p.processRelation(outer, nil)
	innerNode := p.processRelation(inner, join.Clauses)
	for _, child := range []Node{outerNode, innerNode} {
		if err := p.plan.addEdge(Edge{Parent: join, Child: child}); err != nil {
			return nil, err
		}
	}

	for _, name := range ColumnsOf(q.Filter...) {
		if !outer.Schema.HasField(name) && !inner.Schema.HasField(name) {
			return nil, fmt.Errorf("column %s not found in %s or %s", name, q.Outer, q.Inner)
		}
	}
	// An empty filter is removed again by the optimizer.
	node, err := p.processFilter(join, q.Filter)
	if err != nil {
		return nil, err
	}
	if _, err := p.processLimit(node, q.Skip, q.Fetch); err != nil {
		return nil, err
	}
	return p.plan, nil
}

// processRelation converts a read of table into a [Scan], or into an
// [Append] of [PartitionScan] nodes if the table is partitioned.
func (p *Planner) processRelation(table *catalog.Table, predicates []Expression) Node {
	if !table.IsPartitioned() {
		return p.plan.addNode(&Scan{
			Relation:   table.Name,
			Predicates: slices.Clone(predicates),
		})
	}

	node := p.plan.addNode(&Append{Relation: table.Name})
	for _, part := range table.Partitioning.Partitions() {
		scan := p.plan.addNode(&PartitionScan{
			Relation:   table.Name,
			Partition:  part.ID,
			Predicates: slices.Clone(predicates),
		})
		// Both nodes are new, the edge is always valid.
		_ = p.plan.addEdge(Edge{Parent: node, Child: scan})
	}
	return node
}

// processFilter adds a [Filter] above child.
func (p *Planner) processFilter(child Node, predicates []Expression) (Node, error) {
	node := p.plan.addNode(&Filter{Predicates: predicates})
	if err := p.plan.addEdge(Edge{Parent: node, Child: child}); err != nil {
		return nil, err
	}
	return node, nil
}

// processLimit adds a [Limit] above child if there is anything to limit.
func (p *Planner) processLimit(child Node, skip, fetch uint32) (Node, error) {
	if skip == 0 && fetch == 0 {
		return child, nil
	}
	node := p.plan.addNode(&Limit{Skip: skip, Fetch: fetch})
	if err := p.plan.addEdge(Edge{Parent: node, Child: child}); err != nil {
		return nil, err
	}
	return node, nil
}

func checkColumns(table *catalog.Table, exprs ...Expression) error {
	for _, name := range ColumnsOf(exprs...) {
		if !table.Schema.HasField(name) {
			return fmt.Errorf("column %s not found in %s", name, table.Name)
		}
	}
	return nil
}

// Optimize applies the optimization passes enabled for the planner to plan.
func (p *Planner) Optimize(plan *Plan) (*Plan, error) {
	roots := plan.Roots()
	if len(roots) != 1 {
		return nil, errors.New("physical plan must only have exactly one root node")
	}

	optimizations := []*optimization{
		newOptimization("RemoveNoopFilter", plan).withRules(
			&removeNoopFilter{plan: plan},
		),
	}
	if p.opts.EnablePickyAppend {
		optimizations = append(optimizations, newOptimization("PickyAppend", plan).withRules(
			&pickyAppendRule{plan: plan},
		))
	}

	// The root itself may be removed by an optimization, so the root is
	// looked up again before every pass.
	for _, o := range optimizations {
		root, err := plan.Root()
		if err != nil {
			return nil, err
		}
		newOptimizer(plan, []*optimization{o}).optimize(root)
	}
	return plan, nil
}
