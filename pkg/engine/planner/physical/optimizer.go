package physical

import (
	"slices"
)

// A rule is a tranformation that can be applied on a Node.
type rule interface {
	// apply tries to apply the transformation on the node.
	// It returns a boolean indicating whether the transformation has been applied.
	apply(Node) bool
}

// removeNoopFilter is a rule that removes Filter nodes without predicates.
type removeNoopFilter struct {
	plan *Plan
}

// apply implements rule.
func (r *removeNoopFilter) apply(node Node) bool {
	changed := false
	switch node := node.(type) {
	case *Filter:
		if len(node.Predicates) == 0 {
			r.plan.eliminateNode(node)
			changed = true
		}
	}
	return changed
}

var _ rule = (*removeNoopFilter)(nil)

// pickyAppendRule replaces the inner [Append] of a [NestedLoopJoin] with a
// [PickyAppend] when the Append reads the partitions of a relation. The join
// clauses become both the pruning predicates and the residual of the
// PickyAppend, and are removed from the partition scans.
//
// FULL joins and joins without clauses are left untouched.
type pickyAppendRule struct {
	plan *Plan
}

// apply implements rule.
func (r *pickyAppendRule) apply(node Node) bool {
	join, ok := node.(*NestedLoopJoin)
	if !ok || join.Kind == JoinTypeFull || len(join.Clauses) == 0 {
		return false
	}

	children := r.plan.Children(join)
	if len(children) != 2 {
		return false
	}
	inner, ok := children[1].(*Append)
	if !ok || inner.Relation == "" {
		return false
	}

	scans := r.plan.Children(inner)
	for _, child := range scans {
		scan, ok := child.(*PartitionScan)
		if !ok || scan.Relation != inner.Relation {
			return false
		}
	}

	for _, child := range scans {
		scan := child.(*PartitionScan)
		scan.Predicates = slices.DeleteFunc(scan.Predicates, func(e Expression) bool {
			return slices.Contains(join.Clauses, e)
		})
	}

	r.plan.replaceNode(inner, &PickyAppend{
		id:         inner.id,
		Relation:   inner.Relation,
		Predicates: slices.Clone(join.Clauses),
		Residual:   slices.Clone(join.Clauses),
	})
	return true
}

var _ rule = (*pickyAppendRule)(nil)

// optimization represents a single optimization pass and can hold multiple rules.
type optimization struct {
	plan  *Plan
	name  string
	rules []rule
}

func newOptimization(name string, plan *Plan) *optimization {
	return &optimization{
		name: name,
		plan: plan,
	}
}

func (o *optimization) withRules(rules ...rule) *optimization {
	o.rules = append(o.rules, rules...)
	return o
}

func (o *optimization) optimize(node Node) {
	iterations, maxIterations := 0, 3

	for iterations < maxIterations {
		iterations++

		if !o.applyRules(node) {
			// Stop immediately if an optimization pass produced no changes.
			break
		}
	}
}

func (o *optimization) applyRules(node Node) bool {
	anyChanged := false

	for _, child := range o.plan.Children(node) {
		changed := o.applyRules(child)
		if changed {
			anyChanged = true
		}
	}

	for _, rule := range o.rules {
		changed := rule.apply(node)
		if changed {
			anyChanged = true
		}
	}

	return anyChanged
}

// The optimizer can optimize physical plans using the provided optimization passes.
type optimizer struct {
	plan   *Plan
	passes []*optimization
}

func newOptimizer(plan *Plan, passes []*optimization) *optimizer {
	return &optimizer{plan: plan, passes: passes}
}

func (o *optimizer) optimize(node Node) {
	for _, pass := range o.passes {
		pass.optimize(node)
	}
}
