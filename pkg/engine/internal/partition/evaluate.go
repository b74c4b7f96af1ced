// Package partition selects the partitions of a relation that can hold rows
// matching a set of predicates.
package partition

import (
	"fmt"
	"math"

	"github.com/grafana/pickyappend/pkg/engine/internal/catalog"
	"github.com/grafana/pickyappend/pkg/engine/internal/errors"
	"github.com/grafana/pickyappend/pkg/engine/internal/rangeset"
	"github.com/grafana/pickyappend/pkg/engine/internal/types"
	"github.com/grafana/pickyappend/pkg/engine/planner/physical"
)

// EvaluateRange returns the indices of the partitions of desc that may contain
// rows for which expr holds, given the parameter values in bindings.
//
// The result is sound but not necessarily tight: a partition is only left out
// if no row in it can satisfy expr. Sub-expressions that do not constrain the
// partition key select every partition.
func EvaluateRange(expr physical.Expression, bindings types.Bindings, desc *catalog.Descriptor) (rangeset.Set, error) {
	full := rangeset.Full(desc.Len())

	switch expr := expr.(type) {
	case *physical.BinaryExpr:
		switch expr.Op {
		case types.BinOpKindAnd:
			return evaluateBoth(expr, bindings, desc, rangeset.Set.Intersect)
		case types.BinOpKindOr:
			return evaluateBoth(expr, bindings, desc, rangeset.Set.Union)
		}
		if expr.Op.IsComparison() {
			return evaluateComparison(expr, bindings, desc)
		}
		return nil, fmt.Errorf("%w: unsupported operator %s in %s", errors.ErrPredicateEvaluation, expr.Op, expr)

	case *physical.UnaryExpr:
		// NOT flips exact ranges into their complement, which is not exact
		// for partitions. Keep everything.
		return full, nil

	case *physical.LiteralExpr:
		if expr.IsNull() {
			return rangeset.Empty(), nil
		}
		if b, ok := expr.Bool(); ok && !b {
			return rangeset.Empty(), nil
		}
		return full, nil

	case *physical.ColumnExpr, *physical.ParamExpr:
		return full, nil

	default:
		return nil, fmt.Errorf("%w: unsupported expression %T", errors.ErrPredicateEvaluation, expr)
	}
}

func evaluateBoth(expr *physical.BinaryExpr, bindings types.Bindings, desc *catalog.Descriptor, combine func(a, b rangeset.Set) rangeset.Set) (rangeset.Set, error) {
	left, err := EvaluateRange(expr.Left, bindings, desc)
	if err != nil {
		return nil, err
	}
	right, err := EvaluateRange(expr.Right, bindings, desc)
	if err != nil {
		return nil, err
	}
	return combine(left, right), nil
}

// evaluateComparison handles `key op value` and `value op key`, where value
// is a literal or a parameter.
func evaluateComparison(expr *physical.BinaryExpr, bindings types.Bindings, desc *catalog.Descriptor) (rangeset.Set, error) {
	op, other := expr.Op, expr.Right
	switch {
	case isKey(expr.Left, desc):
		// key op other
	case isKey(expr.Right, desc):
		op, other = op.Mirror(), expr.Left
	default:
		return rangeset.Full(desc.Len()), nil
	}

	value, ok, err := resolve(other, bindings)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", expr, err)
	}
	if !ok {
		// Compared with a column: any partition may match.
		return rangeset.Full(desc.Len()), nil
	}

	if value.IsNull() {
		return rangeset.Empty(), nil
	}
	if f, isFloat := value.Float(); isFloat {
		return evaluateFloat(op, f, desc)
	}
	key, isInt := value.Int()
	if !isInt {
		return nil, fmt.Errorf("%w: %s: partition key %s compared with %s value %s", errors.ErrPredicateEvaluation, expr, desc.KeyColumn(), value.Type(), value)
	}
	return desc.Matching(op, key)
}

// Integer keys are compared with floats as float64, which is exact below
// 2^53.
const maxExactFloat = 1 << 53

// evaluateFloat selects the partitions for `key op f` by moving f to the
// nearest integer bound that keeps the comparison equivalent for integer keys.
func evaluateFloat(op types.BinOpKind, f float64, desc *catalog.Descriptor) (rangeset.Set, error) {
	if math.IsNaN(f) || math.Abs(f) >= maxExactFloat {
		return rangeset.Full(desc.Len()), nil
	}

	switch op {
	case types.BinOpKindEq:
		if f != math.Trunc(f) {
			return rangeset.Empty(), nil
		}
		return desc.Matching(op, int64(f))
	case types.BinOpKindLt, types.BinOpKindGte:
		return desc.Matching(op, int64(math.Ceil(f)))
	case types.BinOpKindLte, types.BinOpKindGt:
		return desc.Matching(op, int64(math.Floor(f)))
	default:
		return desc.Matching(op, int64(f))
	}
}

func isKey(expr physical.Expression, desc *catalog.Descriptor) bool {
	col, ok := expr.(*physical.ColumnExpr)
	return ok && col.Name == desc.KeyColumn()
}

// resolve returns the value of a literal or of a bound parameter. The boolean
// is false for expressions that have no value independent of a row.
func resolve(expr physical.Expression, bindings types.Bindings) (types.Literal, bool, error) {
	switch expr := expr.(type) {
	case *physical.LiteralExpr:
		return expr.Literal, true, nil
	case *physical.ParamExpr:
		v, ok := bindings.Lookup(expr.ID)
		if !ok {
			return types.Literal{}, false, fmt.Errorf("%w: parameter %s is not bound", errors.ErrPredicateEvaluation, expr.ID)
		}
		return v, true, nil
	default:
		return types.Literal{}, false, nil
	}
}
