package executor

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/grafana/pickyappend/pkg/engine/internal/errors"
	"github.com/grafana/pickyappend/pkg/engine/internal/types"
	"github.com/grafana/pickyappend/pkg/engine/planner/physical"
)

// expressionEvaluator evaluates expressions against records. Parameters are
// resolved from the bindings of the running query.
type expressionEvaluator struct {
	bindings types.Bindings
	alloc    memory.Allocator
}

func newExpressionEvaluator(bindings types.Bindings, alloc memory.Allocator) *expressionEvaluator {
	return &expressionEvaluator{bindings: bindings, alloc: alloc}
}

// check reports whether expr can be evaluated, without evaluating it.
func (e *expressionEvaluator) check(expr physical.Expression) error {
	switch expr := expr.(type) {
	case *physical.LiteralExpr, *physical.ColumnExpr, *physical.ParamExpr:
		return nil
	case *physical.UnaryExpr:
		if expr.Op != types.UnaryOpKindNot {
			return fmt.Errorf("%w: unary operator %s", errors.ErrNotImplemented, expr.Op)
		}
		return e.check(expr.Left)
	case *physical.BinaryExpr:
		if !expr.Op.IsComparison() && expr.Op != types.BinOpKindAnd && expr.Op != types.BinOpKindOr {
			return fmt.Errorf("%w: binary operator %s", errors.ErrNotImplemented, expr.Op)
		}
		if err := e.check(expr.Left); err != nil {
			return err
		}
		return e.check(expr.Right)
	}
	return fmt.Errorf("%w: expression %T", errors.ErrNotImplemented, expr)
}

func (e *expressionEvaluator) eval(expr physical.Expression, input arrow.Record) (ColumnVector, error) {
	switch expr := expr.(type) {
	case *physical.LiteralExpr:
		return &Scalar{value: expr.Literal, rows: input.NumRows()}, nil

	case *physical.ParamExpr:
		v, ok := e.bindings.Lookup(expr.ID)
		if !ok {
			return nil, fmt.Errorf("%w: parameter %s is not bound", errors.ErrKey, expr.ID)
		}
		return &Scalar{value: v, rows: input.NumRows()}, nil

	case *physical.ColumnExpr:
		idx := input.Schema().FieldIndices(expr.Name)
		if len(idx) == 0 {
			return nil, fmt.Errorf("%w: column %s not found", errors.ErrKey, expr.Name)
		}
		return &Array{array: input.Column(idx[0]), rows: input.NumRows()}, nil

	case *physical.UnaryExpr:
		lhs, err := e.eval(expr.Left, input)
		if err != nil {
			return nil, err
		}
		defer lhs.Release()

		if expr.Op != types.UnaryOpKindNot {
			return nil, fmt.Errorf("%w: unary operator %s", errors.ErrNotImplemented, expr.Op)
		}
		return e.buildBool(lhs.Len(), func(i int) (bool, bool, error) {
			v := lhs.Value(i)
			if v.IsNull() {
				return false, false, nil
			}
			b, ok := v.Bool()
			if !ok {
				return false, false, fmt.Errorf("%w: NOT on %s value", errors.ErrType, v.Type())
			}
			return !b, true, nil
		})

	case *physical.BinaryExpr:
		lhs, err := e.eval(expr.Left, input)
		if err != nil {
			return nil, err
		}
		defer lhs.Release()
		rhs, err := e.eval(expr.Right, input)
		if err != nil {
			return nil, err
		}
		defer rhs.Release()

		fn, err := binaryFunction(expr.Op)
		if err != nil {
			return nil, err
		}
		return e.buildBool(lhs.Len(), func(i int) (bool, bool, error) {
			return fn(lhs.Value(i), rhs.Value(i))
		})
	}

	return nil, fmt.Errorf("unknown expression: %v", expr)
}

// buildBool materializes a boolean array of n rows. fn returns the value of
// row i and whether the value is valid (non-null).
func (e *expressionEvaluator) buildBool(n int64, fn func(i int) (value, valid bool, err error)) (ColumnVector, error) {
	builder := array.NewBooleanBuilder(e.alloc)
	defer builder.Release()
	builder.Reserve(int(n))

	for i := 0; i < int(n); i++ {
		v, valid, err := fn(i)
		if err != nil {
			return nil, err
		}
		if !valid {
			builder.AppendNull()
			continue
		}
		builder.Append(v)
	}
	return &Array{array: builder.NewArray(), rows: n, owned: true}, nil
}

// binaryFn evaluates a binary operation on two values with SQL semantics:
// comparisons involving NULL are NULL, AND and OR use three-valued logic.
type binaryFn func(l, r types.Literal) (value, valid bool, err error)

func binaryFunction(op types.BinOpKind) (binaryFn, error) {
	switch op {
	case types.BinOpKindAnd:
		return func(l, r types.Literal) (bool, bool, error) {
			lb, lnull, err := asBool(l)
			if err != nil {
				return false, false, err
			}
			rb, rnull, err := asBool(r)
			if err != nil {
				return false, false, err
			}
			if (!lnull && !lb) || (!rnull && !rb) {
				return false, true, nil
			}
			if lnull || rnull {
				return false, false, nil
			}
			return true, true, nil
		}, nil

	case types.BinOpKindOr:
		return func(l, r types.Literal) (bool, bool, error) {
			lb, lnull, err := asBool(l)
			if err != nil {
				return false, false, err
			}
			rb, rnull, err := asBool(r)
			if err != nil {
				return false, false, err
			}
			if (!lnull && lb) || (!rnull && rb) {
				return true, true, nil
			}
			if lnull || rnull {
				return false, false, nil
			}
			return false, true, nil
		}, nil
	}

	if !op.IsComparison() {
		return nil, fmt.Errorf("%w: binary operator %s", errors.ErrNotImplemented, op)
	}
	return func(l, r types.Literal) (bool, bool, error) {
		if l.IsNull() || r.IsNull() {
			return false, false, nil
		}
		c, err := compareLiterals(l, r)
		if err != nil {
			return false, false, err
		}
		switch op {
		case types.BinOpKindEq:
			return c == 0, true, nil
		case types.BinOpKindNeq:
			return c != 0, true, nil
		case types.BinOpKindGt:
			return c > 0, true, nil
		case types.BinOpKindGte:
			return c >= 0, true, nil
		case types.BinOpKindLt:
			return c < 0, true, nil
		default:
			return c <= 0, true, nil
		}
	}, nil
}

func asBool(v types.Literal) (b, null bool, err error) {
	if v.IsNull() {
		return false, true, nil
	}
	b, ok := v.Bool()
	if !ok {
		return false, false, fmt.Errorf("%w: expected bool, got %s", errors.ErrType, v.Type())
	}
	return b, false, nil
}

// compareLiterals compares two non-null values. Integers and floats compare
// numerically with each other.
func compareLiterals(l, r types.Literal) (int, error) {
	if li, ok := l.Int(); ok {
		if ri, ok := r.Int(); ok {
			return cmp.Compare(li, ri), nil
		}
	}
	if lf, ok := asFloat(l); ok {
		if rf, ok := asFloat(r); ok {
			return cmp.Compare(lf, rf), nil
		}
	}
	if ls, ok := l.Str(); ok {
		if rs, ok := r.Str(); ok {
			return strings.Compare(ls, rs), nil
		}
	}
	if lb, ok := l.Bool(); ok {
		if rb, ok := r.Bool(); ok {
			return cmp.Compare(boolRank(lb), boolRank(rb)), nil
		}
	}
	return 0, fmt.Errorf("%w: cannot compare %s with %s", errors.ErrType, l.Type(), r.Type())
}

func asFloat(v types.Literal) (float64, bool) {
	if f, ok := v.Float(); ok {
		return f, true
	}
	if i, ok := v.Int(); ok {
		return float64(i), true
	}
	return 0, false
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ColumnVector represents columnar values from evaluated expressions.
type ColumnVector interface {
	// Value returns the value at the specified index position in the column vector.
	Value(i int) types.Literal
	// Len returns the length of the vector
	Len() int64
	// Release releases the memory held by the vector, if any.
	Release()
}

// Scalar represents a single value repeated any number of times.
type Scalar struct {
	value types.Literal
	rows  int64
}

var _ ColumnVector = (*Scalar)(nil)

func (v *Scalar) Value(_ int) types.Literal { return v.value }
func (v *Scalar) Len() int64                { return v.rows }
func (v *Scalar) Release()                  {}

// Array represents a column of data, stored as an [arrow.Array].
type Array struct {
	array arrow.Array
	rows  int64
	// owned arrays were created by the evaluator and are released with the
	// vector. Columns of input records are not.
	owned bool
}

var _ ColumnVector = (*Array)(nil)

func (a *Array) Value(i int) types.Literal { return literalAt(a.array, i) }
func (a *Array) Len() int64                { return a.rows }

// ToArray returns the underlying Arrow array.
func (a *Array) ToArray() arrow.Array { return a.array }

func (a *Array) Release() {
	if a.owned {
		a.array.Release()
	}
}

// literalAt returns row i of arr as a literal.
func literalAt(arr arrow.Array, i int) types.Literal {
	if arr.IsNull(i) {
		return types.NewNullLiteral()
	}
	switch arr := arr.(type) {
	case *array.Int64:
		return types.NewIntLiteral(arr.Value(i))
	case *array.Float64:
		return types.NewFloatLiteral(arr.Value(i))
	case *array.String:
		return types.NewStringLiteral(arr.Value(i))
	case *array.Boolean:
		return types.NewBoolLiteral(arr.Value(i))
	default:
		return types.NewStringLiteral(arr.ValueStr(i))
	}
}
