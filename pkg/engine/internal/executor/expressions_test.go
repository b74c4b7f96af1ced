package executor

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/grafana/pickyappend/pkg/engine/internal/arrowutil"
	"github.com/grafana/pickyappend/pkg/engine/internal/errors"
	"github.com/grafana/pickyappend/pkg/engine/internal/types"
	"github.com/grafana/pickyappend/pkg/engine/planner/physical"
)

var flagsSchema = arrow.NewSchema([]arrow.Field{
	{Name: "a", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
	{Name: "b", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
	{Name: "n", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "f", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "s", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

func col(name string) physical.Expression { return &physical.ColumnExpr{Name: name} }

func binary(op types.BinOpKind, l, r physical.Expression) physical.Expression {
	return &physical.BinaryExpr{Left: l, Right: r, Op: op}
}

// evalRows evaluates expr against data and returns the values of the result.
func evalRows(t *testing.T, bindings types.Bindings, expr physical.Expression, data string) []types.Literal {
	t.Helper()

	alloc := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer alloc.AssertSize(t, 0)

	rec, err := arrowutil.RecordFromCSV(alloc, flagsSchema, data)
	require.NoError(t, err)
	defer rec.Release()

	e := newExpressionEvaluator(bindings, alloc)
	require.NoError(t, e.check(expr))

	res, err := e.eval(expr, rec)
	require.NoError(t, err)
	defer res.Release()

	values := make([]types.Literal, res.Len())
	for i := range values {
		values[i] = res.Value(i)
	}
	return values
}

var (
	litNull  = types.NewNullLiteral()
	litTrue  = types.NewBoolLiteral(true)
	litFalse = types.NewBoolLiteral(false)
)

func TestEvaluator_ThreeValuedLogic(t *testing.T) {
	// Every combination of true, false and NULL.
	data := `true,true,1,1,x
true,false,1,1,x
true,,1,1,x
false,false,1,1,x
false,,1,1,x
,,1,1,x`

	t.Run("AND", func(t *testing.T) {
		got := evalRows(t, nil, binary(types.BinOpKindAnd, col("a"), col("b")), data)
		require.Equal(t, []types.Literal{litTrue, litFalse, litNull, litFalse, litFalse, litNull}, got)
	})

	t.Run("OR", func(t *testing.T) {
		got := evalRows(t, nil, binary(types.BinOpKindOr, col("a"), col("b")), data)
		require.Equal(t, []types.Literal{litTrue, litTrue, litTrue, litFalse, litNull, litNull}, got)
	})

	t.Run("NOT", func(t *testing.T) {
		got := evalRows(t, nil, &physical.UnaryExpr{Left: col("b"), Op: types.UnaryOpKindNot}, data)
		require.Equal(t, []types.Literal{litFalse, litTrue, litNull, litTrue, litNull, litNull}, got)
	})
}

func TestEvaluator_Comparisons(t *testing.T) {
	data := `true,true,1,1.5,apple
true,true,2,2,pear
true,true,,3,plum`

	bindings := types.Bindings{0: types.NewIntLiteral(2)}

	for _, tt := range []struct {
		name   string
		expr   physical.Expression
		expect []types.Literal
	}{
		{
			name:   "int with param",
			expr:   binary(types.BinOpKindGte, col("n"), &physical.ParamExpr{ID: 0}),
			expect: []types.Literal{litFalse, litTrue, litNull},
		},
		{
			name:   "int with float",
			expr:   binary(types.BinOpKindLt, col("n"), col("f")),
			expect: []types.Literal{litTrue, litFalse, litNull},
		},
		{
			name:   "strings",
			expr:   binary(types.BinOpKindEq, col("s"), &physical.LiteralExpr{Literal: types.NewStringLiteral("pear")}),
			expect: []types.Literal{litFalse, litTrue, litFalse},
		},
		{
			name:   "not equal",
			expr:   binary(types.BinOpKindNeq, col("n"), physical.NewLiteral(1)),
			expect: []types.Literal{litFalse, litTrue, litNull},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expect, evalRows(t, bindings, tt.expr, data))
		})
	}
}

func TestEvaluator_Errors(t *testing.T) {
	alloc := memory.NewGoAllocator()
	rec, err := arrowutil.RecordFromCSV(alloc, flagsSchema, "true,true,1,1,x")
	require.NoError(t, err)
	defer rec.Release()

	e := newExpressionEvaluator(types.Bindings{}, alloc)

	t.Run("unbound parameter", func(t *testing.T) {
		_, err := e.eval(&physical.ParamExpr{ID: 3}, rec)
		require.ErrorIs(t, err, errors.ErrKey)
	})

	t.Run("unknown column", func(t *testing.T) {
		_, err := e.eval(col("missing"), rec)
		require.ErrorIs(t, err, errors.ErrKey)
	})

	t.Run("incomparable types", func(t *testing.T) {
		_, err := e.eval(binary(types.BinOpKindEq, col("s"), col("n")), rec)
		require.ErrorIs(t, err, errors.ErrType)
	})

	t.Run("non-boolean operand", func(t *testing.T) {
		_, err := e.eval(binary(types.BinOpKindAnd, col("n"), col("a")), rec)
		require.ErrorIs(t, err, errors.ErrType)
	})

	t.Run("non-boolean predicate", func(t *testing.T) {
		_, err := filterRecord(rec, []physical.Expression{col("n")}, e)
		require.ErrorIs(t, err, errors.ErrType)
	})
}
