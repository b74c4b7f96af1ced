package physical

import (
	"fmt"

	"github.com/grafana/pickyappend/pkg/engine/internal/types"
)

// ExpressionType represents the type of expression in the physical plan.
type ExpressionType uint32

const (
	_ ExpressionType = iota // zero-value is an invalid type

	ExprTypeUnary
	ExprTypeBinary
	ExprTypeLiteral
	ExprTypeColumn
	ExprTypeParam
)

// String returns the string representation of the [ExpressionType].
func (t ExpressionType) String() string {
	switch t {
	case ExprTypeUnary:
		return "UnaryExpression"
	case ExprTypeBinary:
		return "BinaryExpression"
	case ExprTypeLiteral:
		return "LiteralExpression"
	case ExprTypeColumn:
		return "ColumnExpression"
	case ExprTypeParam:
		return "ParamExpression"
	default:
		panic(fmt.Sprintf("unknown expression type %d", t))
	}
}

// Expression is the common interface for all expressions in a physical plan.
type Expression interface {
	fmt.Stringer
	Type() ExpressionType
	isExpr()
}

// UnaryExpr is a unary operation applied to Left.
type UnaryExpr struct {
	Left Expression
	Op   types.UnaryOpKind
}

func (*UnaryExpr) isExpr() {}

func (e *UnaryExpr) String() string {
	return fmt.Sprintf("%s(%s)", e.Op, e.Left)
}

// Type returns the type of the [UnaryExpr].
func (*UnaryExpr) Type() ExpressionType {
	return ExprTypeUnary
}

// BinaryExpr is a binary operation on Left and Right.
type BinaryExpr struct {
	Left, Right Expression
	Op          types.BinOpKind
}

func (*BinaryExpr) isExpr() {}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("%s(%s, %s)", e.Op, e.Left, e.Right)
}

// Type returns the type of the [BinaryExpr].
func (*BinaryExpr) Type() ExpressionType {
	return ExprTypeBinary
}

// LiteralExpr is a constant value.
type LiteralExpr struct {
	types.Literal
}

func (*LiteralExpr) isExpr() {}

// String returns the string representation of the literal value.
func (e *LiteralExpr) String() string {
	return e.Literal.String()
}

// Type returns the type of the [LiteralExpr].
func (*LiteralExpr) Type() ExpressionType {
	return ExprTypeLiteral
}

// ValueType returns the kind of value represented by the literal.
func (e *LiteralExpr) ValueType() types.ValueType {
	return e.Literal.Type()
}

// NewLiteral returns a literal expression for an int64 value.
func NewLiteral(v int64) *LiteralExpr {
	return &LiteralExpr{Literal: types.NewIntLiteral(v)}
}

// ColumnExpr references a column of the input of the node it belongs to.
type ColumnExpr struct {
	Name string
}

func (*ColumnExpr) isExpr() {}

func (e *ColumnExpr) String() string {
	return e.Name
}

// Type returns the type of the [ColumnExpr].
func (*ColumnExpr) Type() ExpressionType {
	return ExprTypeColumn
}

// ParamExpr references a runtime parameter. Its value is bound by the
// executor, usually by a join that passes the current outer row down to its
// inner input.
type ParamExpr struct {
	ID types.ParamID
}

func (*ParamExpr) isExpr() {}

func (e *ParamExpr) String() string {
	return e.ID.String()
}

// Type returns the type of the [ParamExpr].
func (*ParamExpr) Type() ExpressionType {
	return ExprTypeParam
}

// ParamsOf returns the set of parameters referenced by exprs.
func ParamsOf(exprs ...Expression) types.ParamSet {
	var ids []types.ParamID
	for _, expr := range exprs {
		walkExpression(expr, func(e Expression) {
			if p, ok := e.(*ParamExpr); ok {
				ids = append(ids, p.ID)
			}
		})
	}
	return types.NewParamSet(ids...)
}

// ColumnsOf returns the names of the columns referenced by exprs, in order of
// first appearance.
func ColumnsOf(exprs ...Expression) []string {
	var (
		names []string
		seen  = make(map[string]struct{})
	)
	for _, expr := range exprs {
		walkExpression(expr, func(e Expression) {
			c, ok := e.(*ColumnExpr)
			if !ok {
				return
			}
			if _, dup := seen[c.Name]; !dup {
				seen[c.Name] = struct{}{}
				names = append(names, c.Name)
			}
		})
	}
	return names
}

func walkExpression(expr Expression, fn func(Expression)) {
	if expr == nil {
		return
	}
	fn(expr)
	switch e := expr.(type) {
	case *UnaryExpr:
		walkExpression(e.Left, fn)
	case *BinaryExpr:
		walkExpression(e.Left, fn)
		walkExpression(e.Right, fn)
	}
}
