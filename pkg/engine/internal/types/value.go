package types

import (
	"fmt"
	"strconv"
)

const (
	typeInvalid = "invalid"
)

// ValueType represents the type of a value, which can either be a literal value, or a column value.
type ValueType uint32

const (
	ValueTypeInvalid ValueType = iota // zero-value is an invalid type

	ValueTypeNull  // NULL value.
	ValueTypeBool  // Boolean value
	ValueTypeFloat // 64bit floating point value
	ValueTypeInt   // Signed 64bit integer value
	ValueTypeStr   // String value
)

// String returns the string representation of the ValueType.
func (t ValueType) String() string {
	switch t {
	case ValueTypeInvalid:
		return typeInvalid
	case ValueTypeNull:
		return "null"
	case ValueTypeBool:
		return "bool"
	case ValueTypeFloat:
		return "float"
	case ValueTypeInt:
		return "int"
	case ValueTypeStr:
		return "string"
	default:
		return typeInvalid
	}
}

// Literal is a single typed scalar value. The zero value is an invalid
// literal; use one of the constructors below.
type Literal struct {
	typ ValueType

	b bool
	i int64
	f float64
	s string
}

// NewNullLiteral returns a NULL literal.
func NewNullLiteral() Literal { return Literal{typ: ValueTypeNull} }

// NewBoolLiteral returns a boolean literal.
func NewBoolLiteral(v bool) Literal { return Literal{typ: ValueTypeBool, b: v} }

// NewIntLiteral returns a signed integer literal.
func NewIntLiteral(v int64) Literal { return Literal{typ: ValueTypeInt, i: v} }

// NewFloatLiteral returns a floating point literal.
func NewFloatLiteral(v float64) Literal { return Literal{typ: ValueTypeFloat, f: v} }

// NewStringLiteral returns a string literal.
func NewStringLiteral(v string) Literal { return Literal{typ: ValueTypeStr, s: v} }

// NewLiteral converts a Go value into a Literal. It returns an error for
// unsupported Go types.
func NewLiteral(v any) (Literal, error) {
	switch v := v.(type) {
	case nil:
		return NewNullLiteral(), nil
	case bool:
		return NewBoolLiteral(v), nil
	case int:
		return NewIntLiteral(int64(v)), nil
	case int32:
		return NewIntLiteral(int64(v)), nil
	case int64:
		return NewIntLiteral(v), nil
	case float64:
		return NewFloatLiteral(v), nil
	case string:
		return NewStringLiteral(v), nil
	default:
		return Literal{}, fmt.Errorf("unsupported literal type %T", v)
	}
}

// Type returns the value type of the literal.
func (l Literal) Type() ValueType { return l.typ }

// IsNull reports whether l is a NULL literal.
func (l Literal) IsNull() bool { return l.typ == ValueTypeNull }

// IsValid reports whether l was created by one of the constructors.
func (l Literal) IsValid() bool { return l.typ != ValueTypeInvalid }

// Bool returns the boolean value of l and whether l is a boolean.
func (l Literal) Bool() (bool, bool) { return l.b, l.typ == ValueTypeBool }

// Int returns the integer value of l and whether l is an integer.
func (l Literal) Int() (int64, bool) { return l.i, l.typ == ValueTypeInt }

// Float returns the float value of l and whether l is a float.
func (l Literal) Float() (float64, bool) { return l.f, l.typ == ValueTypeFloat }

// Str returns the string value of l and whether l is a string.
func (l Literal) Str() (string, bool) { return l.s, l.typ == ValueTypeStr }

// Any returns the Go value held by l.
func (l Literal) Any() any {
	switch l.typ {
	case ValueTypeBool:
		return l.b
	case ValueTypeInt:
		return l.i
	case ValueTypeFloat:
		return l.f
	case ValueTypeStr:
		return l.s
	default:
		return nil
	}
}

// Equal reports whether l and o have the same type and value.
func (l Literal) Equal(o Literal) bool {
	return l == o
}

func (l Literal) String() string {
	switch l.typ {
	case ValueTypeNull:
		return "NULL"
	case ValueTypeBool:
		return strconv.FormatBool(l.b)
	case ValueTypeInt:
		return strconv.FormatInt(l.i, 10)
	case ValueTypeFloat:
		return strconv.FormatFloat(l.f, 'g', -1, 64)
	case ValueTypeStr:
		return strconv.Quote(l.s)
	default:
		return typeInvalid
	}
}
