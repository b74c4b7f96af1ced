package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/grafana/pickyappend/pkg/engine/internal/types"
	"github.com/grafana/pickyappend/pkg/engine/planner/physical"
)

// Query is the declarative form of a query accepted by [Engine.Build]. A
// query either scans a single relation (Scan) or joins two relations (Outer
// and Inner) with a nested loop join.
type Query struct {
	Scan string `yaml:"scan,omitempty"`

	Outer string   `yaml:"outer,omitempty"`
	Inner string   `yaml:"inner,omitempty"`
	Join  string   `yaml:"join,omitempty"` // inner (default), left or full
	On    []JoinOn `yaml:"on,omitempty"`

	Where []Predicate `yaml:"where,omitempty"`
	Skip  uint32      `yaml:"skip,omitempty"`
	Fetch uint32      `yaml:"fetch,omitempty"`
}

// JoinOn compares a column of the inner relation with a column of the outer
// relation.
type JoinOn struct {
	Inner string `yaml:"inner"`
	Op    string `yaml:"op"`
	Outer string `yaml:"outer"`
}

// Predicate compares a column with a constant.
type Predicate struct {
	Column string `yaml:"column"`
	Op     string `yaml:"op"`
	Value  any    `yaml:"value"`
}

func (q Query) validate() error {
	switch {
	case q.Scan != "" && (q.Outer != "" || q.Inner != ""):
		return errors.New("query must either scan a relation or join two relations")
	case q.Scan == "" && (q.Outer == "" || q.Inner == ""):
		return errors.New("join query requires an outer and an inner relation")
	case q.Scan != "" && len(q.On) > 0:
		return errors.New("scan query has join conditions")
	}
	return nil
}

func (q Query) isJoin() bool { return q.Scan == "" }

func (q Query) joinQuery() (physical.JoinQuery, error) {
	kind, err := parseJoinType(q.Join)
	if err != nil {
		return physical.JoinQuery{}, err
	}
	filter, err := predicates(q.Where)
	if err != nil {
		return physical.JoinQuery{}, err
	}

	jq := physical.JoinQuery{
		Outer:  q.Outer,
		Inner:  q.Inner,
		Kind:   kind,
		Filter: filter,
		Skip:   q.Skip,
		Fetch:  q.Fetch,
	}
	for _, on := range q.On {
		op, err := parseOperator(on.Op)
		if err != nil {
			return physical.JoinQuery{}, fmt.Errorf("join condition on %s: %w", on.Inner, err)
		}
		jq.On = append(jq.On, physical.JoinCondition{InnerColumn: on.Inner, Op: op, OuterColumn: on.Outer})
	}
	return jq, nil
}

func (q Query) scanQuery() (physical.ScanQuery, error) {
	filter, err := predicates(q.Where)
	if err != nil {
		return physical.ScanQuery{}, err
	}
	return physical.ScanQuery{Relation: q.Scan, Filter: filter, Skip: q.Skip, Fetch: q.Fetch}, nil
}

func predicates(preds []Predicate) ([]physical.Expression, error) {
	exprs := make([]physical.Expression, 0, len(preds))
	for _, p := range preds {
		op, err := parseOperator(p.Op)
		if err != nil {
			return nil, fmt.Errorf("predicate on %s: %w", p.Column, err)
		}
		lit, err := types.NewLiteral(p.Value)
		if err != nil {
			return nil, fmt.Errorf("predicate on %s: %w", p.Column, err)
		}
		exprs = append(exprs, &physical.BinaryExpr{
			Left:  &physical.ColumnExpr{Name: p.Column},
			Right: &physical.LiteralExpr{Literal: lit},
			Op:    op,
		})
	}
	return exprs, nil
}

func parseJoinType(s string) (physical.JoinType, error) {
	switch strings.ToLower(s) {
	case "", "inner":
		return physical.JoinTypeInner, nil
	case "left":
		return physical.JoinTypeLeft, nil
	case "full":
		return physical.JoinTypeFull, nil
	default:
		return 0, fmt.Errorf("unknown join type %q", s)
	}
}

func parseOperator(s string) (types.BinOpKind, error) {
	switch s {
	case "=", "==":
		return types.BinOpKindEq, nil
	case "!=", "<>":
		return types.BinOpKindNeq, nil
	case "<":
		return types.BinOpKindLt, nil
	case "<=":
		return types.BinOpKindLte, nil
	case ">":
		return types.BinOpKindGt, nil
	case ">=":
		return types.BinOpKindGte, nil
	default:
		return types.BinOpKindInvalid, fmt.Errorf("unknown comparison operator %q", s)
	}
}
