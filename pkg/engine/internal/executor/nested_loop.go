package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/scalar"

	"github.com/grafana/pickyappend/pkg/engine/internal/types"
	"github.com/grafana/pickyappend/pkg/engine/planner/physical"
)

type nestedLoopJoinOptions struct {
	Kind   physical.JoinType
	Params []physical.ParamBinding

	// Schema is the output schema: the outer fields followed by the inner
	// fields.
	Schema      *arrow.Schema
	InnerSchema *arrow.Schema
}

// nestedLoopJoin pairs every row of its outer input with the rows its inner
// input returns for that row. Before reading the inner input for an outer
// row, the join binds its parameters from the row's columns and rescans the
// inner input.
type nestedLoopJoin struct {
	paramTracker

	opts     nestedLoopJoinOptions
	bindings types.Bindings
	alloc    memory.Allocator

	outer, inner Node

	// current outer batch and the row being joined
	outerBatch arrow.Record
	outerCols  []int // column index of each param binding in outerBatch
	outerRow   int

	innerActive bool // inner input was rescanned for outerRow
	matched     bool // outerRow was paired with at least one inner row
}

var _ Node = (*nestedLoopJoin)(nil)

func newNestedLoopJoin(outer, inner Node, opts nestedLoopJoinOptions, bindings types.Bindings, alloc memory.Allocator) (*nestedLoopJoin, error) {
	switch opts.Kind {
	case physical.JoinTypeInner, physical.JoinTypeLeft:
	default:
		return nil, fmt.Errorf("nested loop join type %s is not supported", opts.Kind)
	}

	own := make([]types.ParamID, len(opts.Params))
	for i, p := range opts.Params {
		own[i] = p.Param
	}
	ownSet := types.NewParamSet(own...)

	// Parameters bound by the join itself are not visible above it.
	dependsOn := outer.DependsOn()
	for _, id := range inner.DependsOn().IDs() {
		if !ownSet.Contains(id) {
			dependsOn = dependsOn.Union(types.NewParamSet(id))
		}
	}

	return &nestedLoopJoin{
		paramTracker: paramTracker{dependsOn: dependsOn},
		opts:         opts,
		bindings:     bindings,
		alloc:        alloc,
		outer:        outer,
		inner:        inner,
	}, nil
}

func (j *nestedLoopJoin) Read(ctx context.Context) (arrow.Record, error) {
	for {
		if j.outerBatch == nil {
			if err := j.nextOuterBatch(ctx); err != nil {
				return nil, err
			}
		}
		if j.outerRow >= int(j.outerBatch.NumRows()) {
			j.releaseOuter()
			continue
		}

		if !j.innerActive {
			if err := j.probe(ctx); err != nil {
				return nil, err
			}
		}

		rec, err := readNode(ctx, j.inner)
		if errors.Is(err, EOF) {
			row := j.outerRow
			j.outerRow++
			j.innerActive = false
			if j.opts.Kind == physical.JoinTypeLeft && !j.matched {
				return j.nullExtended(row)
			}
			continue
		} else if err != nil {
			return nil, err
		}

		if rec.NumRows() == 0 {
			rec.Release()
			continue
		}
		j.matched = true

		out, err := j.combine(j.outerRow, rec)
		rec.Release()
		return out, err
	}
}

func (j *nestedLoopJoin) nextOuterBatch(ctx context.Context) error {
	for {
		rec, err := readNode(ctx, j.outer)
		if err != nil {
			return err
		}
		if rec.NumRows() == 0 {
			rec.Release()
			continue
		}

		cols := make([]int, len(j.opts.Params))
		for i, p := range j.opts.Params {
			idx := rec.Schema().FieldIndices(p.OuterColumn)
			if len(idx) == 0 {
				rec.Release()
				return fmt.Errorf("outer column %s of parameter %s not found", p.OuterColumn, p.Param)
			}
			cols[i] = idx[0]
		}

		j.outerBatch, j.outerCols, j.outerRow = rec, cols, 0
		return nil
	}
}

// probe binds the parameters from the current outer row and restarts the
// inner input.
func (j *nestedLoopJoin) probe(ctx context.Context) error {
	var changed []types.ParamID
	for i, p := range j.opts.Params {
		v := literalAt(j.outerBatch.Column(j.outerCols[i]), j.outerRow)
		if j.bindings.Set(p.Param, v) {
			changed = append(changed, p.Param)
		}
	}

	j.inner.UpdateChangedParams(types.NewParamSet(changed...))
	if err := j.inner.Rescan(ctx); err != nil {
		return err
	}
	j.innerActive, j.matched = true, false
	return nil
}

// combine returns the rows of inner, each prefixed with the outer columns of
// row.
func (j *nestedLoopJoin) combine(row int, inner arrow.Record) (arrow.Record, error) {
	if err := validateSchemaCompatibility(inner.Schema(), j.opts.InnerSchema); err != nil {
		return nil, fmt.Errorf("inner record: %w", err)
	}

	n := inner.NumRows()
	cols := make([]arrow.Array, 0, j.opts.Schema.NumFields())
	defer func() {
		for _, col := range cols {
			col.Release()
		}
	}()

	for i := range int(j.outerBatch.NumCols()) {
		arr, err := j.broadcast(j.outerBatch.Column(i), row, n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, arr)
	}
	for _, col := range inner.Columns() {
		col.Retain()
		cols = append(cols, col)
	}
	return array.NewRecord(j.opts.Schema, cols, n), nil
}

// nullExtended returns the outer columns of row with NULL inner columns.
func (j *nestedLoopJoin) nullExtended(row int) (arrow.Record, error) {
	cols := make([]arrow.Array, 0, j.opts.Schema.NumFields())
	defer func() {
		for _, col := range cols {
			col.Release()
		}
	}()

	for i := range int(j.outerBatch.NumCols()) {
		arr, err := j.broadcast(j.outerBatch.Column(i), row, 1)
		if err != nil {
			return nil, err
		}
		cols = append(cols, arr)
	}
	for _, field := range j.opts.InnerSchema.Fields() {
		arr, err := scalar.MakeArrayFromScalar(scalar.MakeNullScalar(field.Type), 1, j.alloc)
		if err != nil {
			return nil, err
		}
		cols = append(cols, arr)
	}
	return array.NewRecord(j.opts.Schema, cols, 1), nil
}

// broadcast returns an array repeating row of col n times.
func (j *nestedLoopJoin) broadcast(col arrow.Array, row int, n int64) (arrow.Array, error) {
	sc, err := scalar.GetScalar(col, row)
	if err != nil {
		return nil, err
	}
	if r, ok := sc.(interface{ Release() }); ok {
		defer r.Release()
	}
	return scalar.MakeArrayFromScalar(sc, int(n), j.alloc)
}

func (j *nestedLoopJoin) releaseOuter() {
	if j.outerBatch != nil {
		j.outerBatch.Release()
		j.outerBatch = nil
	}
	j.outerRow = 0
	j.innerActive = false
}

func (j *nestedLoopJoin) Rescan(ctx context.Context) error {
	defer j.clearChanged()
	j.releaseOuter()
	if err := rescanChild(ctx, j.outer, j.changed); err != nil {
		return err
	}
	// The inner input is rescanned for every outer row anyway; hand it the
	// pending changes so the next probe sees them.
	j.inner.UpdateChangedParams(j.changed)
	return nil
}

func (j *nestedLoopJoin) Close() {
	j.releaseOuter()
	j.outer.Close()
	j.inner.Close()
}
