package executor

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/grafana/pickyappend/pkg/engine/internal/errors"
	"github.com/grafana/pickyappend/pkg/engine/internal/types"
	"github.com/grafana/pickyappend/pkg/engine/planner/physical"
)

type filterNode struct {
	paramTracker

	input      Node
	predicates []physical.Expression
	evaluator  *expressionEvaluator
}

var _ Node = (*filterNode)(nil)

func newFilterNode(input Node, predicates []physical.Expression, evaluator *expressionEvaluator) *filterNode {
	return &filterNode{
		paramTracker: paramTracker{dependsOn: dependsOnInputs(physical.ParamsOf(predicates...), input)},
		input:        input,
		predicates:   predicates,
		evaluator:    evaluator,
	}
}

// Read returns the next non-empty batch of rows matching all predicates.
func (f *filterNode) Read(ctx context.Context) (arrow.Record, error) {
	for {
		batch, err := readNode(ctx, f.input)
		if err != nil {
			return nil, err
		}

		filtered, err := filterRecord(batch, f.predicates, f.evaluator)
		batch.Release()
		if err != nil {
			return nil, err
		}
		if filtered.NumRows() == 0 {
			filtered.Release()
			continue
		}
		return filtered, nil
	}
}

func (f *filterNode) Rescan(ctx context.Context) error {
	defer f.clearChanged()
	return rescanChild(ctx, f.input, f.changed)
}

func (f *filterNode) Close() { f.input.Close() }

// filterRecord returns the rows of batch for which all predicates hold. Rows
// for which a predicate is NULL are dropped. The returned record must be
// released by the caller, batch keeps its reference count.
func filterRecord(batch arrow.Record, predicates []physical.Expression, evaluator *expressionEvaluator) (arrow.Record, error) {
	if len(predicates) == 0 || batch.NumRows() == 0 {
		batch.Retain()
		return batch, nil
	}

	cols := make([]ColumnVector, 0, len(predicates))
	defer func() {
		// boolean filters are only used for filtering; they're not returned
		// and must be released
		for _, col := range cols {
			col.Release()
		}
	}()

	for i, pred := range predicates {
		res, err := evaluator.eval(pred, batch)
		if err != nil {
			return nil, err
		}
		cols = append(cols, res)
		if err := checkBoolean(res); err != nil {
			return nil, fmt.Errorf("predicate %d (%s): %w", i, pred, err)
		}
	}

	include := func(i int) bool {
		for _, p := range cols {
			if b, ok := p.Value(i).Bool(); !ok || !b {
				return false
			}
		}
		return true
	}

	var matching int64
	for i := 0; i < int(batch.NumRows()); i++ {
		if include(i) {
			matching++
		}
	}
	if matching == batch.NumRows() {
		batch.Retain()
		return batch, nil
	}
	return filterBatch(evaluator.alloc, batch, include)
}

func checkBoolean(vec ColumnVector) error {
	switch vec := vec.(type) {
	case *Array:
		if vec.array.DataType().ID() != arrow.BOOL {
			return fmt.Errorf("%w: predicate returned non-boolean type %s", errors.ErrType, vec.array.DataType())
		}
	case *Scalar:
		if !vec.value.IsNull() && vec.value.Type() != types.ValueTypeBool {
			return fmt.Errorf("%w: predicate returned non-boolean type %s", errors.ErrType, vec.value.Type())
		}
	}
	return nil
}

// filterBatch creates a new batch holding the rows of batch for which include
// returns true. Every column is copied with a builder of its type.
func filterBatch(mem memory.Allocator, batch arrow.Record, include func(int) bool) (arrow.Record, error) {
	fields := batch.Schema().Fields()

	builders := make([]array.Builder, len(fields))
	defer func() {
		for _, b := range builders {
			if b != nil {
				b.Release()
			}
		}
	}()

	additions := make([]func(int), len(fields))

	for i, field := range fields {
		col := batch.Column(i)

		switch field.Type.ID() {
		case arrow.BOOL:
			builder := array.NewBooleanBuilder(mem)
			builders[i] = builder
			src := col.(*array.Boolean)
			additions[i] = func(offset int) { builder.Append(src.Value(offset)) }

		case arrow.STRING:
			builder := array.NewStringBuilder(mem)
			builders[i] = builder
			src := col.(*array.String)
			additions[i] = func(offset int) { builder.Append(src.Value(offset)) }

		case arrow.INT64:
			builder := array.NewInt64Builder(mem)
			builders[i] = builder
			src := col.(*array.Int64)
			additions[i] = func(offset int) { builder.Append(src.Value(offset)) }

		case arrow.FLOAT64:
			builder := array.NewFloat64Builder(mem)
			builders[i] = builder
			src := col.(*array.Float64)
			additions[i] = func(offset int) { builder.Append(src.Value(offset)) }

		default:
			return nil, fmt.Errorf("%w: filtering column %s of type %s", errors.ErrNotImplemented, field.Name, field.Type)
		}
	}

	var ct int64
	for i := 0; i < int(batch.NumRows()); i++ {
		if !include(i) {
			continue
		}
		for j, add := range additions {
			if batch.Column(j).IsNull(i) {
				builders[j].AppendNull()
				continue
			}
			add(i)
		}
		ct++
	}

	arrays := make([]arrow.Array, len(fields))
	for i, builder := range builders {
		arrays[i] = builder.NewArray()
		defer arrays[i].Release()
	}

	return array.NewRecord(batch.Schema(), arrays, ct), nil
}
