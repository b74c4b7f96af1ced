package executor

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/pickyappend/pkg/engine/internal/catalog"
	"github.com/grafana/pickyappend/pkg/engine/internal/util/tree"
	"github.com/grafana/pickyappend/pkg/engine/planner/physical"
)

type scanOptions struct {
	Kind       physical.NodeType
	Relation   string
	Partition  catalog.PartitionID // empty for unpartitioned relations
	Records    []arrow.Record
	Predicates []physical.Expression
	BatchSize  int64
}

// scanNode emits the rows of records loaded when the node was created, in
// batches of at most BatchSize rows. Rescanning starts over from the first
// row without loading the data again.
type scanNode struct {
	paramTracker

	opts      scanOptions
	evaluator *expressionEvaluator

	record int   // index of the current record
	offset int64 // first row of the next batch in the current record
	closed bool
}

var _ Node = (*scanNode)(nil)

// newScanNode takes ownership of opts.Records.
func newScanNode(opts scanOptions, evaluator *expressionEvaluator) *scanNode {
	return &scanNode{
		paramTracker: paramTracker{dependsOn: physical.ParamsOf(opts.Predicates...)},
		opts:         opts,
		evaluator:    evaluator,
	}
}

func (s *scanNode) Read(ctx context.Context) (arrow.Record, error) {
	if s.closed {
		return nil, errClosed
	}

	for s.record < len(s.opts.Records) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec := s.opts.Records[s.record]
		if s.offset >= rec.NumRows() {
			s.record++
			s.offset = 0
			continue
		}

		end := rec.NumRows()
		if s.opts.BatchSize > 0 {
			end = min(s.offset+s.opts.BatchSize, end)
		}
		slice := rec.NewSlice(s.offset, end)
		s.offset = end

		filtered, err := filterRecord(slice, s.opts.Predicates, s.evaluator)
		slice.Release()
		if err != nil {
			return nil, err
		}
		if filtered.NumRows() == 0 {
			filtered.Release()
			continue
		}
		return filtered, nil
	}
	return nil, EOF
}

func (s *scanNode) Rescan(context.Context) error {
	if s.closed {
		return errClosed
	}
	s.record, s.offset = 0, 0
	s.clearChanged()
	return nil
}

func (s *scanNode) Close() {
	if s.closed {
		return
	}
	for _, rec := range s.opts.Records {
		rec.Release()
	}
	s.opts.Records = nil
	s.closed = true
}

func (s *scanNode) rows() int64 {
	var n int64
	for _, rec := range s.opts.Records {
		n += rec.NumRows()
	}
	return n
}

func (s *scanNode) explain() *tree.Node {
	node := tree.NewNode(s.opts.Kind.String(), "", tree.NewProperty("relation", false, s.opts.Relation))
	if s.opts.Partition != "" {
		node.Add(tree.NewProperty("partition", false, s.opts.Partition))
	}
	return node.Add(
		tree.NewProperty("rows", false, s.rows()),
		tree.NewProperty("batches", false, len(s.opts.Records)),
	).Add(tree.Indexed("predicate", s.opts.Predicates)...)
}
