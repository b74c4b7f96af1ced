package executor

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// limitNode skips the first skip rows of its input and emits at most fetch
// rows after that. A fetch of zero emits every remaining row.
type limitNode struct {
	paramTracker

	input       Node
	skip, fetch uint32

	// We gradually reduce offsetRemaining and limitRemaining as we process
	// more records, as the offset and limit may cross record boundaries.
	offsetRemaining int64
	limitRemaining  int64
}

var _ Node = (*limitNode)(nil)

func newLimitNode(input Node, skip, fetch uint32) *limitNode {
	l := &limitNode{
		paramTracker: paramTracker{dependsOn: input.DependsOn()},
		input:        input,
		skip:         skip,
		fetch:        fetch,
	}
	l.reset()
	return l
}

func (l *limitNode) reset() {
	l.offsetRemaining = int64(l.skip)
	l.limitRemaining = -1
	if l.fetch > 0 {
		l.limitRemaining = int64(l.fetch)
	}
}

func (l *limitNode) Read(ctx context.Context) (arrow.Record, error) {
	for {
		// Stop once we reached the limit
		if l.limitRemaining == 0 {
			return nil, EOF
		}

		batch, err := readNode(ctx, l.input)
		if err != nil {
			return nil, err
		}

		// We want to slice batch so it only contains the rows we're looking for
		// accounting for both the limit and offset.
		// We constrain the start and end to be within the bounds of the record.
		start := min(l.offsetRemaining, batch.NumRows())
		end := batch.NumRows()
		if l.limitRemaining > 0 {
			end = min(start+l.limitRemaining, end)
		}
		length := end - start

		l.offsetRemaining -= start
		if l.limitRemaining > 0 {
			l.limitRemaining -= length
		}

		// We skip yielding zero-length batches while offsetRemaining > 0
		if length == 0 {
			batch.Release()
			continue
		}
		if start == 0 && end == batch.NumRows() {
			return batch, nil
		}

		out := batch.NewSlice(start, end)
		batch.Release()
		return out, nil
	}
}

func (l *limitNode) Rescan(ctx context.Context) error {
	defer l.clearChanged()
	l.reset()
	return rescanChild(ctx, l.input, l.changed)
}

func (l *limitNode) Close() { l.input.Close() }
