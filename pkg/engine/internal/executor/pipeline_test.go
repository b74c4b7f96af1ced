package executor

import (
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/grafana/pickyappend/pkg/engine/internal/arrowutil"
	"github.com/grafana/pickyappend/pkg/engine/internal/types"
	"github.com/grafana/pickyappend/pkg/engine/planner/physical"
)

// bufferedNode returns a fixed list of records. It depends on the
// parameters it was created with.
type bufferedNode struct {
	paramTracker

	records []arrow.Record
	pos     int
	rescans int
	closed  bool
}

var _ Node = (*bufferedNode)(nil)

func newBufferedNode(dependsOn types.ParamSet, records ...arrow.Record) *bufferedNode {
	return &bufferedNode{paramTracker: paramTracker{dependsOn: dependsOn}, records: records}
}

func (n *bufferedNode) Read(context.Context) (arrow.Record, error) {
	if n.pos >= len(n.records) {
		return nil, EOF
	}
	rec := n.records[n.pos]
	n.pos++
	rec.Retain()
	return rec, nil
}

func (n *bufferedNode) Rescan(context.Context) error {
	n.pos = 0
	n.rescans++
	n.clearChanged()
	return nil
}

func (n *bufferedNode) Close() {
	if n.closed {
		return
	}
	for _, rec := range n.records {
		rec.Release()
	}
	n.closed = true
}

func ordersRecord(t *testing.T, alloc memory.Allocator, data string) arrow.Record {
	t.Helper()
	rec, err := arrowutil.RecordFromCSV(alloc, ordersSchema, data)
	require.NoError(t, err)
	return rec
}

func TestReadNode(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer alloc.AssertSize(t, 0)

	n := newBufferedNode(types.NewParamSet(1), ordersRecord(t, alloc, "1,a"))
	defer n.Close()

	rec, err := readNode(t.Context(), n)
	require.NoError(t, err)
	rec.Release()

	// Changes of parameters the node does not depend on are ignored.
	n.UpdateChangedParams(types.NewParamSet(0))
	_, err = readNode(t.Context(), n)
	require.ErrorIs(t, err, EOF)
	require.Zero(t, n.rescans)

	n.UpdateChangedParams(types.NewParamSet(0, 1))
	require.True(t, n.ChangedParams().Equal(types.NewParamSet(1)))
	rec, err = readNode(t.Context(), n)
	require.NoError(t, err)
	rec.Release()
	require.Equal(t, 1, n.rescans)
	require.True(t, n.ChangedParams().IsEmpty())
}

func TestRescanChild(t *testing.T) {
	t.Run("unaffected child is rescanned right away", func(t *testing.T) {
		n := newBufferedNode(types.NewParamSet(1))
		require.NoError(t, rescanChild(t.Context(), n, types.NewParamSet(0)))
		require.Equal(t, 1, n.rescans)
	})

	t.Run("affected child is rescanned on its next read", func(t *testing.T) {
		n := newBufferedNode(types.NewParamSet(0))
		require.NoError(t, rescanChild(t.Context(), n, types.NewParamSet(0)))
		require.Zero(t, n.rescans)
		require.False(t, n.ChangedParams().IsEmpty())

		_, err := readNode(t.Context(), n)
		require.ErrorIs(t, err, EOF)
		require.Equal(t, 1, n.rescans)
	})
}

func TestAppendNode(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer alloc.AssertSize(t, 0)

	first := newBufferedNode(types.NewParamSet(0), ordersRecord(t, alloc, "1,a\n2,b"))
	second := newBufferedNode(types.NewParamSet(1), ordersRecord(t, alloc, "3,c"), ordersRecord(t, alloc, "4,d"))

	n, err := newAppendNode([]Node{first, second})
	require.NoError(t, err)
	defer n.Close()

	require.True(t, n.DependsOn().Equal(types.NewParamSet(0, 1)))

	expect := [][]string{{"1", "a"}, {"2", "b"}, {"3", "c"}, {"4", "d"}}
	require.Equal(t, expect, collect(t, n))

	n.UpdateChangedParams(types.NewParamSet(1))
	require.NoError(t, n.Rescan(t.Context()))
	require.Equal(t, 1, first.rescans)
	require.Zero(t, second.rescans, "affected input is rescanned lazily")

	require.Equal(t, expect, collect(t, n))
	require.Equal(t, 1, second.rescans)

	_, err = newAppendNode(nil)
	require.Error(t, err)
}

func TestLimitNode(t *testing.T) {
	for _, tt := range []struct {
		name        string
		skip, fetch uint32
		expect      []string
	}{
		{"fetch across batches", 1, 3, []string{"2", "3", "4"}},
		{"skip whole batch", 3, 2, []string{"4", "5"}},
		{"no fetch", 4, 0, []string{"5", "6"}},
		{"skip everything", 10, 0, nil},
	} {
		t.Run(tt.name, func(t *testing.T) {
			alloc := memory.NewCheckedAllocator(memory.NewGoAllocator())
			defer alloc.AssertSize(t, 0)

			input := newBufferedNode(types.ParamSet{},
				ordersRecord(t, alloc, "1,a\n2,b\n3,c"),
				ordersRecord(t, alloc, "4,d\n5,e\n6,f"),
			)
			n := newLimitNode(input, tt.skip, tt.fetch)
			defer n.Close()

			keys := func() []string {
				var keys []string
				for _, row := range collect(t, n) {
					keys = append(keys, row[0])
				}
				return keys
			}

			require.Equal(t, tt.expect, keys())

			// A rescan starts counting again.
			require.NoError(t, n.Rescan(t.Context()))
			require.Equal(t, tt.expect, keys())
		})
	}
}

func TestFilterNode(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer alloc.AssertSize(t, 0)

	bindings := types.Bindings{}
	e := newExpressionEvaluator(bindings, alloc)

	input := newBufferedNode(types.ParamSet{}, ordersRecord(t, alloc, "1,a\n5,b\n9,c"), ordersRecord(t, alloc, "2,d"))
	n := newFilterNode(input, []physical.Expression{keyClause(types.BinOpKindGt)}, e)
	defer n.Close()

	require.True(t, n.DependsOn().Equal(types.NewParamSet(0)))

	bindings.Set(0, types.NewIntLiteral(4))
	require.Equal(t, [][]string{{"5", "b"}, {"9", "c"}}, collect(t, n))

	bindings.Set(0, types.NewIntLiteral(1))
	n.UpdateChangedParams(types.NewParamSet(0))
	require.NoError(t, n.Rescan(t.Context()))
	require.Equal(t, [][]string{{"5", "b"}, {"9", "c"}, {"2", "d"}}, collect(t, n))
}

func TestScanNode(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer alloc.AssertSize(t, 0)

	e := newExpressionEvaluator(types.Bindings{}, alloc)
	n := newScanNode(scanOptions{
		Kind:      physical.NodeTypePartitionScan,
		Relation:  "orders",
		Partition: "A",
		Records:   []arrow.Record{ordersRecord(t, alloc, "1,a\n2,b\n3,c"), ordersRecord(t, alloc, "")},
		BatchSize: 2,
	}, e)

	var sizes []int64
	for {
		rec, err := n.Read(t.Context())
		if err != nil {
			require.ErrorIs(t, err, EOF)
			break
		}
		sizes = append(sizes, rec.NumRows())
		rec.Release()
	}
	require.Equal(t, []int64{2, 1}, sizes)

	require.NoError(t, n.Rescan(t.Context()))
	require.Len(t, collect(t, n), 3)

	desc := n.explain()
	require.Equal(t, "PartitionScan", desc.Name)
	require.Equal(t, []any{int64(3)}, desc.Values("rows"))

	n.Close()
	n.Close()
	_, err := n.Read(t.Context())
	require.ErrorIs(t, err, errClosed)
}
