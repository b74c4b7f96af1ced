package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore"
	"go.uber.org/goleak"

	"github.com/grafana/pickyappend/pkg/engine/internal/arrowutil"
	"github.com/grafana/pickyappend/pkg/engine/internal/catalog"
	"github.com/grafana/pickyappend/pkg/engine/internal/types"
	"github.com/grafana/pickyappend/pkg/engine/planner/physical"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	ordersSchema = arrow.NewSchema([]arrow.Field{
		{Name: "key", Type: arrow.PrimitiveTypes.Int64},
		{Name: "item", Type: arrow.BinaryTypes.String},
	}, nil)

	probesSchema = arrow.NewSchema([]arrow.Field{
		{Name: "probe_key", Type: arrow.PrimitiveTypes.Int64},
		{Name: "label", Type: arrow.BinaryTypes.String},
	}, nil)
)

// ordersData is the content of the partitions of orders: A=[0,10),
// B=[10,20), C=[20,30).
var ordersData = map[catalog.PartitionID]string{
	"A": "1,a1\n5,a5\n9,a9",
	"B": "10,b10\n15,b15",
	"C": "20,c20\n25,c25\n29,c29",
}

type fixture struct {
	catalog *catalog.Catalog
	store   *catalog.Store
}

// newFixture returns a catalog with the range partitioned relation orders and
// the unpartitioned relation probes, and a store holding their data.
func newFixture(t *testing.T, probes string) *fixture {
	t.Helper()
	ctx := context.Background()
	alloc := memory.NewGoAllocator()

	desc, err := catalog.NewRangeDescriptor("orders", "key", []catalog.Partition{
		{ID: "A", Lower: 0, Upper: 10},
		{ID: "B", Lower: 10, Upper: 20},
		{ID: "C", Lower: 20, Upper: 30},
	})
	require.NoError(t, err)

	cat := catalog.New()
	require.NoError(t, cat.Register(&catalog.Table{Name: "orders", Schema: ordersSchema, Partitioning: desc}))
	require.NoError(t, cat.Register(&catalog.Table{Name: "probes", Schema: probesSchema}))

	store := catalog.NewStore(objstore.NewInMemBucket())
	for id, data := range ordersData {
		rec, err := arrowutil.RecordFromCSV(alloc, ordersSchema, data)
		require.NoError(t, err)
		_, err = store.WritePartition(ctx, "orders", id, ordersSchema, rec)
		rec.Release()
		require.NoError(t, err)
	}

	rec, err := arrowutil.RecordFromCSV(alloc, probesSchema, probes)
	require.NoError(t, err)
	_, err = store.WriteTable(ctx, "probes", probesSchema, rec)
	rec.Release()
	require.NoError(t, err)

	return &fixture{catalog: cat, store: store}
}

func (f *fixture) config() Config {
	return Config{
		BatchSize: 2,
		Catalog:   f.catalog,
		Store:     f.store,
	}
}

// keyClause returns `key OP $0`.
func keyClause(op types.BinOpKind) physical.Expression {
	return &physical.BinaryExpr{
		Left:  &physical.ColumnExpr{Name: "key"},
		Right: &physical.ParamExpr{ID: 0},
		Op:    op,
	}
}

func joinPlan(t *testing.T, f *fixture, kind physical.JoinType, pickyAppend bool) *physical.Plan {
	t.Helper()

	planner := physical.NewPlanner(f.catalog, physical.Options{EnablePickyAppend: pickyAppend})
	plan, err := planner.BuildJoin(physical.JoinQuery{
		Outer: "probes",
		Inner: "orders",
		Kind:  kind,
		On: []physical.JoinCondition{
			{InnerColumn: "key", Op: types.BinOpKindEq, OuterColumn: "probe_key"},
		},
	})
	require.NoError(t, err)
	plan, err = planner.Optimize(plan)
	require.NoError(t, err)
	return plan
}

// collect drains n and returns its rows.
func collect(t *testing.T, n Node) [][]string {
	t.Helper()

	var rows [][]string
	for {
		rec, err := n.Read(t.Context())
		if errors.Is(err, EOF) {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, arrowutil.Rows(rec)...)
		rec.Release()
	}
}

func TestRun_NestedLoopJoin(t *testing.T) {
	f := newFixture(t, "5,first\n25,second\n15,third")

	expect := [][]string{
		{"5", "first", "5", "a5"},
		{"25", "second", "25", "c25"},
		{"15", "third", "15", "b15"},
	}

	for _, picky := range []bool{false, true} {
		name := "append"
		if picky {
			name = "picky append"
		}
		t.Run(name, func(t *testing.T) {
			plan := joinPlan(t, f, physical.JoinTypeInner, picky)
			pipeline := Run(t.Context(), f.config(), plan, nil)
			defer pipeline.Close()

			require.Equal(t, expect, collect(t, pipeline))
		})
	}
}

func TestRun_LeftJoin(t *testing.T) {
	f := newFixture(t, "5,first\n12,second\n25,third")

	plan := joinPlan(t, f, physical.JoinTypeLeft, true)
	pipeline := Run(t.Context(), f.config(), plan, nil)
	defer pipeline.Close()

	require.Equal(t, [][]string{
		{"5", "first", "5", "a5"},
		{"12", "second", "(null)", "(null)"},
		{"25", "third", "25", "c25"},
	}, collect(t, pipeline))
}

func TestRun_RepeatedProbeRestartsPartition(t *testing.T) {
	// The same key twice in a row binds no new value, the partition must be
	// read again anyway.
	f := newFixture(t, "15,first\n15,second")

	plan := joinPlan(t, f, physical.JoinTypeInner, true)
	pipeline := Run(t.Context(), f.config(), plan, nil)
	defer pipeline.Close()

	require.Equal(t, [][]string{
		{"15", "first", "15", "b15"},
		{"15", "second", "15", "b15"},
	}, collect(t, pipeline))
}

func TestRun_Errors(t *testing.T) {
	f := newFixture(t, "5,first")

	t.Run("nil plan", func(t *testing.T) {
		pipeline := Run(t.Context(), f.config(), nil, nil)
		defer pipeline.Close()

		_, err := pipeline.Read(t.Context())
		require.Error(t, err)
	})

	t.Run("missing store", func(t *testing.T) {
		plan := joinPlan(t, f, physical.JoinTypeInner, true)
		cfg := f.config()
		cfg.Store = nil

		pipeline := Run(t.Context(), cfg, plan, nil)
		defer pipeline.Close()

		_, err := pipeline.Read(t.Context())
		require.ErrorContains(t, err, "no partition store configured")
	})

	t.Run("missing partition data", func(t *testing.T) {
		plan := joinPlan(t, f, physical.JoinTypeInner, true)
		cfg := f.config()
		cfg.Store = catalog.NewStore(objstore.NewInMemBucket())

		pipeline := Run(t.Context(), cfg, plan, nil)
		defer pipeline.Close()

		_, err := pipeline.Read(t.Context())
		require.Error(t, err)
	})
}

func TestExplain(t *testing.T) {
	f := newFixture(t, "5,first\n25,second")
	plan := joinPlan(t, f, physical.JoinTypeInner, true)

	t.Run("lists every partition", func(t *testing.T) {
		out, err := Explain(t.Context(), f.config(), plan, nil, false)
		require.NoError(t, err)

		require.Contains(t, out, "NestedLoopJoin")
		require.Contains(t, out, "PickyAppend relation=orders partitions=3 registered=(A, B, C)")
		require.Contains(t, out, "partition=A")
		require.Contains(t, out, "partition=B")
		require.Contains(t, out, "partition=C")
	})

	t.Run("analyze", func(t *testing.T) {
		out, err := Explain(t.Context(), f.config(), plan, nil, true)
		require.NoError(t, err)

		require.Contains(t, out, "rescans=2")
		require.Contains(t, out, "constructed=2")
		require.Contains(t, out, "partition=A")
		require.Contains(t, out, "partition=C")
		require.NotContains(t, out, "partition=B")
	})
}
