package engine

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore"

	"github.com/grafana/pickyappend/pkg/engine/internal/catalog"
)

const testFixture = `
tables:
  - name: orders
    columns:
      - {name: key, type: int64}
      - {name: item, type: string}
    partitioning:
      kind: range
      key: key
      partitions:
        - {id: A, lower: 0, upper: 10}
        - {id: B, lower: 10, upper: 20}
        - {id: C, lower: 20, upper: 30}
    rows: |
      1,a1
      15,b15
      5,a5
      25,c25
      12,b12
  - name: probes
    columns:
      - {name: probe_key, type: int64}
      - {name: label, type: string}
    rows: |
      5,first
      25,second
      15,third
      7,fourth
`

const testQuery = `
outer: probes
inner: orders
on:
  - {inner: key, op: "=", outer: probe_key}
`

func newTestEngine(t *testing.T, cfg ExecutorConfig, reg prometheus.Registerer) *Engine {
	t.Helper()

	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2
	}
	e, err := New(Params{
		Registerer: reg,
		Config:     cfg,
		Bucket:     objstore.NewInMemBucket(),
	})
	require.NoError(t, err)

	f, err := ParseFixture([]byte(testFixture))
	require.NoError(t, err)
	require.NoError(t, e.Load(t.Context(), f))
	return e
}

// counterValue returns the value of the counter called name in reg.
func counterValue(t *testing.T, reg prometheus.Gatherer, name string) float64 {
	t.Helper()

	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestEngine_Execute(t *testing.T) {
	expect := [][]string{
		{"5", "first", "5", "a5"},
		{"25", "second", "25", "c25"},
		{"15", "third", "15", "b15"},
	}

	for _, picky := range []bool{false, true} {
		t.Run(map[bool]string{false: "append", true: "picky append"}[picky], func(t *testing.T) {
			reg := prometheus.NewRegistry()
			e := newTestEngine(t, ExecutorConfig{EnablePickyAppend: picky}, reg)

			q, err := ParseQuery([]byte(testQuery))
			require.NoError(t, err)
			plan, err := e.Build(q)
			require.NoError(t, err)

			res, err := e.Execute(t.Context(), plan)
			require.NoError(t, err)
			require.Equal(t, []string{"probe_key", "label", "key", "item"}, res.Columns)
			require.Equal(t, expect, res.Rows)

			rescans := counterValue(t, reg, "pickyappend_rescans_total")
			if picky {
				require.Equal(t, float64(4), rescans)
			} else {
				require.Zero(t, rescans)
			}
		})
	}
}

func TestEngine_FloatOuterKey(t *testing.T) {
	const fixture = `
tables:
  - name: orders
    columns:
      - {name: key, type: int64}
      - {name: item, type: string}
    partitioning:
      kind: range
      key: key
      partitions:
        - {id: A, lower: 0, upper: 10}
        - {id: B, lower: 10, upper: 20}
        - {id: C, lower: 20, upper: 30}
    rows: |
      1,a1
      15,b15
      25,c25
  - name: probes
    columns:
      - {name: pk, type: float64}
    rows: |
      15
      15.5
      -1
`
	for _, tt := range []struct {
		op     string
		expect [][]string
	}{
		{"=", [][]string{{"15", "15", "b15"}}},
		{"<", [][]string{{"15", "1", "a1"}, {"15.5", "1", "a1"}, {"15.5", "15", "b15"}}},
		{">=", [][]string{{"15", "15", "b15"}, {"15", "25", "c25"}, {"15.5", "25", "c25"}, {"-1", "1", "a1"}, {"-1", "15", "b15"}, {"-1", "25", "c25"}}},
	} {
		t.Run(tt.op, func(t *testing.T) {
			q := Query{Outer: "probes", Inner: "orders", On: []JoinOn{{Inner: "key", Op: tt.op, Outer: "pk"}}}

			var results [][][]string
			for _, picky := range []bool{false, true} {
				e, err := New(Params{
					Config: ExecutorConfig{BatchSize: 2, EnablePickyAppend: picky},
					Bucket: objstore.NewInMemBucket(),
				})
				require.NoError(t, err)

				f, err := ParseFixture([]byte(fixture))
				require.NoError(t, err)
				require.NoError(t, e.Load(t.Context(), f))

				plan, err := e.Build(q)
				require.NoError(t, err)
				res, err := e.Execute(t.Context(), plan)
				require.NoError(t, err)
				results = append(results, res.Rows)
			}

			require.Equal(t, tt.expect, results[0])
			require.Equal(t, results[0], results[1], "picky append must return the rows of a plain append")
		})
	}
}

func TestEngine_ScanQuery(t *testing.T) {
	e := newTestEngine(t, ExecutorConfig{}, nil)

	plan, err := e.Build(Query{
		Scan:  "orders",
		Where: []Predicate{{Column: "key", Op: ">=", Value: 10}},
		Fetch: 2,
	})
	require.NoError(t, err)

	res, err := e.Execute(t.Context(), plan)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"15", "b15"}, {"12", "b12"}}, res.Rows)
}

func TestEngine_LoadRoutesRows(t *testing.T) {
	e := newTestEngine(t, ExecutorConfig{}, nil)
	require.Equal(t, []string{"orders", "probes"}, e.Relations())

	for id, expect := range map[string]int{"A": 2, "B": 2, "C": 1} {
		recs, err := e.store.ReadPartition(t.Context(), "orders", catalog.PartitionID(id))
		require.NoError(t, err)

		var rows int64
		for _, rec := range recs {
			rows += rec.NumRows()
			rec.Release()
		}
		require.Equal(t, int64(expect), rows, "partition %s", id)
	}

	t.Run("uncovered key", func(t *testing.T) {
		e, err := New(Params{Config: ExecutorConfig{BatchSize: 1}, Bucket: objstore.NewInMemBucket()})
		require.NoError(t, err)

		f, err := ParseFixture([]byte(strings.Replace(testFixture, "12,b12", "42,x", 1)))
		require.NoError(t, err)
		require.ErrorContains(t, e.Load(t.Context(), f), "not covered by any partition")
	})
}

func TestEngine_Explain(t *testing.T) {
	e := newTestEngine(t, ExecutorConfig{EnablePickyAppend: true}, nil)

	plan, err := e.Build(Query{
		Outer: "probes",
		Inner: "orders",
		On:    []JoinOn{{Inner: "key", Op: "=", Outer: "probe_key"}},
	})
	require.NoError(t, err)

	out, err := e.Explain(t.Context(), plan, false)
	require.NoError(t, err)
	require.Contains(t, out, "registered=(A, B, C)")

	out, err = e.Explain(t.Context(), plan, true)
	require.NoError(t, err)
	require.Contains(t, out, "rescans=4")
}

func TestEngine_Errors(t *testing.T) {
	t.Run("invalid params", func(t *testing.T) {
		_, err := New(Params{Bucket: objstore.NewInMemBucket()})
		require.ErrorContains(t, err, "invalid batch size")

		_, err = New(Params{Config: ExecutorConfig{BatchSize: 1}})
		require.ErrorContains(t, err, "bucket is required")
	})

	e := newTestEngine(t, ExecutorConfig{EnablePickyAppend: true}, nil)

	t.Run("full join", func(t *testing.T) {
		_, err := e.Build(Query{
			Outer: "probes",
			Inner: "orders",
			Join:  "full",
			On:    []JoinOn{{Inner: "key", Op: "=", Outer: "probe_key"}},
		})
		require.ErrorIs(t, err, ErrNotSupported)
	})

	t.Run("unknown relation", func(t *testing.T) {
		_, err := e.Build(Query{Scan: "missing"})
		require.ErrorIs(t, err, ErrPlanningFailed)
	})

	t.Run("unknown operator", func(t *testing.T) {
		_, err := e.Build(Query{Scan: "orders", Where: []Predicate{{Column: "key", Op: "~", Value: 1}}})
		require.ErrorIs(t, err, ErrPlanningFailed)
	})

	t.Run("scan and join", func(t *testing.T) {
		_, err := ParseQuery([]byte("scan: orders\nouter: probes\n"))
		require.Error(t, err)
	})

	t.Run("unknown fixture field", func(t *testing.T) {
		_, err := ParseFixture([]byte("tables:\n  - name: x\n    colour: red\n"))
		require.Error(t, err)
	})
}

func TestSummarize(t *testing.T) {
	for _, tt := range []struct {
		picky      bool
		expectPA   int
		expectScan int
	}{
		{picky: false, expectPA: 0, expectScan: 3},
		{picky: true, expectPA: 1, expectScan: 0},
	} {
		e := newTestEngine(t, ExecutorConfig{EnablePickyAppend: tt.picky}, nil)
		q, err := ParseQuery([]byte(testQuery))
		require.NoError(t, err)
		plan, err := e.Build(q)
		require.NoError(t, err)

		s, err := summarize(plan)
		require.NoError(t, err)
		require.Equal(t, tt.expectPA, s.pickyAppends)
		require.Equal(t, tt.expectScan, s.eagerScans)
	}
}
