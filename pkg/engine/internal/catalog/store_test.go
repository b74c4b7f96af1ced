package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore"

	"github.com/grafana/pickyappend/pkg/engine/internal/arrowutil"
)

var ordersSchema = arrow.NewSchema([]arrow.Field{
	{Name: "key", Type: arrow.PrimitiveTypes.Int64},
	{Name: "item", Type: arrow.BinaryTypes.String},
}, nil)

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	alloc := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer alloc.AssertSize(t, 0)

	bucket := objstore.NewInMemBucket()
	store := NewStore(bucket)

	rec, err := arrowutil.RecordFromCSV(alloc, ordersSchema, "1,apple\n2,pear")
	require.NoError(t, err)
	defer rec.Release()

	size, err := store.WritePartition(ctx, "orders", "A", ordersSchema, rec)
	require.NoError(t, err)
	require.Positive(t, size)
	require.Contains(t, bucket.Objects(), "orders/A.arrow")

	records, err := store.ReadPartition(ctx, "orders", "A")
	require.NoError(t, err)
	require.Len(t, records, 1)
	defer records[0].Release()

	require.True(t, records[0].Schema().Equal(ordersSchema))
	require.Equal(t, [][]string{{"1", "apple"}, {"2", "pear"}}, arrowutil.Rows(records[0]))
}

func TestStore_EmptyPartition(t *testing.T) {
	ctx := context.Background()
	store := NewStore(objstore.NewInMemBucket())

	_, err := store.WritePartition(ctx, "orders", "empty", ordersSchema)
	require.NoError(t, err)

	records, err := store.ReadPartition(ctx, "orders", "empty")
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestStore_Table(t *testing.T) {
	ctx := context.Background()
	store := NewStore(objstore.NewInMemBucket())

	rec, err := arrowutil.RecordFromCSV(memory.NewGoAllocator(), ordersSchema, "5,plum")
	require.NoError(t, err)
	defer rec.Release()

	_, err = store.WriteTable(ctx, "probes", ordersSchema, rec)
	require.NoError(t, err)

	records, err := store.ReadTable(ctx, "probes")
	require.NoError(t, err)
	require.Len(t, records, 1)
	defer records[0].Release()
	require.Equal(t, [][]string{{"5", "plum"}}, arrowutil.Rows(records[0]))
}

func TestStore_MissingObject(t *testing.T) {
	store := NewStore(objstore.NewInMemBucket())

	_, err := store.ReadPartition(context.Background(), "orders", "nope")
	require.Error(t, err)
	require.True(t, store.Bucket().IsObjNotFoundErr(errorsCause(err)))
}

// errorsCause unwraps err down to the bucket error.
func errorsCause(err error) error {
	for errors.Unwrap(err) != nil {
		err = errors.Unwrap(err)
	}
	return err
}

func TestCatalog_Register(t *testing.T) {
	desc, err := NewRangeDescriptor("orders", "key", []Partition{{ID: "A", Lower: 0, Upper: 10}})
	require.NoError(t, err)

	c := New()
	require.NoError(t, c.Register(&Table{Name: "orders", Schema: ordersSchema, Partitioning: desc}))
	require.Error(t, c.Register(&Table{Name: "orders", Schema: ordersSchema}), "duplicate")

	badKey, err := NewRangeDescriptor("items", "item", []Partition{{ID: "A", Lower: 0, Upper: 10}})
	require.NoError(t, err)
	require.Error(t, c.Register(&Table{Name: "items", Schema: ordersSchema, Partitioning: badKey}), "string key")

	tbl, err := c.Table("orders")
	require.NoError(t, err)
	require.True(t, tbl.IsPartitioned())

	_, err = c.Table("missing")
	require.Error(t, err)
	require.Equal(t, []string{"orders"}, c.Names())
}
