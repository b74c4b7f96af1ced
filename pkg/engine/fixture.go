package engine

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"gopkg.in/yaml.v2"

	"github.com/grafana/pickyappend/pkg/engine/internal/arrowutil"
	"github.com/grafana/pickyappend/pkg/engine/internal/catalog"
)

// Fixture describes relations and their content. Fixtures are usually read
// from YAML files with [ParseFixture].
type Fixture struct {
	Tables []TableFixture `yaml:"tables"`
}

// TableFixture describes a single relation.
type TableFixture struct {
	Name         string        `yaml:"name"`
	Columns      []Column      `yaml:"columns"`
	Partitioning *Partitioning `yaml:"partitioning,omitempty"`

	// Rows holds the content of the relation as CSV without a header. Rows
	// of partitioned relations are routed to their partition by the value
	// of the partition key.
	Rows string `yaml:"rows"`
}

// Column is a column of a relation. Supported types are int64, float64,
// string and bool.
type Column struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable,omitempty"`
}

// Partitioning describes how a relation is split into partitions.
type Partitioning struct {
	Kind       string          `yaml:"kind"` // range or hash
	Key        string          `yaml:"key"`
	Partitions []PartitionSpec `yaml:"partitions"`
}

// PartitionSpec describes one partition. Lower and Upper are only used by
// range partitioning and bound keys in [Lower, Upper).
type PartitionSpec struct {
	ID    string `yaml:"id"`
	Lower int64  `yaml:"lower,omitempty"`
	Upper int64  `yaml:"upper,omitempty"`
}

// ParseFixture decodes a YAML fixture. Unknown fields are rejected.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixture: %w", err)
	}
	return &f, nil
}

// ParseQuery decodes a YAML query. Unknown fields are rejected.
func ParseQuery(data []byte) (Query, error) {
	var q Query
	if err := yaml.UnmarshalStrict(data, &q); err != nil {
		return Query{}, fmt.Errorf("parsing query: %w", err)
	}
	return q, q.validate()
}

func (t *TableFixture) table() (*catalog.Table, error) {
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("table %s has no columns", t.Name)
	}

	fields := make([]arrow.Field, 0, len(t.Columns))
	for _, col := range t.Columns {
		dt, err := columnType(col.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s of %s: %w", col.Name, t.Name, err)
		}
		fields = append(fields, arrow.Field{Name: col.Name, Type: dt, Nullable: col.Nullable})
	}
	table := &catalog.Table{Name: t.Name, Schema: arrow.NewSchema(fields, nil)}

	if t.Partitioning == nil {
		return table, nil
	}

	kind, err := catalog.ParseKind(t.Partitioning.Kind)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", t.Name, err)
	}
	var desc *catalog.Descriptor
	switch kind {
	case catalog.KindRange:
		parts := make([]catalog.Partition, len(t.Partitioning.Partitions))
		for i, p := range t.Partitioning.Partitions {
			parts[i] = catalog.Partition{ID: catalog.PartitionID(p.ID), Lower: p.Lower, Upper: p.Upper}
		}
		desc, err = catalog.NewRangeDescriptor(t.Name, t.Partitioning.Key, parts)
	case catalog.KindHash:
		ids := make([]catalog.PartitionID, len(t.Partitioning.Partitions))
		for i, p := range t.Partitioning.Partitions {
			ids[i] = catalog.PartitionID(p.ID)
		}
		desc, err = catalog.NewHashDescriptor(t.Name, t.Partitioning.Key, ids)
	}
	if err != nil {
		return nil, err
	}
	table.Partitioning = desc
	return table, nil
}

func columnType(name string) (arrow.DataType, error) {
	switch strings.ToLower(name) {
	case "int64", "int":
		return arrow.PrimitiveTypes.Int64, nil
	case "float64", "float":
		return arrow.PrimitiveTypes.Float64, nil
	case "string":
		return arrow.BinaryTypes.String, nil
	case "bool":
		return arrow.FixedWidthTypes.Boolean, nil
	default:
		return nil, fmt.Errorf("unsupported column type %q", name)
	}
}

// ingest writes the rows of t to store.
func ingest(ctx context.Context, store *catalog.Store, alloc memory.Allocator, table *catalog.Table, rows string) (int, error) {
	if !table.IsPartitioned() {
		return writeCSV(ctx, alloc, table.Schema, rows, func(rec arrow.Record) (int, error) {
			return store.WriteTable(ctx, table.Name, table.Schema, rec)
		})
	}

	routed, err := routeRows(table, rows)
	if err != nil {
		return 0, err
	}

	var written int
	desc := table.Partitioning
	for i, p := range desc.Partitions() {
		n, err := writeCSV(ctx, alloc, table.Schema, routed[i], func(rec arrow.Record) (int, error) {
			return store.WritePartition(ctx, table.Name, p.ID, table.Schema, rec)
		})
		if err != nil {
			return written, fmt.Errorf("partition %s of %s: %w", p.ID, table.Name, err)
		}
		written += n
	}
	return written, nil
}

func writeCSV(ctx context.Context, alloc memory.Allocator, schema *arrow.Schema, data string, write func(arrow.Record) (int, error)) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rec, err := arrowutil.RecordFromCSV(alloc, schema, data)
	if err != nil {
		return 0, err
	}
	defer rec.Release()
	return write(rec)
}

// routeRows splits the CSV rows of a partitioned table by partition. Rows
// whose key falls outside every partition are rejected.
func routeRows(table *catalog.Table, rows string) ([]string, error) {
	desc := table.Partitioning
	keyIdx := table.Schema.FieldIndices(desc.KeyColumn())[0]

	bufs := make([]bytes.Buffer, desc.Len())
	writers := make([]*csv.Writer, desc.Len())
	for i := range writers {
		writers[i] = csv.NewWriter(&bufs[i])
	}

	r := csv.NewReader(strings.NewReader(strings.TrimSpace(rows)))
	r.FieldsPerRecord = table.Schema.NumFields()
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("reading rows of %s: %w", table.Name, err)
		}

		key, err := strconv.ParseInt(strings.TrimSpace(row[keyIdx]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("partition key of %s: %w", table.Name, err)
		}
		idx, ok := desc.Route(key)
		if !ok {
			return nil, fmt.Errorf("key %d of %s is not covered by any partition", key, table.Name)
		}
		if err := writers[idx].Write(row); err != nil {
			return nil, err
		}
	}

	out := make([]string, len(bufs))
	for i, w := range writers {
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		out[i] = bufs[i].String()
	}
	return out, nil
}
