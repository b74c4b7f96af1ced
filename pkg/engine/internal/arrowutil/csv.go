// Package arrowutil contains helpers for building and inspecting Arrow
// records.
package arrowutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// RecordFromCSV converts a CSV string to an Arrow record based on the provided
// schema. It reads all rows from the CSV into a single record. An empty input
// produces a record with zero rows.
//
// The returned record must be released by the caller.
func RecordFromCSV(allocator memory.Allocator, schema *arrow.Schema, data string) (arrow.Record, error) {
	// first, trim the data to remove any preceding and trailing whitespace/line breaks
	data = strings.TrimSpace(data)
	if data == "" {
		return EmptyRecord(allocator, schema), nil
	}

	reader := csv.NewReader(
		strings.NewReader(data),
		schema,
		csv.WithAllocator(allocator),
		csv.WithNullReader(true),
		csv.WithComma(','),
		csv.WithChunk(-1), // Read all rows
	)
	defer reader.Release()

	if !reader.Next() {
		if err := reader.Err(); err != nil {
			return nil, fmt.Errorf("reading CSV data: %w", err)
		}
		return nil, errors.New("failed to read CSV data")
	}

	rec := reader.Record()
	rec.Retain()
	return rec, nil
}

// EmptyRecord returns a record with the given schema and no rows.
func EmptyRecord(allocator memory.Allocator, schema *arrow.Schema) arrow.Record {
	b := array.NewRecordBuilder(allocator, schema)
	defer b.Release()
	return b.NewRecord()
}

// Int64Column returns the int64 column with the given name.
func Int64Column(rec arrow.Record, name string) (*array.Int64, error) {
	idx := rec.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return nil, fmt.Errorf("column %s not found", name)
	}
	col, ok := rec.Column(idx[0]).(*array.Int64)
	if !ok {
		return nil, fmt.Errorf("column %s has type %s, expected int64", name, rec.Column(idx[0]).DataType())
	}
	return col, nil
}

// Rows returns the values of every row of rec, formatted with
// [arrow.Array.ValueStr]. Null values are rendered as "(null)".
func Rows(rec arrow.Record) [][]string {
	rows := make([][]string, rec.NumRows())
	for i := range rows {
		row := make([]string, rec.NumCols())
		for j := range row {
			row[j] = rec.Column(j).ValueStr(i)
		}
		rows[i] = row
	}
	return rows
}
