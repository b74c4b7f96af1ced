package catalog

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/thanos-io/objstore"
)

const (
	objectSuffix      = ".arrow"
	unpartitionedName = "data"
)

// Store persists relation data as Arrow IPC streams in an object storage
// bucket. Partitioned relations store one object per partition under
// <relation>/<partition>.arrow; unpartitioned relations use <relation>/data.arrow.
type Store struct {
	bucket objstore.Bucket
	alloc  memory.Allocator
}

// NewStore returns a Store reading from and writing to bucket.
func NewStore(bucket objstore.Bucket) *Store {
	return &Store{
		bucket: bucket,
		alloc:  memory.NewGoAllocator(),
	}
}

// Bucket returns the underlying bucket.
func (s *Store) Bucket() objstore.Bucket { return s.bucket }

// PartitionPath returns the object name holding the data of a partition.
func PartitionPath(relation string, id PartitionID) string {
	return path.Join(relation, string(id)+objectSuffix)
}

// TablePath returns the object name holding the data of an unpartitioned relation.
func TablePath(relation string) string {
	return path.Join(relation, unpartitionedName+objectSuffix)
}

// WritePartition writes records as the full content of a partition.
func (s *Store) WritePartition(ctx context.Context, relation string, id PartitionID, schema *arrow.Schema, records ...arrow.Record) (int, error) {
	return s.write(ctx, PartitionPath(relation, id), schema, records)
}

// WriteTable writes records as the full content of an unpartitioned relation.
func (s *Store) WriteTable(ctx context.Context, relation string, schema *arrow.Schema, records ...arrow.Record) (int, error) {
	return s.write(ctx, TablePath(relation), schema, records)
}

// ReadPartition reads every record of a partition. The returned records must
// be released by the caller.
func (s *Store) ReadPartition(ctx context.Context, relation string, id PartitionID) ([]arrow.Record, error) {
	return s.read(ctx, PartitionPath(relation, id))
}

// ReadTable reads every record of an unpartitioned relation. The returned
// records must be released by the caller.
func (s *Store) ReadTable(ctx context.Context, relation string) ([]arrow.Record, error) {
	return s.read(ctx, TablePath(relation))
}

func (s *Store) write(ctx context.Context, name string, schema *arrow.Schema, records []arrow.Record) (int, error) {
	var buf bytes.Buffer

	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(s.alloc))
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			_ = w.Close()
			return 0, fmt.Errorf("encoding %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("encoding %s: %w", name, err)
	}

	size := buf.Len()
	if err := s.bucket.Upload(ctx, name, &buf); err != nil {
		return 0, fmt.Errorf("uploading %s: %w", name, err)
	}
	return size, nil
}

func (s *Store) read(ctx context.Context, name string) ([]arrow.Record, error) {
	rc, err := s.bucket.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer rc.Close()

	r, err := ipc.NewReader(rc, ipc.WithAllocator(s.alloc))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	defer r.Release()

	var records []arrow.Record
	for r.Next() {
		rec := r.Record()
		rec.Retain()
		records = append(records, rec)
	}
	if err := r.Err(); err != nil {
		for _, rec := range records {
			rec.Release()
		}
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	return records, nil
}
