// Package catalog holds relation metadata (schemas and partition descriptors)
// and the object storage layout of relation data.
package catalog

import (
	"fmt"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
)

// Table describes one relation known to the engine.
type Table struct {
	Name   string
	Schema *arrow.Schema

	// Partitioning is nil for unpartitioned relations.
	Partitioning *Descriptor
}

// IsPartitioned reports whether t is split into partitions.
func (t *Table) IsPartitioned() bool { return t.Partitioning != nil }

// Catalog is a set of tables indexed by name. A Catalog is populated before
// planning and read-only afterwards.
type Catalog struct {
	tables map[string]*Table
}

// New returns an empty Catalog.
func New() *Catalog {
	return &Catalog{tables: make(map[string]*Table)}
}

// Register adds t to the catalog.
func (c *Catalog) Register(t *Table) error {
	if t.Name == "" {
		return fmt.Errorf("table without name")
	}
	if t.Schema == nil {
		return fmt.Errorf("table %s: missing schema", t.Name)
	}
	if _, exists := c.tables[t.Name]; exists {
		return fmt.Errorf("table %s already registered", t.Name)
	}
	if t.Partitioning != nil {
		if t.Partitioning.Relation() != t.Name {
			return fmt.Errorf("table %s: descriptor belongs to %s", t.Name, t.Partitioning.Relation())
		}
		idx := t.Schema.FieldIndices(t.Partitioning.KeyColumn())
		if len(idx) != 1 {
			return fmt.Errorf("table %s: partition key %s must match exactly one column", t.Name, t.Partitioning.KeyColumn())
		}
		if t.Schema.Field(idx[0]).Type.ID() != arrow.INT64 {
			return fmt.Errorf("table %s: partition key %s must be int64, got %s", t.Name, t.Partitioning.KeyColumn(), t.Schema.Field(idx[0]).Type)
		}
	}
	c.tables[t.Name] = t
	return nil
}

// Table returns the table with the given name.
func (c *Catalog) Table(name string) (*Table, error) {
	t, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("unknown table %s", name)
	}
	return t, nil
}

// Names returns the names of all registered tables in lexical order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
