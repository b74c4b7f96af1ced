package executor

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/pickyappend/pkg/engine/planner/physical"
)

// schemaOf returns the schema of the records produced by node.
func (c *Context) schemaOf(node physical.Node) (*arrow.Schema, error) {
	switch n := node.(type) {
	case *physical.Scan:
		return c.relationSchema(n.Relation)
	case *physical.PartitionScan:
		return c.relationSchema(n.Relation)
	case *physical.PickyAppend:
		return c.relationSchema(n.Relation)
	case *physical.Append:
		if n.Relation != "" {
			return c.relationSchema(n.Relation)
		}
		children := c.plan.Children(n)
		if len(children) == 0 {
			return nil, fmt.Errorf("append %s has no inputs", n.ID())
		}
		return c.schemaOf(children[0])
	case *physical.Filter, *physical.Limit:
		children := c.plan.Children(n)
		if len(children) != 1 {
			return nil, fmt.Errorf("%s expects exactly one input, got %d", n.Type(), len(children))
		}
		return c.schemaOf(children[0])
	case *physical.NestedLoopJoin:
		children := c.plan.Children(n)
		if len(children) != 2 {
			return nil, fmt.Errorf("nested loop join expects exactly two inputs, got %d", len(children))
		}
		outer, err := c.schemaOf(children[0])
		if err != nil {
			return nil, err
		}
		inner, err := c.schemaOf(children[1])
		if err != nil {
			return nil, err
		}
		return joinSchema(outer, inner, n.Kind)
	}
	return nil, fmt.Errorf("invalid node type: %T", node)
}

func (c *Context) relationSchema(relation string) (*arrow.Schema, error) {
	if c.catalog == nil {
		return nil, fmt.Errorf("no catalog configured")
	}
	table, err := c.catalog.Table(relation)
	if err != nil {
		return nil, err
	}
	return table.Schema, nil
}

// joinSchema returns the fields of outer followed by the fields of inner.
// Column names must be unique across both sides. Inner fields of a LEFT join
// become nullable.
func joinSchema(outer, inner *arrow.Schema, kind physical.JoinType) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, outer.NumFields()+inner.NumFields())
	seen := make(map[string]struct{}, cap(fields))
	add := func(f arrow.Field) error {
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("duplicate column %s in join output", f.Name)
		}
		seen[f.Name] = struct{}{}
		fields = append(fields, f)
		return nil
	}

	for _, f := range outer.Fields() {
		if err := add(f); err != nil {
			return nil, err
		}
	}
	for _, f := range inner.Fields() {
		if kind == physical.JoinTypeLeft {
			f.Nullable = true
		}
		if err := add(f); err != nil {
			return nil, err
		}
	}
	return arrow.NewSchema(fields, nil), nil
}

// validateSchemaCompatibility checks if two schemas are compatible:
//
// - Both schemas have the same number of fields.
// - The data type of each field matches between the two schemas.
//
// validateSchemaCompatibility returns nil if the schemas are compatible.
// Nullability is not compared: records read back from storage may be less
// strict than the catalog.
func validateSchemaCompatibility(a, b *arrow.Schema) error {
	if a.NumFields() != b.NumFields() {
		return fmt.Errorf("schemas have different number of fields: %d vs %d", a.NumFields(), b.NumFields())
	}

	for i := range a.NumFields() {
		aField, bField := a.Field(i), b.Field(i)

		if !arrow.TypeEqual(aField.Type, bField.Type) {
			return fmt.Errorf("field %d has different types: %s vs %s", i, aField.Type, bField.Type)
		}
	}

	return nil
}
