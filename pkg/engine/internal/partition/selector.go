package partition

import (
	"slices"

	"github.com/grafana/pickyappend/pkg/engine/internal/catalog"
	"github.com/grafana/pickyappend/pkg/engine/internal/rangeset"
	"github.com/grafana/pickyappend/pkg/engine/internal/types"
	"github.com/grafana/pickyappend/pkg/engine/planner/physical"
)

// Selection is the result of [Selector.Select].
type Selection struct {
	// IDs are the selected partitions, in ascending partition index order.
	IDs []catalog.PartitionID
	// Ranges are the selected partition indices.
	Ranges rangeset.Set
}

// Selector computes the partitions of a relation that can hold rows matching
// all of its predicates. A Selector has no state besides its inputs, calling
// Select twice with equal bindings returns equal selections.
type Selector struct {
	desc       *catalog.Descriptor
	predicates []physical.Expression
	params     types.ParamSet
}

// NewSelector returns a Selector for the partitions of desc.
func NewSelector(desc *catalog.Descriptor, predicates []physical.Expression) *Selector {
	return &Selector{
		desc:       desc,
		predicates: slices.Clone(predicates),
		params:     physical.ParamsOf(predicates...),
	}
}

// DependsOn returns the parameters referenced by the predicates.
func (s *Selector) DependsOn() types.ParamSet { return s.params }

// Predicates returns the predicates used for pruning.
func (s *Selector) Predicates() []physical.Expression { return s.predicates }

// Descriptor returns the partition descriptor the selector prunes.
func (s *Selector) Descriptor() *catalog.Descriptor { return s.desc }

// Select returns the partitions that may hold rows matching every predicate
// under bindings. Adding predicates never selects more partitions.
func (s *Selector) Select(bindings types.Bindings) (Selection, error) {
	selected := rangeset.Full(s.desc.Len())
	for _, pred := range s.predicates {
		r, err := EvaluateRange(pred, bindings, s.desc)
		if err != nil {
			return Selection{}, err
		}
		selected = selected.Intersect(r)
	}

	ids := make([]catalog.PartitionID, 0, selected.Len())
	for _, i := range selected.Indices() {
		id, err := s.desc.At(i)
		if err != nil {
			return Selection{}, err
		}
		ids = append(ids, id)
	}
	return Selection{IDs: ids, Ranges: selected}, nil
}
