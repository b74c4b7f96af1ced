package executor

import (
	"fmt"

	"github.com/dolthub/swiss"

	"github.com/grafana/pickyappend/pkg/engine/internal/catalog"
	"github.com/grafana/pickyappend/pkg/engine/internal/errors"
	"github.com/grafana/pickyappend/pkg/engine/planner/physical"
)

// childPlan is a partition sub-plan as supplied by the planner.
type childPlan struct {
	ID   catalog.PartitionID
	Plan physical.Node
}

// childEntry is a registered partition sub-plan. OriginalOrder is the
// position of the sub-plan in the list it was registered from; it is only
// used to list entries in a stable order.
type childEntry struct {
	ID            catalog.PartitionID
	Plan          physical.Node
	OriginalOrder int
}

// childPlanRegistry maps partition IDs to the sub-plans of a PickyAppend. It
// is frozen once built.
type childPlanRegistry struct {
	byID    *swiss.Map[catalog.PartitionID, *childEntry]
	ordered []*childEntry
	frozen  bool
}

// newChildPlanRegistry registers children in order and freezes the registry.
func newChildPlanRegistry(children []childPlan) (*childPlanRegistry, error) {
	r := &childPlanRegistry{
		byID:    swiss.NewMap[catalog.PartitionID, *childEntry](uint32(len(children))),
		ordered: make([]*childEntry, 0, len(children)),
	}
	for _, child := range children {
		if err := r.register(child.ID, child.Plan); err != nil {
			return nil, err
		}
	}
	r.freeze()
	return r, nil
}

// register adds a sub-plan. Registering into a frozen registry is a
// programming error and panics.
func (r *childPlanRegistry) register(id catalog.PartitionID, plan physical.Node) error {
	if r.frozen {
		panic(fmt.Sprintf("childPlanRegistry: register %s after freeze", id))
	}
	if r.byID.Has(id) {
		return fmt.Errorf("%w: partition %s registered twice", errors.ErrContractViolation, id)
	}

	entry := &childEntry{ID: id, Plan: plan, OriginalOrder: len(r.ordered)}
	r.byID.Put(id, entry)
	r.ordered = append(r.ordered, entry)
	return nil
}

func (r *childPlanRegistry) freeze() { r.frozen = true }

func (r *childPlanRegistry) lookup(id catalog.PartitionID) (*childEntry, bool) {
	return r.byID.Get(id)
}

// entries returns every entry sorted by OriginalOrder.
func (r *childPlanRegistry) entries() []*childEntry { return r.ordered }

func (r *childPlanRegistry) len() int { return len(r.ordered) }
