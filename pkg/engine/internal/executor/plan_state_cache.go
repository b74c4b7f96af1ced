package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/dolthub/swiss"

	"github.com/grafana/pickyappend/pkg/engine/internal/catalog"
	"github.com/grafana/pickyappend/pkg/engine/internal/errors"
	"github.com/grafana/pickyappend/pkg/engine/planner/physical"
)

// substateFactory builds the runtime node of a partition sub-plan.
type substateFactory func(ctx context.Context, plan physical.Node) (Node, error)

// runtimeEntry is the runtime state built for one partition.
type runtimeEntry struct {
	ID   catalog.PartitionID
	Node Node
}

// planStateCache holds the substates of a PickyAppend. Entries are created
// on first use and live until closeAll; nothing is ever evicted, so a
// partition is constructed at most once per cache.
type planStateCache struct {
	factory substateFactory
	metrics *Metrics

	states *swiss.Map[catalog.PartitionID, *runtimeEntry]
	order  []*runtimeEntry // creation order
	closed bool
}

func newPlanStateCache(factory substateFactory, sizeHint int, metrics *Metrics) *planStateCache {
	return &planStateCache{
		factory: factory,
		metrics: metrics,
		states:  swiss.NewMap[catalog.PartitionID, *runtimeEntry](uint32(max(sizeHint, 0))),
	}
}

// lookupOrCreate returns the substate of entry, constructing it if this is
// the first lookup for entry's partition. created reports whether the
// substate was constructed by this call.
func (c *planStateCache) lookupOrCreate(ctx context.Context, entry *childEntry) (node Node, created bool, err error) {
	if c.closed {
		return nil, false, errClosed
	}
	if rt, ok := c.states.Get(entry.ID); ok {
		return rt.Node, false, nil
	}

	start := time.Now()
	node, err = c.factory(ctx, entry.Plan)
	if err != nil {
		return nil, false, fmt.Errorf("%w: partition %s: %w", errors.ErrSubstateConstruction, entry.ID, err)
	}
	c.metrics.observeConstruction(time.Since(start))

	rt := &runtimeEntry{ID: entry.ID, Node: node}
	c.states.Put(entry.ID, rt)
	c.order = append(c.order, rt)
	return node, true, nil
}

// all returns every constructed substate in creation order, whether or not
// it is currently selected.
func (c *planStateCache) all() []*runtimeEntry { return c.order }

func (c *planStateCache) len() int { return len(c.order) }

// closeAll tears down every constructed substate. Calling closeAll more than
// once has no effect.
func (c *planStateCache) closeAll() {
	if c.closed {
		return
	}
	for _, rt := range c.order {
		rt.Node.Close()
	}
	c.states.Clear()
	c.order = nil
	c.closed = true
}
