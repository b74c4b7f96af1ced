package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/grafana/pickyappend/pkg/engine/internal/catalog"
	engineerrors "github.com/grafana/pickyappend/pkg/engine/internal/errors"
	"github.com/grafana/pickyappend/pkg/engine/internal/partition"
	"github.com/grafana/pickyappend/pkg/engine/internal/types"
	"github.com/grafana/pickyappend/pkg/engine/internal/util/tree"
	"github.com/grafana/pickyappend/pkg/engine/planner/physical"
)

type pickyAppendState uint8

const (
	stateUninitialized pickyAppendState = iota
	stateBegan
	stateExecuting
	stateAwaitingRescan
	stateEnded
)

func (s pickyAppendState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateBegan:
		return "began"
	case stateExecuting:
		return "executing"
	case stateAwaitingRescan:
		return "awaiting_rescan"
	case stateEnded:
		return "ended"
	default:
		return fmt.Sprintf("pickyAppendState(%d)", uint8(s))
	}
}

type pickyAppendOptions struct {
	ID       string // ID of the planned node
	Relation string

	Selector *partition.Selector
	// Children are the partition sub-plans in planner order.
	Children []childPlan
	Residual []physical.Expression

	// Factory builds the substate of a partition sub-plan.
	Factory substateFactory

	// CacheSize is the initial capacity of the plan state cache. 0 uses the
	// number of children.
	CacheSize int
}

// selectedChild is a partition picked by the latest rescan.
type selectedChild struct {
	entry *childEntry
	node  Node
}

type pickyAppendStats struct {
	rescans        int64
	constructed    int64
	cacheHits      int64
	forcedRestarts int64
	skipped        int64 // selected partitions without a sub-plan
}

// pickyAppend appends the partitions of a relation which may hold rows for
// the current parameter values. Every rescan selects the partitions anew and
// reuses the substates built by earlier rescans. Rows of the selected
// partitions are filtered with the residual predicates, which re-check what
// partition pruning only approximates.
type pickyAppend struct {
	paramTracker

	opts      pickyAppendOptions
	evaluator *expressionEvaluator
	bindings  types.Bindings
	metrics   *Metrics
	logger    log.Logger

	state    pickyAppendState
	registry *childPlanRegistry
	cache    *planStateCache

	selection []selectedChild
	cursor    int // runningIndex into selection

	// substates built only to describe the plan
	explainStates []*runtimeEntry

	stats pickyAppendStats
}

var _ Node = (*pickyAppend)(nil)

// newPickyAppend creates a PickyAppend node and registers its children.
func newPickyAppend(opts pickyAppendOptions, bindings types.Bindings, evaluator *expressionEvaluator, metrics *Metrics, logger log.Logger) (*pickyAppend, error) {
	if opts.Selector == nil {
		return nil, fmt.Errorf("picky append %s: missing partition selector", opts.Relation)
	}
	if opts.Factory == nil {
		return nil, fmt.Errorf("picky append %s: missing substate factory", opts.Relation)
	}

	registry, err := newChildPlanRegistry(opts.Children)
	if err != nil {
		return nil, err
	}

	dependsOn := opts.Selector.DependsOn().Union(physical.ParamsOf(opts.Residual...))
	for _, child := range opts.Children {
		if scan, ok := child.Plan.(*physical.PartitionScan); ok {
			dependsOn = dependsOn.Union(physical.ParamsOf(scan.Predicates...))
		}
	}

	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &pickyAppend{
		paramTracker: paramTracker{dependsOn: dependsOn},
		opts:         opts,
		evaluator:    evaluator,
		bindings:     bindings,
		metrics:      metrics,
		logger:       log.With(logger, "relation", opts.Relation),
		registry:     registry,
	}, nil
}

// Begin prepares the node for its first rescan. Calling Begin again has no
// effect.
func (p *pickyAppend) Begin() error {
	switch p.state {
	case stateEnded:
		return errClosed
	case stateUninitialized:
	default:
		return nil
	}

	for i, expr := range p.opts.Residual {
		if err := p.evaluator.check(expr); err != nil {
			return fmt.Errorf("residual %d (%s): %w", i, expr, err)
		}
	}
	p.cache = newPlanStateCache(p.opts.Factory, p.cacheSize(), p.metrics)
	p.selection = nil
	p.cursor = 0
	p.state = stateBegan
	return nil
}

// cacheSize returns the initial capacity of the plan state cache. Without a
// configured size, the cache is sized to hold every partition.
func (p *pickyAppend) cacheSize() int {
	if p.opts.CacheSize > 0 {
		return p.opts.CacheSize
	}
	return p.registry.len()
}

// Rescan selects the partitions matching the current parameter values and
// restarts reading from the first of them.
func (p *pickyAppend) Rescan(ctx context.Context) error {
	if p.state == stateEnded {
		return errClosed
	}
	if err := p.Begin(); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "pickyAppend.Rescan", trace.WithAttributes(
		attribute.String("relation", p.opts.Relation),
		attribute.Stringer("changed_params", p.changed),
	))
	defer span.End()

	sel, err := p.opts.Selector.Select(p.bindings)
	if err != nil {
		return fmt.Errorf("selecting partitions of %s: %w", p.opts.Relation, err)
	}

	var constructed, hits, restarts int
	next := make([]selectedChild, 0, len(sel.IDs))
	for _, id := range sel.IDs {
		entry, ok := p.registry.lookup(id)
		if !ok {
			// The planner did not provide a sub-plan for the partition.
			p.stats.skipped++
			continue
		}

		node, created, err := p.cache.lookupOrCreate(ctx, entry)
		if err != nil {
			return err
		}
		if created {
			constructed++
		} else {
			hits++
			p.metrics.observeCacheHit()

			// A revisited substate must start over for the new probe even if
			// none of its own parameters changed.
			node.UpdateChangedParams(p.changed)
			if node.ChangedParams().IsEmpty() {
				if err := node.Rescan(ctx); err != nil {
					return err
				}
				restarts++
				p.metrics.observeForcedRestart()
			}
		}
		next = append(next, selectedChild{entry: entry, node: node})
	}

	p.selection = next
	p.cursor = 0
	p.clearChanged()
	p.state = stateExecuting

	p.stats.rescans++
	p.stats.constructed += int64(constructed)
	p.stats.cacheHits += int64(hits)
	p.stats.forcedRestarts += int64(restarts)
	p.metrics.observeRescan(len(next))

	span.SetAttributes(
		attribute.Int("selected", len(next)),
		attribute.Int("constructed", constructed),
		attribute.Int("cache_hits", hits),
	)
	level.Debug(p.logger).Log(
		"msg", "rescanned picky append",
		"selected", len(next),
		"constructed", constructed,
		"cache_hits", hits,
		"forced_restarts", restarts,
	)
	return nil
}

// Read returns the next batch of rows of the selected partitions which pass
// the residual predicates. Once the selection is exhausted, Read returns EOF
// until the node is rescanned.
func (p *pickyAppend) Read(ctx context.Context) (arrow.Record, error) {
	switch {
	case p.state == stateEnded:
		return nil, errClosed
	case p.state == stateUninitialized, p.state == stateBegan, !p.changed.IsEmpty():
		if err := p.Rescan(ctx); err != nil {
			return nil, err
		}
	}

	for p.cursor < len(p.selection) {
		child := p.selection[p.cursor]

		rec, err := readNode(ctx, child.node)
		if errors.Is(err, EOF) {
			p.cursor++
			continue
		} else if err != nil {
			return nil, fmt.Errorf("reading partition %s: %w", child.entry.ID, err)
		}

		filtered, err := filterRecord(rec, p.opts.Residual, p.evaluator)
		rec.Release()
		if err != nil {
			return nil, err
		}
		if filtered.NumRows() == 0 {
			filtered.Release()
			continue
		}
		return filtered, nil
	}

	p.state = stateAwaitingRescan
	return nil, EOF
}

// Close tears down every substate the node constructed. Calling Close more
// than once has no effect.
func (p *pickyAppend) Close() {
	if p.state == stateEnded {
		return
	}
	if p.cache != nil {
		p.cache.closeAll()
		p.cache = nil
	}
	for _, rt := range p.explainStates {
		rt.Node.Close()
	}
	p.explainStates = nil
	p.selection = nil
	p.registry = nil
	p.state = stateEnded
}

// selected returns the partitions picked by the latest rescan, in execution
// order.
func (p *pickyAppend) selected() []catalog.PartitionID {
	ids := make([]catalog.PartitionID, len(p.selection))
	for i, child := range p.selection {
		ids[i] = child.entry.ID
	}
	return ids
}

// Explain describes the node. Without analyze, it lists every partition of
// the node in registration order, building a substate for each of them. With
// analyze, it describes the substates built while executing and the
// statistics of the node.
func (p *pickyAppend) Explain(ctx context.Context, analyze bool) (*tree.Node, error) {
	if p.state == stateEnded {
		return nil, errClosed
	}

	entries := p.registry.entries()
	ids := make([]any, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}

	node := tree.NewNode(physical.NodeTypePickyAppend.String(), p.opts.ID,
		tree.NewProperty("relation", false, p.opts.Relation),
		tree.NewProperty("partitions", false, len(entries)),
		tree.NewProperty("registered", true, ids...),
	)
	node.Add(tree.Indexed("predicate", p.opts.Selector.Predicates())...)
	node.Add(tree.Indexed("residual", p.opts.Residual)...)

	if !analyze {
		if err := p.buildExplainStates(ctx); err != nil {
			return nil, err
		}
		for _, rt := range p.explainStates {
			node.AddChild(describeNode(rt.Node, false))
		}
		return node, nil
	}

	node.Add(
		tree.NewProperty("state", false, p.state),
		tree.NewProperty("selected", true, toAny(p.selected())...),
		tree.NewProperty("rescans", false, p.stats.rescans),
		tree.NewProperty("constructed", false, p.stats.constructed),
		tree.NewProperty("cache_hits", false, p.stats.cacheHits),
		tree.NewProperty("forced_restarts", false, p.stats.forcedRestarts),
	)
	if p.stats.skipped > 0 {
		node.Add(tree.NewProperty("skipped", false, p.stats.skipped))
	}
	if p.cache != nil {
		for _, rt := range p.cache.all() {
			node.AddChild(describeNode(rt.Node, true))
		}
	}
	return node, nil
}

// buildExplainStates constructs a throwaway substate for every registered
// partition. They are kept until Close.
func (p *pickyAppend) buildExplainStates(ctx context.Context) error {
	if p.explainStates != nil {
		return nil
	}

	states := make([]*runtimeEntry, 0, p.registry.len())
	for _, entry := range p.registry.entries() {
		n, err := p.opts.Factory(ctx, entry.Plan)
		if err != nil {
			for _, rt := range states {
				rt.Node.Close()
			}
			return fmt.Errorf("%w: partition %s: %w", engineerrors.ErrSubstateConstruction, entry.ID, err)
		}
		p.metrics.observeExplainSubstate()
		states = append(states, &runtimeEntry{ID: entry.ID, Node: n})
	}
	p.explainStates = states
	return nil
}

// explainer is implemented by nodes which can describe themselves.
type explainer interface {
	explain() *tree.Node
}

// describeNode describes a runtime node. Runtime statistics are included when
// analyze is set.
func describeNode(n Node, analyze bool) *tree.Node {
	var node *tree.Node
	if e, ok := unwrapNode(n).(explainer); ok {
		node = e.explain()
	} else {
		node = tree.NewNode(fmt.Sprintf("%T", unwrapNode(n)), "")
	}
	if t, ok := n.(*tracedNode); ok && analyze {
		node.Merge(t.stats.properties()...)
	}
	return node
}

func toAny[T any](s []T) []any {
	ret := make([]any, len(s))
	for i := range s {
		ret[i] = s[i]
	}
	return ret
}
