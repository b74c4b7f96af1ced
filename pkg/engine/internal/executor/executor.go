package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/grafana/pickyappend/pkg/engine/internal/catalog"
	"github.com/grafana/pickyappend/pkg/engine/internal/partition"
	"github.com/grafana/pickyappend/pkg/engine/internal/types"
	"github.com/grafana/pickyappend/pkg/engine/internal/util/tree"
	"github.com/grafana/pickyappend/pkg/engine/planner/physical"
)

var tracer = otel.Tracer("pkg/engine/internal/executor")

type Config struct {
	BatchSize int64

	Catalog *catalog.Catalog
	Store   *catalog.Store

	// PlanStateCacheSize is the initial capacity of the plan state cache of
	// every PickyAppend node.
	PlanStateCacheSize int

	// Allocator defaults to the Go allocator.
	Allocator memory.Allocator
	Metrics   *Metrics
}

// Run builds the pipeline executing plan. Errors building the pipeline are
// returned by the first Read.
func Run(ctx context.Context, cfg Config, plan *physical.Plan, logger log.Logger) Node {
	c := newContext(cfg, plan, logger)
	if plan == nil {
		return newErrorNode(ctx, errors.New("plan is nil"))
	}
	node, err := plan.Root()
	if err != nil {
		return newErrorNode(ctx, err)
	}
	n, err := c.build(ctx, node)
	if err != nil {
		return newErrorNode(ctx, err)
	}
	return n
}

// Explain describes how plan is executed. With analyze, the plan is executed
// first and the description includes runtime statistics.
func Explain(ctx context.Context, cfg Config, plan *physical.Plan, logger log.Logger, analyze bool) (string, error) {
	if plan == nil {
		return "", errors.New("plan is nil")
	}
	root, err := plan.Root()
	if err != nil {
		return "", err
	}

	c := newContext(cfg, plan, logger)
	n, err := c.build(ctx, root)
	if err != nil {
		return "", err
	}
	defer n.Close()

	if analyze {
		if _, err := drain(ctx, n); err != nil {
			return "", err
		}
	}

	desc, err := c.explain(ctx, root, analyze)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	tree.NewPrinter(&sb).Print(desc)
	return sb.String(), nil
}

// drain reads n until it is exhausted and returns the number of rows read.
func drain(ctx context.Context, n Node) (int64, error) {
	var rows int64
	for {
		rec, err := n.Read(ctx)
		if errors.Is(err, EOF) {
			return rows, nil
		} else if err != nil {
			return rows, err
		}
		rows += rec.NumRows()
		rec.Release()
	}
}

// Context is the execution context
type Context struct {
	batchSize int64
	cacheSize int

	logger  log.Logger
	plan    *physical.Plan
	catalog *catalog.Catalog
	store   *catalog.Store
	alloc   memory.Allocator
	metrics *Metrics

	// bindings holds the parameter values of the query. They are shared by
	// every node of the pipeline.
	bindings  types.Bindings
	evaluator *expressionEvaluator

	// built nodes by plan node ID, used by explain
	nodes        map[string]*tracedNode
	pickyAppends map[string]*pickyAppend
}

func newContext(cfg Config, plan *physical.Plan, logger log.Logger) *Context {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	alloc := cfg.Allocator
	if alloc == nil {
		alloc = memory.NewGoAllocator()
	}
	bindings := make(types.Bindings)

	return &Context{
		batchSize:    cfg.BatchSize,
		cacheSize:    cfg.PlanStateCacheSize,
		logger:       logger,
		plan:         plan,
		catalog:      cfg.Catalog,
		store:        cfg.Store,
		alloc:        alloc,
		metrics:      cfg.Metrics,
		bindings:     bindings,
		evaluator:    newExpressionEvaluator(bindings, alloc),
		nodes:        make(map[string]*tracedNode),
		pickyAppends: make(map[string]*pickyAppend),
	}
}

// build creates the runtime node of node and its inputs.
func (c *Context) build(ctx context.Context, node physical.Node) (Node, error) {
	// The children of a PickyAppend are built on demand.
	if n, ok := node.(*physical.PickyAppend); ok {
		pa, err := c.executePickyAppend(ctx, n)
		if err != nil {
			return nil, err
		}
		return c.trace(node, pa), nil
	}

	children := c.plan.Children(node)
	inputs := make([]Node, 0, len(children))
	for _, child := range children {
		in, err := c.build(ctx, child)
		if err != nil {
			closeAll(inputs)
			return nil, err
		}
		inputs = append(inputs, in)
	}

	var (
		n   Node
		err error
	)
	switch node := node.(type) {
	case *physical.Scan:
		n, err = c.executeScan(ctx, node, inputs)
	case *physical.PartitionScan:
		n, err = c.executePartitionScan(ctx, node, inputs)
	case *physical.Append:
		n, err = c.executeAppend(ctx, node, inputs)
	case *physical.Filter:
		n, err = c.executeFilter(ctx, node, inputs)
	case *physical.Limit:
		n, err = c.executeLimit(ctx, node, inputs)
	case *physical.NestedLoopJoin:
		n, err = c.executeNestedLoopJoin(ctx, node, inputs)
	default:
		err = fmt.Errorf("invalid node type: %T", node)
	}
	if err != nil {
		closeAll(inputs)
		return nil, err
	}
	return c.trace(node, n), nil
}

func (c *Context) trace(node physical.Node, n Node) Node {
	t := traceNode(node.Type().String(), n)
	c.nodes[node.ID()] = t
	return t
}

func closeAll(nodes []Node) {
	for _, n := range nodes {
		n.Close()
	}
}

func (c *Context) executeScan(ctx context.Context, scan *physical.Scan, inputs []Node) (Node, error) {
	ctx, span := tracer.Start(ctx, "Context.executeScan", trace.WithAttributes(
		attribute.String("relation", scan.Relation),
		attribute.Int("num_predicates", len(scan.Predicates)),
	))
	defer span.End()

	if len(inputs) > 0 {
		return nil, fmt.Errorf("scan expects no inputs, got %d", len(inputs))
	}
	if c.store == nil {
		return nil, errors.New("no partition store configured")
	}

	records, err := c.store.ReadTable(ctx, scan.Relation)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", scan.Relation, err)
	}
	return c.newScan(scanOptions{
		Kind:       physical.NodeTypeScan,
		Relation:   scan.Relation,
		Records:    records,
		Predicates: scan.Predicates,
		BatchSize:  c.batchSize,
	})
}

func (c *Context) executePartitionScan(ctx context.Context, scan *physical.PartitionScan, inputs []Node) (Node, error) {
	ctx, span := tracer.Start(ctx, "Context.executePartitionScan", trace.WithAttributes(
		attribute.String("relation", scan.Relation),
		attribute.String("partition", string(scan.Partition)),
		attribute.Int("num_predicates", len(scan.Predicates)),
	))
	defer span.End()

	if len(inputs) > 0 {
		return nil, fmt.Errorf("partition scan expects no inputs, got %d", len(inputs))
	}
	if c.store == nil {
		return nil, errors.New("no partition store configured")
	}

	start := time.Now()
	records, err := c.store.ReadPartition(ctx, scan.Relation, scan.Partition)
	if err != nil {
		return nil, fmt.Errorf("reading partition %s of %s: %w", scan.Partition, scan.Relation, err)
	}
	span.AddEvent("loaded partition")
	level.Debug(c.logger).Log(
		"msg", "loaded partition",
		"relation", scan.Relation,
		"partition", scan.Partition,
		"records", len(records),
		"duration", time.Since(start),
	)

	return c.newScan(scanOptions{
		Kind:       physical.NodeTypePartitionScan,
		Relation:   scan.Relation,
		Partition:  scan.Partition,
		Records:    records,
		Predicates: scan.Predicates,
		BatchSize:  c.batchSize,
	})
}

func (c *Context) newScan(opts scanOptions) (Node, error) {
	for _, pred := range opts.Predicates {
		if err := c.evaluator.check(pred); err != nil {
			for _, rec := range opts.Records {
				rec.Release()
			}
			return nil, fmt.Errorf("predicate %s: %w", pred, err)
		}
	}
	return newScanNode(opts, c.evaluator), nil
}

func (c *Context) executeAppend(ctx context.Context, _ *physical.Append, inputs []Node) (Node, error) {
	_, span := tracer.Start(ctx, "Context.executeAppend", trace.WithAttributes(
		attribute.Int("num_inputs", len(inputs)),
	))
	defer span.End()

	if len(inputs) == 0 {
		return newEmptyNode(), nil
	}
	return newAppendNode(inputs)
}

func (c *Context) executeFilter(ctx context.Context, filter *physical.Filter, inputs []Node) (Node, error) {
	_, span := tracer.Start(ctx, "Context.executeFilter", trace.WithAttributes(
		attribute.Int("num_inputs", len(inputs)),
	))
	defer span.End()

	if len(inputs) != 1 {
		return nil, fmt.Errorf("filter expects exactly one input, got %d", len(inputs))
	}
	for _, pred := range filter.Predicates {
		if err := c.evaluator.check(pred); err != nil {
			return nil, fmt.Errorf("predicate %s: %w", pred, err)
		}
	}
	return newFilterNode(inputs[0], filter.Predicates, c.evaluator), nil
}

func (c *Context) executeLimit(ctx context.Context, limit *physical.Limit, inputs []Node) (Node, error) {
	_, span := tracer.Start(ctx, "Context.executeLimit", trace.WithAttributes(
		attribute.Int("skip", int(limit.Skip)),
		attribute.Int("fetch", int(limit.Fetch)),
		attribute.Int("num_inputs", len(inputs)),
	))
	defer span.End()

	if len(inputs) != 1 {
		return nil, fmt.Errorf("limit expects exactly one input, got %d", len(inputs))
	}
	return newLimitNode(inputs[0], limit.Skip, limit.Fetch), nil
}

func (c *Context) executeNestedLoopJoin(ctx context.Context, join *physical.NestedLoopJoin, inputs []Node) (Node, error) {
	_, span := tracer.Start(ctx, "Context.executeNestedLoopJoin", trace.WithAttributes(
		attribute.Stringer("type", join.Kind),
		attribute.Int("num_params", len(join.Params)),
		attribute.Int("num_inputs", len(inputs)),
	))
	defer span.End()

	if len(inputs) != 2 {
		return nil, fmt.Errorf("nested loop join expects exactly two inputs, got %d", len(inputs))
	}

	schema, err := c.schemaOf(join)
	if err != nil {
		return nil, err
	}
	innerSchema, err := c.schemaOf(c.plan.Children(join)[1])
	if err != nil {
		return nil, err
	}

	return newNestedLoopJoin(inputs[0], inputs[1], nestedLoopJoinOptions{
		Kind:        join.Kind,
		Params:      join.Params,
		Schema:      schema,
		InnerSchema: innerSchema,
	}, c.bindings, c.alloc)
}

func (c *Context) executePickyAppend(ctx context.Context, node *physical.PickyAppend) (*pickyAppend, error) {
	ctx, span := tracer.Start(ctx, "Context.executePickyAppend", trace.WithAttributes(
		attribute.String("relation", node.Relation),
		attribute.Int("num_predicates", len(node.Predicates)),
		attribute.Int("num_residual", len(node.Residual)),
	))
	defer span.End()

	if c.catalog == nil {
		return nil, errors.New("no catalog configured")
	}
	table, err := c.catalog.Table(node.Relation)
	if err != nil {
		return nil, err
	}
	if !table.IsPartitioned() {
		return nil, fmt.Errorf("picky append over unpartitioned relation %s", node.Relation)
	}

	ids, err := node.Partitions(c.plan)
	if err != nil {
		return nil, err
	}
	children := make([]childPlan, len(ids))
	for i, child := range c.plan.Children(node) {
		children[i] = childPlan{ID: ids[i], Plan: child}
	}

	pa, err := newPickyAppend(pickyAppendOptions{
		ID:        node.ID(),
		Relation:  node.Relation,
		Selector:  partition.NewSelector(table.Partitioning, node.Predicates),
		Children:  children,
		Residual:  node.Residual,
		Factory:   c.buildSubstate,
		CacheSize: c.cacheSize,
	}, c.bindings, c.evaluator, c.metrics, c.logger)
	if err != nil {
		return nil, err
	}
	span.AddEvent("registered partitions")

	c.pickyAppends[node.ID()] = pa
	return pa, nil
}

// buildSubstate builds the runtime node of a partition sub-plan of a
// PickyAppend.
func (c *Context) buildSubstate(ctx context.Context, plan physical.Node) (Node, error) {
	return c.build(ctx, plan)
}

// explain describes the runtime nodes built for node and its children.
func (c *Context) explain(ctx context.Context, node physical.Node, analyze bool) (*tree.Node, error) {
	if pa, ok := c.pickyAppends[node.ID()]; ok {
		desc, err := pa.Explain(ctx, analyze)
		if err != nil {
			return nil, err
		}
		if t := c.nodes[node.ID()]; t != nil && analyze {
			desc.Merge(t.stats.properties()...)
		}
		return desc, nil
	}

	desc := physical.DescribeNode(node)
	if t := c.nodes[node.ID()]; t != nil {
		if e, ok := t.Node.(explainer); ok {
			desc = e.explain()
		}
		if analyze {
			desc.Merge(t.stats.properties()...)
		}
	}
	for _, child := range c.plan.Children(node) {
		childDesc, err := c.explain(ctx, child, analyze)
		if err != nil {
			return nil, err
		}
		desc.AddChild(childDesc)
	}
	return desc, nil
}
