package engine

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thanos-io/objstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/grafana/pickyappend/pkg/engine/internal/arrowutil"
	"github.com/grafana/pickyappend/pkg/engine/internal/catalog"
	engineerrors "github.com/grafana/pickyappend/pkg/engine/internal/errors"
	"github.com/grafana/pickyappend/pkg/engine/internal/executor"
	"github.com/grafana/pickyappend/pkg/engine/internal/util/dag"
	"github.com/grafana/pickyappend/pkg/engine/planner/physical"
)

var (
	// ErrPlanningFailed is returned when a query cannot be planned.
	// ErrPlanningFailed is not used for unimplemented features, which return
	// [ErrNotSupported] instead.
	ErrPlanningFailed = errors.New("query planning failed")

	// ErrNotSupported is returned for queries using features the engine
	// does not implement, such as FULL nested loop joins.
	ErrNotSupported = errors.New("feature not supported")
)

var tracer = otel.Tracer("pkg/engine")

// ExecutorConfig configures engine execution.
type ExecutorConfig struct {
	// Maximum number of rows per record read from a relation.
	BatchSize int `yaml:"batch_size"`

	// EnablePickyAppend allows the planner to replace the partition scans
	// probed by a nested loop join with a PickyAppend node.
	EnablePickyAppend bool `yaml:"enable_picky_append"`

	// PlanStateCacheSize is the initial capacity of the partition state
	// cache of every PickyAppend node.
	PlanStateCacheSize int `yaml:"plan_state_cache_size"`
}

func (cfg *ExecutorConfig) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.BatchSize, prefix+"batch-size", 100, "Maximum number of rows per record read from a relation.")
	f.BoolVar(&cfg.EnablePickyAppend, prefix+"enable-picky-append", true, "Prune the partitions probed by nested loop joins at every rescan.")
	f.IntVar(&cfg.PlanStateCacheSize, prefix+"plan-state-cache-size", 0, "Initial capacity of the partition state cache of PickyAppend nodes. 0 sizes the cache by the number of partitions.")
}

// Params holds parameters for constructing a new [Engine].
type Params struct {
	Logger     log.Logger            // Logger for optional log messages.
	Registerer prometheus.Registerer // Registerer for optional metrics.

	Config ExecutorConfig  // Config for the Engine.
	Bucket objstore.Bucket // Bucket to store relation data in.
}

// validate validates p and applies defaults.
func (p *Params) validate() error {
	if p.Logger == nil {
		p.Logger = log.NewNopLogger()
	}
	if p.Registerer == nil {
		p.Registerer = prometheus.NewRegistry()
	}
	if p.Bucket == nil {
		return errors.New("bucket is required")
	}
	if p.Config.BatchSize <= 0 {
		return fmt.Errorf("invalid batch size for query engine. must be greater than 0, got %d", p.Config.BatchSize)
	}
	if p.Config.PlanStateCacheSize < 0 {
		return fmt.Errorf("invalid plan state cache size %d", p.Config.PlanStateCacheSize)
	}
	return nil
}

// Engine plans and executes queries over the relations registered with it.
type Engine struct {
	logger      log.Logger
	metrics     *metrics
	execMetrics *executor.Metrics
	cfg         ExecutorConfig

	catalog *catalog.Catalog
	store   *catalog.Store
	alloc   memory.Allocator
}

// New creates a new Engine.
func New(params Params) (*Engine, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	execMetrics := executor.NewMetrics()
	if err := execMetrics.Register(params.Registerer); err != nil {
		return nil, fmt.Errorf("registering executor metrics: %w", err)
	}

	return &Engine{
		logger:      params.Logger,
		metrics:     newMetrics(params.Registerer),
		execMetrics: execMetrics,
		cfg:         params.Config,

		catalog: catalog.New(),
		store:   catalog.NewStore(params.Bucket),
		alloc:   memory.NewGoAllocator(),
	}, nil
}

// Register adds the relations of f to the engine without writing their
// content. It is used when the bucket already holds the data of f.
func (e *Engine) Register(f *Fixture) error {
	_, err := e.register(f)
	return err
}

// Load registers the relations of f and writes their content to the bucket.
func (e *Engine) Load(ctx context.Context, f *Fixture) error {
	tables, err := e.register(f)
	if err != nil {
		return err
	}
	for i, table := range tables {
		n, err := ingest(ctx, e.store, e.alloc, table, f.Tables[i].Rows)
		if err != nil {
			return fmt.Errorf("loading %s: %w", table.Name, err)
		}
		level.Debug(e.logger).Log("msg", "loaded relation", "relation", table.Name, "partitioned", table.IsPartitioned(), "bytes", n)
	}
	return nil
}

func (e *Engine) register(f *Fixture) ([]*catalog.Table, error) {
	tables := make([]*catalog.Table, 0, len(f.Tables))
	for _, tf := range f.Tables {
		table, err := tf.table()
		if err != nil {
			return nil, err
		}
		if err := e.catalog.Register(table); err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, nil
}

// Relations returns the names of the registered relations.
func (e *Engine) Relations() []string { return e.catalog.Names() }

// Build converts q into an optimized physical plan.
func (e *Engine) Build(q Query) (*physical.Plan, error) {
	if err := q.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanningFailed, err)
	}

	timer := prometheus.NewTimer(e.metrics.planning)
	defer timer.ObserveDuration()

	planner := e.planner()

	var (
		plan *physical.Plan
		err  error
	)
	if q.isJoin() {
		var jq physical.JoinQuery
		if jq, err = q.joinQuery(); err == nil {
			plan, err = planner.BuildJoin(jq)
		}
	} else {
		var sq physical.ScanQuery
		if sq, err = q.scanQuery(); err == nil {
			plan, err = planner.BuildScan(sq)
		}
	}
	if errors.Is(err, engineerrors.ErrNotImplemented) {
		return nil, fmt.Errorf("%w: %w", ErrNotSupported, err)
	} else if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanningFailed, err)
	}

	return e.Optimize(plan)
}

// Optimize applies the enabled optimizations to plan.
func (e *Engine) Optimize(plan *physical.Plan) (*physical.Plan, error) {
	plan, err := e.planner().Optimize(plan)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanningFailed, err)
	}
	level.Debug(e.logger).Log("msg", "finished physical planning", "plan", physical.PrintAsTree(plan))
	return plan, nil
}

func (e *Engine) planner() *physical.Planner {
	return physical.NewPlanner(e.catalog, physical.Options{EnablePickyAppend: e.cfg.EnablePickyAppend})
}

func (e *Engine) executorConfig() executor.Config {
	return executor.Config{
		BatchSize:          int64(e.cfg.BatchSize),
		Catalog:            e.catalog,
		Store:              e.store,
		PlanStateCacheSize: e.cfg.PlanStateCacheSize,
		Allocator:          e.alloc,
		Metrics:            e.execMetrics,
	}
}

// Result is the outcome of executing a plan.
type Result struct {
	Columns []string
	// Rows holds the values of every returned row, formatted as strings.
	// NULL values are rendered as "(null)".
	Rows [][]string

	Duration time.Duration
}

// Execute executes plan and collects every row it returns.
func (e *Engine) Execute(ctx context.Context, plan *physical.Plan) (Result, error) {
	if plan == nil {
		return Result{}, errors.New("plan is nil")
	}
	start := time.Now()

	summary, err := summarize(plan)
	if err != nil {
		return Result{}, err
	}

	ctx, span := tracer.Start(ctx, "Engine.Execute", trace.WithAttributes(
		attribute.Int("nodes", plan.Len()),
		attribute.Int("picky_appends", summary.pickyAppends),
		attribute.Int("eager_partition_scans", summary.eagerScans),
	))
	defer span.End()

	logger := log.With(e.logger, "engine", "pickyappend")
	level.Info(logger).Log(
		"msg", "starting query",
		"nodes", plan.Len(),
		"picky_appends", summary.pickyAppends,
		"eager_partition_scans", summary.eagerScans,
	)

	pipeline := executor.Run(ctx, e.executorConfig(), plan, logger)
	defer pipeline.Close()

	var res Result
	for {
		rec, err := pipeline.Read(ctx)
		if errors.Is(err, executor.EOF) {
			break
		} else if err != nil {
			level.Warn(logger).Log("msg", "error during execution", "err", err)

			e.metrics.queries.WithLabelValues(statusFor(err)).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "error during query execution")
			return Result{}, err
		}

		if res.Columns == nil {
			for _, f := range rec.Schema().Fields() {
				res.Columns = append(res.Columns, f.Name)
			}
		}
		res.Rows = append(res.Rows, arrowutil.Rows(rec)...)
		rec.Release()
	}

	// Close the pipeline before reporting so teardown is part of the duration.
	pipeline.Close()
	res.Duration = time.Since(start)

	e.metrics.queries.WithLabelValues(statusSuccess).Inc()
	e.metrics.execution.Observe(res.Duration.Seconds())
	e.metrics.rowsOut.Add(float64(len(res.Rows)))

	span.SetAttributes(attribute.Int("rows", len(res.Rows)))
	span.SetStatus(codes.Ok, "")
	level.Info(logger).Log(
		"msg", "finished executing",
		"rows", len(res.Rows),
		"duration", res.Duration,
	)
	return res, nil
}

// Explain describes how plan is executed. With analyze, plan is executed
// and the description includes runtime statistics.
func (e *Engine) Explain(ctx context.Context, plan *physical.Plan, analyze bool) (string, error) {
	ctx, span := tracer.Start(ctx, "Engine.Explain", trace.WithAttributes(
		attribute.Bool("analyze", analyze),
	))
	defer span.End()

	out, err := executor.Explain(ctx, e.executorConfig(), plan, e.logger, analyze)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to explain plan")
		return "", err
	}
	return out, nil
}

type planSummary struct {
	pickyAppends int
	// eagerScans counts the partition scans built with the pipeline. The
	// partition scans of a PickyAppend are only built once selected.
	eagerScans int
}

func summarize(plan *physical.Plan) (planSummary, error) {
	var s planSummary
	root, err := plan.Root()
	if err != nil {
		return s, err
	}
	err = plan.DFSWalk(root, func(n physical.Node) error {
		switch n.Type() {
		case physical.NodeTypePickyAppend:
			s.pickyAppends++
			return dag.SkipChildren
		case physical.NodeTypePartitionScan:
			s.eagerScans++
		}
		return nil
	}, dag.PreOrderWalk)
	return s, err
}

func statusFor(err error) string {
	if errors.Is(err, engineerrors.ErrNotImplemented) {
		return statusNotImplemented
	}
	return statusFailure
}
