package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/grafana/pickyappend/pkg/engine/internal/types"
)

// Pipeline represents a data processing pipeline that can read Arrow records.
// It provides methods to read data and close resources.
type Pipeline interface {
	// Read collects the next value ([arrow.Record]) from the pipeline and returns it to the caller.
	// It returns an error if reading fails or when the pipeline is exhausted. In this case, the function returns EOF.
	// The caller owns the returned record and must release it.
	Read(context.Context) (arrow.Record, error)
	// Close closes the resources of the pipeline.
	// The implementation must close all the of the pipeline's inputs.
	Close()
}

// Node is a [Pipeline] that can be restarted.
//
// Nodes depend on a set of parameters. When an enclosing node changes the
// value of a parameter, it marks the parameter as changed on the nodes below
// it with UpdateChangedParams. A node with pending changed parameters must be
// rescanned before it is read again; [readNode] does this for the caller.
type Node interface {
	Pipeline

	// Rescan restarts the node from its first row. Pending changed
	// parameters are propagated to the node's inputs and then cleared.
	Rescan(ctx context.Context) error
	// DependsOn returns the parameters the output of the node depends on,
	// including the parameters of its inputs.
	DependsOn() types.ParamSet
	// ChangedParams returns the parameters that changed since the last
	// rescan and that the node depends on.
	ChangedParams() types.ParamSet
	// UpdateChangedParams marks parameters as changed. Parameters the node
	// does not depend on are ignored.
	UpdateChangedParams(changed types.ParamSet)
}

var (
	EOF = errors.New("pipeline exhausted") //nolint:revive,staticcheck

	errClosed = errors.New("pipeline is closed")
)

// readNode reads the next record of n, rescanning n first if any of its
// parameters changed.
func readNode(ctx context.Context, n Node) (arrow.Record, error) {
	if !n.ChangedParams().IsEmpty() {
		if err := n.Rescan(ctx); err != nil {
			return nil, err
		}
	}
	return n.Read(ctx)
}

// rescanChild passes changed parameters down to child. A child that is not
// affected by any of them is rescanned right away; all other children are
// rescanned by [readNode] on their next read.
func rescanChild(ctx context.Context, child Node, changed types.ParamSet) error {
	child.UpdateChangedParams(changed)
	if child.ChangedParams().IsEmpty() {
		return child.Rescan(ctx)
	}
	return nil
}

// paramTracker implements the parameter bookkeeping of [Node].
type paramTracker struct {
	dependsOn types.ParamSet
	changed   types.ParamSet
}

func (t *paramTracker) DependsOn() types.ParamSet { return t.dependsOn }

func (t *paramTracker) ChangedParams() types.ParamSet { return t.changed }

func (t *paramTracker) UpdateChangedParams(changed types.ParamSet) {
	t.changed = t.changed.Union(changed.Intersect(t.dependsOn))
}

func (t *paramTracker) clearChanged() { t.changed = types.ParamSet{} }

// dependsOnInputs returns the union of own and the parameters of inputs.
func dependsOnInputs(own types.ParamSet, inputs ...Node) types.ParamSet {
	for _, in := range inputs {
		own = own.Union(in.DependsOn())
	}
	return own
}

type errorNode struct {
	paramTracker
	err error
}

func newErrorNode(ctx context.Context, err error) Node {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return &errorNode{err: err}
}

func (n *errorNode) Read(context.Context) (arrow.Record, error) {
	return nil, fmt.Errorf("failed to execute pipeline: %w", n.err)
}

func (n *errorNode) Rescan(context.Context) error { return nil }

func (n *errorNode) Close() {}

type emptyNode struct {
	paramTracker
}

func newEmptyNode() Node { return &emptyNode{} }

func (n *emptyNode) Read(context.Context) (arrow.Record, error) { return nil, EOF }

func (n *emptyNode) Rescan(context.Context) error { return nil }

func (n *emptyNode) Close() {}

type tracedNode struct {
	Node

	name  string
	stats nodeStats
}

var _ Node = (*tracedNode)(nil)

// traceNode wraps a [Node] to record each call to Read and Rescan with a
// span, and to collect runtime statistics.
func traceNode(name string, n Node) *tracedNode {
	return &tracedNode{name: name, Node: n}
}

func (n *tracedNode) Read(ctx context.Context) (arrow.Record, error) {
	ctx, span := tracer.Start(ctx, n.name+".Read")
	defer span.End()

	n.stats.readCalls++
	res, err := n.Node.Read(ctx)
	if err != nil && !errors.Is(err, EOF) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if res != nil {
		n.stats.rowsOut += res.NumRows()
	}
	return res, err
}

func (n *tracedNode) Rescan(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, n.name+".Rescan")
	defer span.End()

	n.stats.rescans++
	err := n.Node.Rescan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// unwrapNode returns the node wrapped by n, if any.
func unwrapNode(n Node) Node {
	if t, ok := n.(*tracedNode); ok {
		return t.Node
	}
	return n
}
