package dag

import (
	"errors"
	"fmt"
)

// WalkOrder is the order in which a node is visited relative to its
// children.
type WalkOrder uint8

const (
	// PreOrderWalk visits a node before its children.
	PreOrderWalk WalkOrder = iota
	// PostOrderWalk visits a node after all of its children.
	PostOrderWalk
)

// SkipChildren can be returned by a [WalkFunc] of a [PreOrderWalk] to not
// descend into the children of the current node. The walk continues with
// the next sibling.
var SkipChildren = errors.New("skip children")

// WalkFunc is invoked for every node of a walk. A non-nil error other than
// [SkipChildren] stops the walk and is returned by [Graph.Walk].
type WalkFunc[NodeType Node] func(n NodeType) error

// Walk visits n and every node reachable from n depth-first, children in
// insertion order. Nodes shared by several parents are visited once.
func (g *Graph[NodeType]) Walk(n NodeType, f WalkFunc[NodeType], order WalkOrder) error {
	if order != PreOrderWalk && order != PostOrderWalk {
		return fmt.Errorf("unsupported walk order %d", order)
	}
	w := walker[NodeType]{graph: g, fn: f, order: order, visited: make(nodeSet[NodeType])}
	return w.walk(n)
}

type walker[NodeType Node] struct {
	graph   *Graph[NodeType]
	fn      WalkFunc[NodeType]
	order   WalkOrder
	visited nodeSet[NodeType]
}

func (w *walker[NodeType]) walk(n NodeType) error {
	if w.visited.Contains(n) {
		return nil
	}
	w.visited.Add(n)

	if w.order == PreOrderWalk {
		err := w.fn(n)
		if errors.Is(err, SkipChildren) {
			return nil
		} else if err != nil {
			return err
		}
	}

	for _, child := range w.graph.children[n] {
		if err := w.walk(child); err != nil {
			return err
		}
	}

	if w.order == PostOrderWalk {
		return w.fn(n)
	}
	return nil
}
