// Package dag provides a generic directed acyclic graph.
package dag

import (
	"errors"
	"fmt"
	"slices"
)

// Node is a vertex of a [Graph].
type Node interface {
	comparable
	ID() string
}

type nodeSet[NodeType Node] map[NodeType]struct{}

func (s nodeSet[NodeType]) Add(n NodeType) { s[n] = struct{}{} }

func (s nodeSet[NodeType]) Contains(n NodeType) bool {
	_, ok := s[n]
	return ok
}

// Graph is a directed acyclic graph. Nodes are kept in insertion order, and
// so are the children of each node.
type Graph[NodeType Node] struct {
	nodes    []NodeType
	members  nodeSet[NodeType]
	parents  map[NodeType][]NodeType
	children map[NodeType][]NodeType
}

func (g *Graph[NodeType]) init() {
	if g.members == nil {
		g.members = make(nodeSet[NodeType])
		g.parents = make(map[NodeType][]NodeType)
		g.children = make(map[NodeType][]NodeType)
	}
}

// Add adds n to the graph. Adding an existing node is a no-op.
func (g *Graph[NodeType]) Add(n NodeType) NodeType {
	g.init()
	if !g.members.Contains(n) {
		g.members.Add(n)
		g.nodes = append(g.nodes, n)
	}
	return n
}

// Edge is a directed connection from a parent to a child.
type Edge[NodeType Node] struct {
	Parent, Child NodeType
}

// AddEdge connects e.Parent to e.Child. Both nodes must already be part of
// the graph.
func (g *Graph[NodeType]) AddEdge(e Edge[NodeType]) error {
	g.init()

	var zero NodeType
	if e.Parent == zero || e.Child == zero {
		return errors.New("parent and child nodes must not be zero values")
	}
	if e.Parent == e.Child {
		return fmt.Errorf("parent and child node must not be equal: %s", e.Parent.ID())
	}
	if !g.members.Contains(e.Parent) {
		return fmt.Errorf("parent node %s does not exist in graph", e.Parent.ID())
	}
	if !g.members.Contains(e.Child) {
		return fmt.Errorf("child node %s does not exist in graph", e.Child.ID())
	}
	if slices.Contains(g.children[e.Parent], e.Child) {
		return fmt.Errorf("edge from %s to %s already exists", e.Parent.ID(), e.Child.ID())
	}

	g.children[e.Parent] = append(g.children[e.Parent], e.Child)
	g.parents[e.Child] = append(g.parents[e.Child], e.Parent)
	return nil
}

// Nodes returns all nodes in insertion order.
func (g *Graph[NodeType]) Nodes() []NodeType { return slices.Clone(g.nodes) }

// Len returns the number of nodes in the graph.
func (g *Graph[NodeType]) Len() int { return len(g.nodes) }

// Children returns the children of n in insertion order.
func (g *Graph[NodeType]) Children(n NodeType) []NodeType { return slices.Clone(g.children[n]) }

// Parents returns the parents of n.
func (g *Graph[NodeType]) Parents(n NodeType) []NodeType { return slices.Clone(g.parents[n]) }

// Roots returns all nodes without parents, in insertion order.
func (g *Graph[NodeType]) Roots() []NodeType {
	var roots []NodeType
	for _, n := range g.nodes {
		if len(g.parents[n]) == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}

// Root returns the single root of the graph.
func (g *Graph[NodeType]) Root() (NodeType, error) {
	var zero NodeType
	roots := g.Roots()
	switch len(roots) {
	case 0:
		return zero, errors.New("graph has no root node")
	case 1:
		return roots[0], nil
	default:
		return zero, fmt.Errorf("graph has %d root nodes, expected exactly one", len(roots))
	}
}

// Replace swaps old for replacement. The replacement takes over every edge
// of old, at the same position.
func (g *Graph[NodeType]) Replace(old, replacement NodeType) {
	if !g.members.Contains(old) {
		return
	}
	for i, n := range g.nodes {
		if n == old {
			g.nodes[i] = replacement
		}
	}
	for _, parent := range g.parents[old] {
		swap(g.children[parent], old, replacement)
	}
	for _, child := range g.children[old] {
		swap(g.parents[child], old, replacement)
	}
	g.children[replacement] = g.children[old]
	g.parents[replacement] = g.parents[old]
	delete(g.children, old)
	delete(g.parents, old)
	delete(g.members, old)
	g.members.Add(replacement)
}

// Eliminate removes n from the graph and connects its parents directly to
// its children.
func (g *Graph[NodeType]) Eliminate(n NodeType) {
	if !g.members.Contains(n) {
		return
	}
	parents, children := g.parents[n], g.children[n]

	for _, parent := range parents {
		g.children[parent] = splice(g.children[parent], n, children)
	}
	for _, child := range children {
		g.parents[child] = splice(g.parents[child], n, parents)
	}

	g.nodes = slices.DeleteFunc(g.nodes, func(o NodeType) bool { return o == n })
	delete(g.children, n)
	delete(g.parents, n)
	delete(g.members, n)
}

func swap[NodeType Node](s []NodeType, old, replacement NodeType) {
	for i, n := range s {
		if n == old {
			s[i] = replacement
		}
	}
}

// splice replaces every occurrence of n in s with with.
func splice[NodeType Node](s []NodeType, n NodeType, with []NodeType) []NodeType {
	out := make([]NodeType, 0, len(s)+len(with))
	for _, o := range s {
		if o == n {
			out = append(out, with...)
			continue
		}
		out = append(out, o)
	}
	return out
}
