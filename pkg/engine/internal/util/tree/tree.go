// Package tree describes operator trees for plan and explain output.
package tree

import "fmt"

// Property is a key with its values. A single-value property prints as
// `key=value`, a multi-value property as `key=(v1, v2)`.
type Property struct {
	Key    string
	Values []any

	// IsMultiValue prints Values as a list, even when it holds fewer than two
	// values.
	IsMultiValue bool
}

// NewProperty returns a property. Set multi for list-valued properties.
func NewProperty(key string, multi bool, values ...any) Property {
	return Property{Key: key, Values: values, IsMultiValue: multi}
}

// Indexed returns one single-value property per element of values, keyed
// `key[i]`. It is used for the expression lists of plan nodes.
func Indexed[T fmt.Stringer](key string, values []T) []Property {
	props := make([]Property, len(values))
	for i, v := range values {
		props[i] = NewProperty(fmt.Sprintf("%s[%d]", key, i), false, v.String())
	}
	return props
}

// Node is an operator of a plan or of a running pipeline.
type Node struct {
	ID   string // Optional ID of the planned node.
	Name string

	Properties []Property
	Children   []*Node

	// Comments are printed under the node before its children, one level
	// deeper.
	Comments []*Node
}

// NewNode returns a node without children.
func NewNode(name, id string, properties ...Property) *Node {
	return &Node{ID: id, Name: name, Properties: properties}
}

// Add appends props to the properties of n.
func (n *Node) Add(props ...Property) *Node {
	n.Properties = append(n.Properties, props...)
	return n
}

// Merge appends the properties of props whose key n does not have yet.
// Runtime statistics are merged into descriptions this way, so that values
// reported by a node itself win over generic ones.
func (n *Node) Merge(props ...Property) *Node {
	for _, prop := range props {
		if _, ok := n.Property(prop.Key); !ok {
			n.Properties = append(n.Properties, prop)
		}
	}
	return n
}

// Property returns the property of n called key.
func (n *Node) Property(key string) (Property, bool) {
	for _, prop := range n.Properties {
		if prop.Key == key {
			return prop, true
		}
	}
	return Property{}, false
}

// Values returns the values of the property called key, or nil if n has no
// such property.
func (n *Node) Values(key string) []any {
	prop, _ := n.Property(key)
	return prop.Values
}

// AddChild appends child to the children of n and returns child.
func (n *Node) AddChild(child *Node) *Node {
	n.Children = append(n.Children, child)
	return child
}

// AddComment appends comment to the comments of n and returns comment.
func (n *Node) AddComment(comment *Node) *Node {
	n.Comments = append(n.Comments, comment)
	return comment
}
