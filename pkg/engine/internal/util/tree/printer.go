package tree

import (
	"fmt"
	"io"
	"strings"
)

const (
	symPrefix   = "    "
	symIndent   = "│   "
	symConn     = "├── "
	symLastConn = "└── "
)

// Printer writes a [Node] and its descendants as an indented tree, for example:
//
//	NestedLoopJoin type=INNER
//	├── Scan relation=probes
//	└── PickyAppend relation=orders partitions=3
//	    ├── PartitionScan partition=A
//	    └── PartitionScan partition=B
type Printer struct {
	w io.Writer
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Print writes root and all of its children.
func (p *Printer) Print(root *Node) {
	p.printNode(root, "", "")
}

func (p *Printer) printNode(n *Node, firstPrefix, prefix string) {
	fmt.Fprintf(p.w, "%s%s\n", firstPrefix, formatNode(n))

	// Comments go before children, one level deeper.
	commentPrefix := prefix
	if len(n.Children) > 0 {
		commentPrefix += symIndent
	} else {
		commentPrefix += symPrefix
	}
	for i, c := range n.Comments {
		if i == len(n.Comments)-1 {
			p.printNode(c, commentPrefix+symLastConn, commentPrefix+symPrefix)
		} else {
			p.printNode(c, commentPrefix+symConn, commentPrefix+symIndent)
		}
	}

	for i, c := range n.Children {
		if i == len(n.Children)-1 {
			p.printNode(c, prefix+symLastConn, prefix+symPrefix)
		} else {
			p.printNode(c, prefix+symConn, prefix+symIndent)
		}
	}
}

func formatNode(n *Node) string {
	var sb strings.Builder
	sb.WriteString(n.Name)
	for _, prop := range n.Properties {
		sb.WriteByte(' ')
		sb.WriteString(formatProperty(prop))
	}
	return sb.String()
}

func formatProperty(p Property) string {
	if !p.IsMultiValue {
		if len(p.Values) == 0 {
			return p.Key + "="
		}
		return fmt.Sprintf("%s=%v", p.Key, p.Values[0])
	}
	values := make([]string, len(p.Values))
	for i, v := range p.Values {
		values[i] = fmt.Sprint(v)
	}
	return fmt.Sprintf("%s=(%s)", p.Key, strings.Join(values, ", "))
}
