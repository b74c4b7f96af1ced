package tree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrinter(t *testing.T) {
	root := NewNode("NestedLoopJoin", "", NewProperty("type", false, "INNER"))
	root.AddChild(NewNode("Scan", "", NewProperty("relation", false, "probes")))
	picky := root.AddChild(NewNode("PickyAppend", "",
		NewProperty("relation", false, "orders"),
		NewProperty("partitions", true, "A", "B"),
	))
	picky.AddComment(NewNode("Predicate", "", NewProperty("expr", false, "EQ(key, $0)")))
	picky.AddChild(NewNode("PartitionScan", "", NewProperty("partition", false, "A")))
	picky.AddChild(NewNode("PartitionScan", "", NewProperty("partition", false, "B")))

	var sb strings.Builder
	NewPrinter(&sb).Print(root)

	expect := `NestedLoopJoin type=INNER
├── Scan relation=probes
└── PickyAppend relation=orders partitions=(A, B)
    │   └── Predicate expr=EQ(key, $0)
    ├── PartitionScan partition=A
    └── PartitionScan partition=B
`
	require.Equal(t, expect, sb.String())
}

func TestPrinter_EmptyProperty(t *testing.T) {
	var sb strings.Builder
	NewPrinter(&sb).Print(NewNode("Append", "", NewProperty("children", true)))
	require.Equal(t, "Append children=()\n", sb.String())
}
