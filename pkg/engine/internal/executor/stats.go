package executor

import "github.com/grafana/pickyappend/pkg/engine/internal/util/tree"

// nodeStats are runtime statistics tracked for every node of a running
// plan.
type nodeStats struct {
	readCalls int64
	rowsOut   int64
	rescans   int64
}

func (s nodeStats) properties() []tree.Property {
	return []tree.Property{
		tree.NewProperty("read_calls", false, s.readCalls),
		tree.NewProperty("rows_out", false, s.rowsOut),
		tree.NewProperty("rescans", false, s.rescans),
	}
}
