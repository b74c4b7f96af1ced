package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/pickyappend/pkg/engine/internal/types"
)

// appendNode takes N inputs and sequentially consumes each one of them.
// It completely exhausts an input before moving to the next one.
type appendNode struct {
	paramTracker

	inputs []Node
	cursor int
}

var _ Node = (*appendNode)(nil)

func newAppendNode(inputs []Node) (*appendNode, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided for append")
	}
	return &appendNode{
		paramTracker: paramTracker{dependsOn: dependsOnInputs(types.ParamSet{}, inputs...)},
		inputs:       inputs,
	}, nil
}

func (a *appendNode) Read(ctx context.Context) (arrow.Record, error) {
	for a.cursor < len(a.inputs) {
		rec, err := readNode(ctx, a.inputs[a.cursor])
		if errors.Is(err, EOF) {
			a.cursor++
			continue
		} else if err != nil {
			return nil, fmt.Errorf("run append: %w", err)
		}
		return rec, nil
	}
	return nil, EOF
}

// Rescan restarts the append from its first input. Inputs affected by changed
// parameters are rescanned lazily once they are reached.
func (a *appendNode) Rescan(ctx context.Context) error {
	defer a.clearChanged()

	a.cursor = 0
	for _, input := range a.inputs {
		if err := rescanChild(ctx, input, a.changed); err != nil {
			return err
		}
	}
	return nil
}

func (a *appendNode) Close() {
	for _, input := range a.inputs {
		input.Close()
	}
}
