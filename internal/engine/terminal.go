package engine

import (
	"context"

	"github.com/procflow/procflow/pkg/schema"
)

// StartProcessor handles start nodes. It completes immediately without a
// next step: the service reads the start node's outgoing connection from
// the definition graph to find the first real step.
type StartProcessor struct{}

// NewStartProcessor creates the start-node processor.
func NewStartProcessor() *StartProcessor { return &StartProcessor{} }

func (p *StartProcessor) Type() schema.StepType { return schema.StepTypeStart }

func (p *StartProcessor) Process(_ context.Context, _ *Input) (*Result, error) {
	return &Result{Completed: true}, nil
}

// EndProcessor handles end nodes: terminal completion.
type EndProcessor struct{}

// NewEndProcessor creates the end-node processor.
func NewEndProcessor() *EndProcessor { return &EndProcessor{} }

func (p *EndProcessor) Type() schema.StepType { return schema.StepTypeEnd }

func (p *EndProcessor) Process(_ context.Context, _ *Input) (*Result, error) {
	return &Result{Completed: true}, nil
}

var (
	_ Processor = (*StartProcessor)(nil)
	_ Processor = (*EndProcessor)(nil)
)
