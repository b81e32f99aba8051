package engine

import (
	"context"

	"github.com/procflow/procflow/internal/expressions"
	"github.com/procflow/procflow/pkg/schema"
)

// ConditionProcessor handles condition nodes. Conditions are evaluated in
// order against the instance scope; the first truthy expression selects the
// connection at the same index. With no conditions configured the first
// connection wins, and with no connections the workflow ends at this node.
// Evaluation is deterministic: re-running the same instance yields the same
// next step.
type ConditionProcessor struct {
	cel  *expressions.CELEngine
	expr *expressions.ExprEngine
}

// NewConditionProcessor creates the condition-node processor.
func NewConditionProcessor(cel *expressions.CELEngine, exprEngine *expressions.ExprEngine) *ConditionProcessor {
	return &ConditionProcessor{cel: cel, expr: exprEngine}
}

func (p *ConditionProcessor) Type() schema.StepType { return schema.StepTypeCondition }

func (p *ConditionProcessor) Process(ctx context.Context, input *Input) (*Result, error) {
	node := input.Node
	conns := node.Connections()
	if len(conns) == 0 {
		// No outgoing edges: the workflow ends here.
		return &Result{Completed: true}, nil
	}

	data := input.Scope.Map()
	for i, cond := range node.Data.Conditions {
		if i >= len(conns) {
			break
		}
		val, err := p.engineFor(cond.Language).Evaluate(ctx, cond.Expression, data)
		if err != nil {
			// A broken expression is a definition error, not a runtime
			// condition: fail the instance.
			return nil, err
		}
		if expressions.Truthy(val) {
			return &Result{
				Completed:  true,
				NextStepID: conns[i],
				Data:       map[string]any{"matched_condition": i},
			}, nil
		}
	}

	// No condition matched (or none configured): take the default branch.
	// An explicit default_connection overrides the first-connection rule.
	next := stringParam(node.Data.Config, "default_connection", conns[0])
	return &Result{Completed: true, NextStepID: next}, nil
}

func (p *ConditionProcessor) engineFor(language string) expressions.Engine {
	if language == "expr" {
		return p.expr
	}
	return p.cel
}

var _ Processor = (*ConditionProcessor)(nil)
