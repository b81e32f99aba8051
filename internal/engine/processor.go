package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/procflow/procflow/internal/expressions"
	"github.com/procflow/procflow/internal/store"
	"github.com/procflow/procflow/pkg/schema"
)

// Input is the snapshot a processor receives: the instance, the node being
// executed, and the interpolation scope built from the instance payload.
// Processors never mutate the instance; all mutation is the service's job.
type Input struct {
	Instance *store.Instance
	Node     *schema.WorkflowNode
	Scope    *expressions.Scope
}

// Result is the ephemeral outcome of one processor invocation. It is never
// persisted. Completed=false parks the instance at the current step until
// something external re-triggers advancement. Err carries recoverable
// failures (network errors, missing config); logic errors are returned as
// Go errors instead and fail the instance.
type Result struct {
	Completed  bool           `json:"completed"`
	NextStepID string         `json:"next_step_id,omitempty"`
	Err        string         `json:"error,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Processor implements the behavior of one step type.
type Processor interface {
	Type() schema.StepType
	Process(ctx context.Context, input *Input) (*Result, error)
}

// Resolver maps a step-type tag to its processor.
type Resolver struct {
	processors map[schema.StepType]Processor
}

// NewResolver builds a Resolver from the given processors.
// Registering two processors for the same type is a programming error.
func NewResolver(processors ...Processor) (*Resolver, error) {
	m := make(map[schema.StepType]Processor, len(processors))
	for _, p := range processors {
		if _, exists := m[p.Type()]; exists {
			return nil, fmt.Errorf("duplicate processor for step type %q", p.Type())
		}
		m[p.Type()] = p
	}
	return &Resolver{processors: m}, nil
}

// Resolve returns the processor for the given step type. An unknown type is
// a malformed-definition error: the caller marks the instance failed.
func (r *Resolver) Resolve(stepType schema.StepType) (Processor, error) {
	p, ok := r.processors[stepType]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnsupportedStepType,
			"no processor registered for step type %q", stepType).
			WithDetails(map[string]any{"step_type": string(stepType)})
	}
	return p, nil
}

// --- Node config param helpers ---

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func mapParam(m map[string]any, key string) map[string]any {
	v, ok := m[key]
	if !ok {
		return nil
	}
	out, _ := v.(map[string]any)
	return out
}

func stringSliceParam(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func intParam(m map[string]any, key string, defaultVal int) int {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return defaultVal
		}
		return int(i)
	default:
		return defaultVal
	}
}
