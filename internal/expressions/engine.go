package expressions

import "context"

// Engine evaluates expressions against a workflow instance's payload.
// Three implementations: CEL (conditions, default), Expr (alternate
// condition language), GoJQ (response transforms).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Truthy converts an evaluation result into a routing decision.
// nil, false, zero numbers, and empty strings are false; everything
// else is true.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case uint64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}
