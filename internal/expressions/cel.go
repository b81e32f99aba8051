package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/procflow/procflow/pkg/schema"
)

// scopeKeys are the top-level variables every engine exposes. They mirror
// the instance payload plus a small metadata map.
var scopeKeys = []string{"data", "variables", "context", "instance", "step"}

// CELEngine evaluates condition-node routing expressions written in
// Google's Common Expression Language. Safe for concurrent use.
type CELEngine struct {
	env   *cel.Env
	progs *progCache[cel.Program]
}

// NewCELEngine creates a CEL engine whose environment exposes the five
// scope maps (data, variables, context, instance, step), each typed
// map(string, dyn).
func NewCELEngine() (*CELEngine, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)
	opts := make([]cel.EnvOption, 0, len(scopeKeys))
	for _, key := range scopeKeys {
		opts = append(opts, cel.Variable(key, mapType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELEngine{env: env, progs: newProgCache[cel.Program]()}, nil
}

func (e *CELEngine) Name() string { return "cel" }

// Evaluate runs the expression against the scope maps in data. Keys absent
// from data are bound to empty maps so lookups degrade gracefully instead
// of raising nil-reference errors.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}

	prg, err := e.progs.get(expression, e.compile)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.Eval(buildActivation(data))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"CEL evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return out.Value(), nil
}

func (e *CELEngine) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return prg, nil
}

// buildActivation fills in empty maps for any scope key missing from data.
func buildActivation(data map[string]any) map[string]any {
	activation := make(map[string]any, len(scopeKeys))
	for _, key := range scopeKeys {
		if v, ok := data[key]; ok && v != nil {
			activation[key] = v
		} else {
			activation[key] = map[string]any{}
		}
	}
	return activation
}

var _ Engine = (*CELEngine)(nil)
