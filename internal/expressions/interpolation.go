package expressions

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/procflow/procflow/pkg/schema"
)

// Scope holds all data available for ${{...}} variable resolution.
type Scope struct {
	Data      map[string]any // instance data payload
	Variables map[string]any // instance variables
	Context   map[string]any // instance context
	Instance  map[string]any // instance metadata (id, workflow_id, priority)
	Step      map[string]any // output of the most recent completed step
}

// Map returns the scope as the activation map shared with the expression engines.
func (s *Scope) Map() map[string]any {
	return map[string]any{
		"data":      orEmpty(s.Data),
		"variables": orEmpty(s.Variables),
		"context":   orEmpty(s.Context),
		"instance":  orEmpty(s.Instance),
		"step":      orEmpty(s.Step),
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// Interpolator resolves ${{...}} references in node config values.
// Webhook URLs, header values, and payload strings are interpolated
// before use.
type Interpolator struct{}

// NewInterpolator creates a new Interpolator.
func NewInterpolator() *Interpolator {
	return &Interpolator{}
}

// ResolveString scans a string for ${{...}} tokens and resolves each against
// the scope. Resolved values are embedded inline: strings as-is, everything
// else JSON-encoded.
func (interp *Interpolator) ResolveString(input string, scope *Scope) (string, error) {
	var result strings.Builder
	result.Grow(len(input))

	i := 0
	for i < len(input) {
		idx := strings.Index(input[i:], "${{")
		if idx == -1 {
			result.WriteString(input[i:])
			break
		}

		result.WriteString(input[i : i+idx])
		start := i + idx + 3 // skip "${{".

		end := strings.Index(input[start:], "}}")
		if end == -1 {
			return "", schema.NewError(schema.ErrCodeInterpolation, "unclosed ${{ expression")
		}
		end += start

		ref := strings.TrimSpace(input[start:end])
		if ref == "" {
			return "", schema.NewError(schema.ErrCodeInterpolation, "empty variable reference: ${{  }}")
		}
		if strings.Contains(ref, "${{") {
			return "", schema.NewError(schema.ErrCodeInterpolation,
				"nested interpolation not allowed: ${{...}} cannot contain ${{")
		}

		val, err := interp.resolveRef(ref, scope)
		if err != nil {
			return "", err
		}
		result.WriteString(marshalInline(val))

		i = end + 2 // skip "}}".
	}

	return result.String(), nil
}

// ResolveValue interpolates every string found in a config value, walking
// nested maps and slices. Non-string leaves pass through unchanged.
func (interp *Interpolator) ResolveValue(v any, scope *Scope) (any, error) {
	switch val := v.(type) {
	case string:
		return interp.ResolveString(val, scope)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := interp.ResolveValue(item, scope)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := interp.ResolveValue(item, scope)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// resolveRef resolves a single reference path like "data.order.total".
func (interp *Interpolator) resolveRef(ref string, scope *Scope) (any, error) {
	parts := strings.SplitN(ref, ".", 2)
	namespace := parts[0]

	var root map[string]any
	switch namespace {
	case "data":
		root = scope.Data
	case "variables":
		root = scope.Variables
	case "context":
		root = scope.Context
	case "instance":
		root = scope.Instance
	case "step":
		root = scope.Step
	default:
		available := []string{"data", "variables", "context", "instance", "step"}
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"unknown namespace %q in ${{%s}}; available: %s", namespace, ref, strings.Join(available, ", ")).
			WithDetails(map[string]any{"expression": ref, "available_namespaces": available})
	}

	if len(parts) < 2 || parts[1] == "" {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"invalid reference %q: expected %s.<field>", ref, namespace).
			WithDetails(map[string]any{"expression": ref})
	}

	if root == nil {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"cannot resolve %q: %s scope is empty", ref, namespace).
			WithDetails(map[string]any{"expression": ref})
	}

	// Direct key lookup first (supports keys with dots), then traversal.
	if val, ok := root[parts[1]]; ok {
		return val, nil
	}
	return traversePath(root, parts[1], ref)
}

// traversePath navigates into nested maps using a dot-delimited path.
func traversePath(root any, path, ref string) (any, error) {
	current := root
	for i, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"empty segment in path %q at position %d", ref, i).
				WithDetails(map[string]any{"expression": ref})
		}
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"cannot traverse into non-object at %q in %q (type: %T)", seg, ref, current).
				WithDetails(map[string]any{"expression": ref})
		}
		val, ok := obj[seg]
		if !ok {
			available := mapKeys(obj)
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"field %q not found in %q; available: [%s]", seg, ref, strings.Join(available, ", ")).
				WithDetails(map[string]any{"expression": ref, "available_fields": available})
		}
		current = val
	}
	return current, nil
}

// marshalInline converts a resolved value into its inline representation.
// Strings embed as-is; complex types JSON-encode.
func marshalInline(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func mapKeys(m map[string]any) []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
