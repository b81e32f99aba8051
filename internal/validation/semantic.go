package validation

import (
	"fmt"

	"github.com/procflow/procflow/pkg/schema"
)

// validateSemantic performs semantic analysis on the workflow definition.
// Checks: exactly one start node, connection targets exist, condition nodes
// have enough connections for their conditions, end nodes have no outgoing
// edges, every non-start node is reachable from start.
func validateSemantic(def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodeIDs := make(map[string]bool, len(def.Nodes))
	startCount := 0
	for _, n := range def.Nodes {
		nodeIDs[n.ID] = true
		if n.Type == schema.StepTypeStart {
			startCount++
		}
	}

	switch startCount {
	case 0:
		result.AddError("nodes", schema.ErrCodeMissingStartNode,
			"workflow definition has no start node")
	case 1:
		// ok
	default:
		result.AddError("nodes", schema.ErrCodeValidation,
			fmt.Sprintf("workflow definition has %d start nodes, expected exactly 1", startCount))
	}

	for i := range def.Nodes {
		node := &def.Nodes[i]
		path := fmt.Sprintf("nodes[%d]", i)
		conns := node.Connections()

		for j, target := range conns {
			if !nodeIDs[target] {
				result.AddError(fmt.Sprintf("%s.config.connections[%d]", path, j),
					schema.ErrCodeValidation,
					fmt.Sprintf("references non-existent node %q", target))
			}
		}

		switch node.Type {
		case schema.StepTypeEnd:
			if len(conns) > 0 {
				result.AddWarning(path+".config.connections", schema.ErrCodeValidation,
					"end node connections are never followed")
			}
		case schema.StepTypeCondition:
			if len(node.Data.Conditions) > len(conns) {
				result.AddError(path+".data.conditions", schema.ErrCodeValidation,
					fmt.Sprintf("%d conditions but only %d connections; each condition selects the connection at its index",
						len(node.Data.Conditions), len(conns)))
			}
		case schema.StepTypeWebhook:
			if _, ok := node.Data.Config["url"]; !ok {
				result.AddError(path+".config.url", schema.ErrCodeValidation,
					"webhook node requires a url")
			}
		}
	}

	if startCount == 1 && result.Valid() {
		checkReachability(def, result)
		checkForcedCycles(def, result)
	}

	return result
}

// checkReachability walks the graph from the start node and warns about
// nodes that can never execute. Unreachable nodes are a warning, not an
// error: definitions are often authored incrementally.
func checkReachability(def *schema.WorkflowDefinition, result *schema.ValidationResult) {
	start := def.StartNode()
	if start == nil {
		return
	}

	visited := make(map[string]bool, len(def.Nodes))
	stack := []string{start.ID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		if node := def.Node(id); node != nil {
			stack = append(stack, node.Connections()...)
		}
	}

	for i := range def.Nodes {
		if !visited[def.Nodes[i].ID] {
			result.AddWarning(fmt.Sprintf("nodes[%d]", i), schema.ErrCodeValidation,
				fmt.Sprintf("node %q is unreachable from the start node", def.Nodes[i].ID))
		}
	}
}

// checkForcedCycles warns about first-connection cycles that contain no
// condition node. Non-condition steps always advance along their first
// connection, so such a cycle has no exit and every run through it stalls
// against the step bound.
func checkForcedCycles(def *schema.WorkflowDefinition, result *schema.ValidationResult) {
	next := make(map[string]string, len(def.Nodes))
	for i := range def.Nodes {
		node := &def.Nodes[i]
		if node.Type == schema.StepTypeEnd || node.Type == schema.StepTypeCondition {
			continue
		}
		if conns := node.Connections(); len(conns) > 0 {
			next[node.ID] = conns[0]
		}
	}

	const (
		onPath = 1
		done   = 2
	)
	state := make(map[string]int, len(def.Nodes))
	for i := range def.Nodes {
		id := def.Nodes[i].ID
		var path []string
		for id != "" && state[id] == 0 {
			state[id] = onPath
			path = append(path, id)
			id = next[id]
		}
		if state[id] == onPath {
			result.AddWarning("nodes", schema.ErrCodeValidation,
				fmt.Sprintf("node %q is part of a cycle with no condition node and can never complete", id))
		}
		for _, p := range path {
			state[p] = done
		}
	}
}
