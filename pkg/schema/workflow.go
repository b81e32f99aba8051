package schema

// StepType enumerates the kinds of nodes in a workflow definition.
type StepType string

const (
	StepTypeStart        StepType = "start"
	StepTypeTask         StepType = "task"
	StepTypeApproval     StepType = "approval"
	StepTypeCondition    StepType = "condition"
	StepTypeNotification StepType = "notification"
	StepTypeWebhook      StepType = "webhook"
	StepTypeEnd          StepType = "end"
)

// KnownStepTypes lists every step type the engine can dispatch.
var KnownStepTypes = []StepType{
	StepTypeStart,
	StepTypeTask,
	StepTypeApproval,
	StepTypeCondition,
	StepTypeNotification,
	StepTypeWebhook,
	StepTypeEnd,
}

// WorkflowDefinition is the immutable graph describing a business process.
// Edges are encoded as node-level "connections" entries in each node's config.
type WorkflowDefinition struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Name           string         `json:"name,omitempty"`
	Version        int            `json:"version,omitempty"`
	Nodes          []WorkflowNode `json:"nodes"`
}

// WorkflowNode is a single typed step in a definition.
type WorkflowNode struct {
	ID   string   `json:"id"`
	Type StepType `json:"type"`
	Data NodeData `json:"data"`
}

// NodeData carries the human-facing label and the processor-specific config bag.
type NodeData struct {
	Label       string          `json:"label,omitempty"`
	Description string          `json:"description,omitempty"`
	Config      map[string]any  `json:"config,omitempty"`
	Conditions  []NodeCondition `json:"conditions,omitempty"`
}

// NodeCondition is one routing rule on a condition node. Conditions are
// evaluated in order; the first truthy expression selects the connection
// at the same index.
type NodeCondition struct {
	Expression string `json:"expression"`
	Language   string `json:"language,omitempty"` // cel (default) | expr
}

// Node returns the node with the given ID, or nil if absent.
func (d *WorkflowDefinition) Node(id string) *WorkflowNode {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}

// StartNode returns the definition's start node, or nil if absent.
func (d *WorkflowDefinition) StartNode() *WorkflowNode {
	for i := range d.Nodes {
		if d.Nodes[i].Type == StepTypeStart {
			return &d.Nodes[i]
		}
	}
	return nil
}

// Connections returns the node's outgoing edges (target node IDs) from its
// config bag. Both []string and []any encodings are accepted since config
// round-trips through JSON.
func (n *WorkflowNode) Connections() []string {
	if n.Data.Config == nil {
		return nil
	}
	raw, ok := n.Data.Config["connections"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
