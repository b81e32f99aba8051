package schema

import "time"

// InstanceStatus represents the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusRunning   InstanceStatus = "running"
	InstanceStatusPaused    InstanceStatus = "paused"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusCancelled InstanceStatus = "cancelled"
	InstanceStatusFailed    InstanceStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusCancelled || s == InstanceStatusFailed
}

// InstanceAction is an externally triggered lifecycle command, distinct
// from natural step completion.
type InstanceAction string

const (
	ActionPause  InstanceAction = "pause"
	ActionResume InstanceAction = "resume"
	ActionCancel InstanceAction = "cancel"
)

// ExecuteWorkflowRequest creates and immediately advances a new instance.
type ExecuteWorkflowRequest struct {
	WorkflowID  string         `json:"workflow_id"`
	Data        map[string]any `json:"data,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	Priority    string         `json:"priority,omitempty"`
	SLADeadline *time.Time     `json:"sla_deadline,omitempty"`
}

// CreateInstanceRequest creates a new instance without advancing it.
type CreateInstanceRequest struct {
	WorkflowID  string         `json:"workflow_id"`
	Data        map[string]any `json:"data,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	Priority    string         `json:"priority,omitempty"`
	TriggerType string         `json:"trigger_type"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	SLADeadline *time.Time     `json:"sla_deadline,omitempty"`
}

// ActionRequest applies a lifecycle action to an instance.
type ActionRequest struct {
	Action InstanceAction `json:"action"`
	Reason string         `json:"reason,omitempty"`
}

// InstanceQuery filters and paginates instance listings.
type InstanceQuery struct {
	WorkflowID  string         `json:"workflow_id,omitempty"`
	Status      InstanceStatus `json:"status,omitempty"`
	Priority    string         `json:"priority,omitempty"`
	TriggeredBy string         `json:"triggered_by,omitempty"`
	Page        int            `json:"page"`
	Limit       int            `json:"limit"`
}

// InstancePatch holds the mutable fields accepted by UpdateWorkflowInstance.
// Nil fields are left untouched.
type InstancePatch struct {
	Status      *InstanceStatus `json:"status,omitempty"`
	Data        map[string]any  `json:"data,omitempty"`
	Variables   map[string]any  `json:"variables,omitempty"`
	Context     map[string]any  `json:"context,omitempty"`
	Priority    *string         `json:"priority,omitempty"`
	SLADeadline *time.Time      `json:"sla_deadline,omitempty"`
}
