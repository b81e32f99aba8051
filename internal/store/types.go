package store

import (
	"time"

	"github.com/procflow/procflow/pkg/schema"
)

// Instance is the persisted runtime state of one workflow execution.
// Version is an optimistic concurrency counter: every update must supply
// the version it read, and the store rejects stale writes.
type Instance struct {
	ID             string                `json:"id"`
	WorkflowID     string                `json:"workflow_id"`
	OrganizationID string                `json:"organization_id,omitempty"`
	Status         schema.InstanceStatus `json:"status"`
	CurrentStepID  string                `json:"current_step_id,omitempty"`
	Data           map[string]any        `json:"data,omitempty"`
	Variables      map[string]any        `json:"variables,omitempty"`
	Context        map[string]any        `json:"context,omitempty"`
	Priority       string                `json:"priority,omitempty"`
	TriggerType    string                `json:"trigger_type,omitempty"`
	TriggerData    map[string]any        `json:"trigger_data,omitempty"`
	SLADeadline    *time.Time            `json:"sla_deadline,omitempty"`
	TriggeredBy    string                `json:"triggered_by,omitempty"`
	Version        int64                 `json:"version"`
	CreatedAt      time.Time             `json:"created_at"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// Task is a manual or approval work item created by a suspending step.
type Task struct {
	ID             string         `json:"id"`
	InstanceID     string         `json:"instance_id"`
	StepID         string         `json:"step_id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	TaskType       string         `json:"task_type"` // manual | approval
	Priority       string         `json:"priority,omitempty"`
	AssigneeID     string         `json:"assignee_id,omitempty"`
	AssignmentType string         `json:"assignment_type,omitempty"`
	DueDate        *time.Time     `json:"due_date,omitempty"`
	FormData       map[string]any `json:"form_data,omitempty"`
	Attachments    []string       `json:"attachments,omitempty"`
	Status         string         `json:"status"` // open | completed | cancelled
	CreatedBy      string         `json:"created_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	CompletedBy    string         `json:"completed_by,omitempty"`
}

// AuditEntry is an immutable record of an engine-visible action.
type AuditEntry struct {
	ID             int64          `json:"id"`
	Action         string         `json:"action"`
	Resource       string         `json:"resource"`
	ResourceID     string         `json:"resource_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Category       string         `json:"category"`
	Severity       string         `json:"severity,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// --- Filter and update types ---

// InstanceUpdate specifies mutable fields of an instance. Nil fields are
// left untouched. CurrentStepID distinguishes "unset" (nil) from "clear"
// (pointer to empty string) so terminal instances can drop their cursor.
type InstanceUpdate struct {
	Status        *schema.InstanceStatus `json:"status,omitempty"`
	CurrentStepID *string                `json:"current_step_id,omitempty"`
	Data          map[string]any         `json:"data,omitempty"`
	Variables     map[string]any         `json:"variables,omitempty"`
	Context       map[string]any         `json:"context,omitempty"`
	Priority      *string                `json:"priority,omitempty"`
	SLADeadline   *time.Time             `json:"sla_deadline,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

// InstanceFilter specifies criteria for listing and counting instances.
type InstanceFilter struct {
	WorkflowID     string                `json:"workflow_id,omitempty"`
	OrganizationID string                `json:"organization_id,omitempty"`
	Status         schema.InstanceStatus `json:"status,omitempty"`
	Priority       string                `json:"priority,omitempty"`
	TriggeredBy    string                `json:"triggered_by,omitempty"`
	Limit          int                   `json:"limit,omitempty"`
	Offset         int                   `json:"offset,omitempty"`
}

// TaskUpdate specifies mutable fields of a task.
type TaskUpdate struct {
	Status      *string    `json:"status,omitempty"`
	AssigneeID  *string    `json:"assignee_id,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CompletedBy *string    `json:"completed_by,omitempty"`
}

// TaskFilter specifies criteria for listing tasks.
type TaskFilter struct {
	InstanceID string `json:"instance_id,omitempty"`
	StepID     string `json:"step_id,omitempty"`
	AssigneeID string `json:"assignee_id,omitempty"`
	TaskType   string `json:"task_type,omitempty"`
	Status     string `json:"status,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// AuditFilter specifies criteria for listing audit entries.
type AuditFilter struct {
	Resource       string `json:"resource,omitempty"`
	ResourceID     string `json:"resource_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	Category       string `json:"category,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}
