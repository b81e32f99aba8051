package store

import (
	"context"

	"github.com/procflow/procflow/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflow definitions
	CreateWorkflowDefinition(ctx context.Context, def *schema.WorkflowDefinition) error
	FindWorkflowDefinition(ctx context.Context, id, orgID string) (*schema.WorkflowDefinition, error)
	ListWorkflowDefinitions(ctx context.Context, orgID string) ([]*schema.WorkflowDefinition, error)

	// Instances
	CreateInstance(ctx context.Context, inst *Instance) error
	FindInstance(ctx context.Context, id string) (*Instance, error)
	UpdateInstance(ctx context.Context, id string, expectedVersion int64, update InstanceUpdate) error
	ListInstances(ctx context.Context, filter InstanceFilter) ([]*Instance, error)
	CountInstances(ctx context.Context, filter InstanceFilter) (int64, error)

	// Tasks
	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	UpdateTask(ctx context.Context, id string, update TaskUpdate) error
	ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error)

	// Audit (append-only)
	AppendAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
