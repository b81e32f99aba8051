package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/procflow/procflow/internal/tasks"
	"github.com/procflow/procflow/pkg/schema"
)

// TaskProcessor handles task nodes: it creates a manual work item and
// suspends the instance until an external actor resolves the task and
// re-triggers advancement.
type TaskProcessor struct {
	tasks  tasks.Service
	config Config
	logger *slog.Logger
}

// NewTaskProcessor creates the task-node processor.
func NewTaskProcessor(svc tasks.Service, cfg Config, logger *slog.Logger) *TaskProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskProcessor{tasks: svc, config: cfg.withDefaults(), logger: logger}
}

func (p *TaskProcessor) Type() schema.StepType { return schema.StepTypeTask }

func (p *TaskProcessor) Process(ctx context.Context, input *Input) (*Result, error) {
	return createTask(ctx, p.tasks, p.logger, input, tasks.TypeManual, p.config.DefaultTaskPriority, p.config.DefaultAssignmentType)
}

// ApprovalProcessor handles approval nodes. Identical suspension contract
// to task nodes, but the work item is approval-typed and defaults to an
// elevated priority.
type ApprovalProcessor struct {
	tasks  tasks.Service
	config Config
	logger *slog.Logger
}

// NewApprovalProcessor creates the approval-node processor.
func NewApprovalProcessor(svc tasks.Service, cfg Config, logger *slog.Logger) *ApprovalProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalProcessor{tasks: svc, config: cfg.withDefaults(), logger: logger}
}

func (p *ApprovalProcessor) Type() schema.StepType { return schema.StepTypeApproval }

func (p *ApprovalProcessor) Process(ctx context.Context, input *Input) (*Result, error) {
	return createTask(ctx, p.tasks, p.logger, input, tasks.TypeApproval, p.config.DefaultApprovalPriority, p.config.DefaultAssignmentType)
}

// createTask resolves the work item backing a task or approval step. The
// lookup makes re-processing idempotent: an open task keeps the instance
// parked without creating a duplicate, a completed task completes the step,
// and a cancelled task gets a fresh replacement. A task-service failure is
// recoverable: the instance stalls at the step and a later re-invocation
// retries the creation.
func createTask(ctx context.Context, svc tasks.Service, logger *slog.Logger, input *Input, taskType, defaultPriority, defaultAssignment string) (*Result, error) {
	node := input.Node
	config := node.Data.Config

	existing, err := svc.FindStepTask(ctx, input.Instance.ID, node.ID)
	if err != nil {
		logger.WarnContext(ctx, "task lookup failed, instance stalls at step", "error", err)
		return &Result{Completed: false, Err: err.Error()}, nil
	}
	if existing != nil {
		switch existing.Status {
		case tasks.StatusOpen:
			return &Result{
				Completed: false,
				Data:      map[string]any{"task_id": existing.ID, "task_type": existing.TaskType},
			}, nil
		case tasks.StatusCompleted:
			return &Result{
				Completed: true,
				Data: map[string]any{
					"task_id":      existing.ID,
					"task_type":    existing.TaskType,
					"completed_by": existing.CompletedBy,
					"form_data":    existing.FormData,
				},
			}, nil
		}
		// Cancelled tasks fall through and a replacement is created.
	}

	name := node.Data.Label
	if name == "" {
		name = node.ID
	}

	spec := tasks.Spec{
		InstanceID:     input.Instance.ID,
		StepID:         node.ID,
		Name:           name,
		Description:    node.Data.Description,
		TaskType:       taskType,
		Priority:       stringParam(config, "priority", defaultPriority),
		AssigneeID:     stringParam(config, "assignee_id", ""),
		AssignmentType: stringParam(config, "assignment_type", defaultAssignment),
		DueDate:        dueDateParam(config),
		FormData:       mapParam(config, "form_data"),
		Attachments:    stringSliceParam(config, "attachments"),
	}

	task, err := svc.CreateWorkflowTask(ctx, spec, input.Instance.TriggeredBy)
	if err != nil {
		logger.WarnContext(ctx, "task creation failed, instance stalls at step", "error", err)
		return &Result{Completed: false, Err: err.Error()}, nil
	}

	return &Result{
		Completed: false,
		Data:      map[string]any{"task_id": task.ID, "task_type": task.TaskType},
	}, nil
}

// dueDateParam reads a due date from node config, either as an RFC 3339
// timestamp ("due_date") or as a duration from now ("due_in", e.g. "72h").
func dueDateParam(config map[string]any) *time.Time {
	if raw := stringParam(config, "due_date", ""); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return &t
		}
	}
	if raw := stringParam(config, "due_in", ""); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			t := time.Now().UTC().Add(d)
			return &t
		}
	}
	return nil
}

var (
	_ Processor = (*TaskProcessor)(nil)
	_ Processor = (*ApprovalProcessor)(nil)
)
