package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/procflow/procflow/internal/store"
	"github.com/procflow/procflow/pkg/schema"
)

// Task types.
const (
	TypeManual   = "manual"
	TypeApproval = "approval"
)

// Task statuses.
const (
	StatusOpen      = "open"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Spec describes a work item requested by a suspending step.
type Spec struct {
	InstanceID     string
	StepID         string
	Name           string
	Description    string
	TaskType       string // manual | approval
	Priority       string
	AssigneeID     string
	AssignmentType string
	DueDate        *time.Time
	FormData       map[string]any
	Attachments    []string
}

// Service creates and resolves the manual tasks that park an instance.
type Service interface {
	CreateWorkflowTask(ctx context.Context, spec Spec, creatorID string) (*store.Task, error)
	CompleteWorkflowTask(ctx context.Context, taskID, userID string) (*store.Task, error)
	// FindStepTask returns the most recent task for the given step of an
	// instance, or nil when the step has never created one.
	FindStepTask(ctx context.Context, instanceID, stepID string) (*store.Task, error)
}

// StoreService persists tasks via the Store.
type StoreService struct {
	store store.Store
}

// NewStoreService creates a store-backed task service.
func NewStoreService(s store.Store) *StoreService {
	return &StoreService{store: s}
}

// CreateWorkflowTask persists a new open task for the given step.
func (s *StoreService) CreateWorkflowTask(ctx context.Context, spec Spec, creatorID string) (*store.Task, error) {
	if spec.InstanceID == "" || spec.StepID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "task spec requires instance_id and step_id")
	}
	taskType := spec.TaskType
	if taskType == "" {
		taskType = TypeManual
	}

	task := &store.Task{
		ID:             uuid.NewString(),
		InstanceID:     spec.InstanceID,
		StepID:         spec.StepID,
		Name:           spec.Name,
		Description:    spec.Description,
		TaskType:       taskType,
		Priority:       spec.Priority,
		AssigneeID:     spec.AssigneeID,
		AssignmentType: spec.AssignmentType,
		DueDate:        spec.DueDate,
		FormData:       spec.FormData,
		Attachments:    spec.Attachments,
		Status:         StatusOpen,
		CreatedBy:      creatorID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// CompleteWorkflowTask marks an open task as completed. The caller is
// responsible for re-triggering instance advancement afterwards.
func (s *StoreService) CompleteWorkflowTask(ctx context.Context, taskID, userID string) (*store.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != StatusOpen {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"task %q is %s, only open tasks can be completed", taskID, task.Status)
	}

	now := time.Now().UTC()
	status := StatusCompleted
	if err := s.store.UpdateTask(ctx, taskID, store.TaskUpdate{
		Status:      &status,
		CompletedAt: &now,
		CompletedBy: &userID,
	}); err != nil {
		return nil, err
	}
	task.Status = status
	task.CompletedAt = &now
	task.CompletedBy = userID
	return task, nil
}

// FindStepTask returns the most recent task for the given step, or nil.
func (s *StoreService) FindStepTask(ctx context.Context, instanceID, stepID string) (*store.Task, error) {
	found, err := s.store.ListTasks(ctx, store.TaskFilter{
		InstanceID: instanceID,
		StepID:     stepID,
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

var _ Service = (*StoreService)(nil)
