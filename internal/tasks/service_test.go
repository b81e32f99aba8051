package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procflow/procflow/internal/store"
	"github.com/procflow/procflow/pkg/schema"
)

// stubStore implements only the task methods of store.Store; the embedded
// interface panics on anything else, which keeps the test surface honest.
type stubStore struct {
	store.Store
	tasks map[string]*store.Task
}

func newStubStore() *stubStore {
	return &stubStore{tasks: make(map[string]*store.Task)}
}

func (s *stubStore) CreateTask(_ context.Context, task *store.Task) error {
	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *stubStore) GetTask(_ context.Context, id string) (*store.Task, error) {
	task, ok := s.tasks[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "task not found: %s", id)
	}
	cp := *task
	return &cp, nil
}

func (s *stubStore) UpdateTask(_ context.Context, id string, update store.TaskUpdate) error {
	task, ok := s.tasks[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "task not found: %s", id)
	}
	if update.Status != nil {
		task.Status = *update.Status
	}
	if update.CompletedAt != nil {
		task.CompletedAt = update.CompletedAt
	}
	if update.CompletedBy != nil {
		task.CompletedBy = *update.CompletedBy
	}
	return nil
}

func (s *stubStore) ListTasks(_ context.Context, filter store.TaskFilter) ([]*store.Task, error) {
	var out []*store.Task
	for _, task := range s.tasks {
		if filter.InstanceID != "" && task.InstanceID != filter.InstanceID {
			continue
		}
		if filter.StepID != "" && task.StepID != filter.StepID {
			continue
		}
		cp := *task
		out = append(out, &cp)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func TestCreateWorkflowTask(t *testing.T) {
	svc := NewStoreService(newStubStore())
	ctx := context.Background()

	due := time.Now().UTC().Add(48 * time.Hour)
	task, err := svc.CreateWorkflowTask(ctx, Spec{
		InstanceID: "inst-1",
		StepID:     "review",
		Name:       "Review order",
		TaskType:   TypeApproval,
		Priority:   "high",
		AssigneeID: "mgr-1",
		DueDate:    &due,
	}, "user-1")
	require.NoError(t, err)

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, StatusOpen, task.Status)
	assert.Equal(t, TypeApproval, task.TaskType)
	assert.Equal(t, "user-1", task.CreatedBy)
	require.NotNil(t, task.DueDate)
}

func TestCreateWorkflowTask_Defaults(t *testing.T) {
	svc := NewStoreService(newStubStore())

	task, err := svc.CreateWorkflowTask(context.Background(), Spec{
		InstanceID: "inst-1",
		StepID:     "s",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, TypeManual, task.TaskType)
}

func TestCreateWorkflowTask_RequiresInstanceAndStep(t *testing.T) {
	svc := NewStoreService(newStubStore())

	_, err := svc.CreateWorkflowTask(context.Background(), Spec{StepID: "s"}, "u")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))

	_, err = svc.CreateWorkflowTask(context.Background(), Spec{InstanceID: "i"}, "u")
	require.Error(t, err)
}

func TestCompleteWorkflowTask(t *testing.T) {
	svc := NewStoreService(newStubStore())
	ctx := context.Background()

	task, err := svc.CreateWorkflowTask(ctx, Spec{InstanceID: "inst-1", StepID: "s"}, "u")
	require.NoError(t, err)

	done, err := svc.CompleteWorkflowTask(ctx, task.ID, "approver-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, "approver-1", done.CompletedBy)
	require.NotNil(t, done.CompletedAt)

	// Completing twice is an invalid transition.
	_, err = svc.CompleteWorkflowTask(ctx, task.ID, "approver-1")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeInvalidTransition, schema.CodeOf(err))
}

func TestCompleteWorkflowTask_NotFound(t *testing.T) {
	svc := NewStoreService(newStubStore())
	_, err := svc.CompleteWorkflowTask(context.Background(), "ghost", "u")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestFindStepTask(t *testing.T) {
	svc := NewStoreService(newStubStore())
	ctx := context.Background()

	got, err := svc.FindStepTask(ctx, "inst-1", "review")
	require.NoError(t, err)
	assert.Nil(t, got)

	created, err := svc.CreateWorkflowTask(ctx, Spec{InstanceID: "inst-1", StepID: "review"}, "u")
	require.NoError(t, err)

	got, err = svc.FindStepTask(ctx, "inst-1", "review")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)

	// Other steps stay isolated.
	got, err = svc.FindStepTask(ctx, "inst-1", "other")
	require.NoError(t, err)
	assert.Nil(t, got)
}
