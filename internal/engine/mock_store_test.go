package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/procflow/procflow/internal/store"
	"github.com/procflow/procflow/pkg/schema"
)

// mockStore is an in-memory Store with the same version-check semantics as
// the SQL implementation.
type mockStore struct {
	mu          sync.Mutex
	definitions map[string]*schema.WorkflowDefinition
	instances   map[string]*store.Instance
	tasks       map[string]*store.Task
	audits      []*store.AuditEntry

	failCreateTask bool // simulate task-table unavailability
}

func newMockStore() *mockStore {
	return &mockStore{
		definitions: make(map[string]*schema.WorkflowDefinition),
		instances:   make(map[string]*store.Instance),
		tasks:       make(map[string]*store.Task),
	}
}

func (m *mockStore) CreateWorkflowDefinition(_ context.Context, def *schema.WorkflowDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitions[def.ID] = def
	return nil
}

func (m *mockStore) FindWorkflowDefinition(_ context.Context, id, orgID string) (*schema.WorkflowDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := m.definitions[id]
	if !ok || (orgID != "" && def.OrganizationID != "" && def.OrganizationID != orgID) {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow definition not found: %s", id)
	}
	return def, nil
}

func (m *mockStore) ListWorkflowDefinitions(_ context.Context, orgID string) ([]*schema.WorkflowDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*schema.WorkflowDefinition
	for _, def := range m.definitions {
		if orgID == "" || def.OrganizationID == orgID {
			out = append(out, def)
		}
	}
	return out, nil
}

func (m *mockStore) CreateInstance(_ context.Context, inst *store.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inst
	m.instances[inst.ID] = &cp
	return nil
}

func (m *mockStore) FindInstance(_ context.Context, id string) (*store.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow instance not found: %s", id)
	}
	cp := *inst
	return &cp, nil
}

func (m *mockStore) UpdateInstance(_ context.Context, id string, expectedVersion int64, update store.InstanceUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "workflow instance not found: %s", id)
	}
	if inst.Version != expectedVersion {
		return schema.NewErrorf(schema.ErrCodeConcurrentModification,
			"instance %s was modified concurrently (expected version %d, have %d)",
			id, expectedVersion, inst.Version)
	}
	if update.Status != nil {
		inst.Status = *update.Status
	}
	if update.CurrentStepID != nil {
		inst.CurrentStepID = *update.CurrentStepID
	}
	if update.Data != nil {
		inst.Data = update.Data
	}
	if update.Variables != nil {
		inst.Variables = update.Variables
	}
	if update.Context != nil {
		inst.Context = update.Context
	}
	if update.Priority != nil {
		inst.Priority = *update.Priority
	}
	if update.SLADeadline != nil {
		inst.SLADeadline = update.SLADeadline
	}
	if update.CompletedAt != nil {
		inst.CompletedAt = update.CompletedAt
	}
	inst.Version++
	inst.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *mockStore) ListInstances(_ context.Context, filter store.InstanceFilter) ([]*store.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := m.matchInstances(filter)
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (m *mockStore) CountInstances(_ context.Context, filter store.InstanceFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.matchInstances(filter))), nil
}

func (m *mockStore) matchInstances(filter store.InstanceFilter) []*store.Instance {
	var out []*store.Instance
	for _, inst := range m.instances {
		if filter.WorkflowID != "" && inst.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.OrganizationID != "" && inst.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && inst.Priority != filter.Priority {
			continue
		}
		if filter.TriggeredBy != "" && inst.TriggeredBy != filter.TriggeredBy {
			continue
		}
		cp := *inst
		out = append(out, &cp)
	}
	return out
}

func (m *mockStore) CreateTask(_ context.Context, task *store.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateTask {
		return schema.NewError(schema.ErrCodeStore, "task table unavailable")
	}
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *mockStore) GetTask(_ context.Context, id string) (*store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "task not found: %s", id)
	}
	cp := *task
	return &cp, nil
}

func (m *mockStore) UpdateTask(_ context.Context, id string, update store.TaskUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "task not found: %s", id)
	}
	if update.Status != nil {
		task.Status = *update.Status
	}
	if update.AssigneeID != nil {
		task.AssigneeID = *update.AssigneeID
	}
	if update.CompletedAt != nil {
		task.CompletedAt = update.CompletedAt
	}
	if update.CompletedBy != nil {
		task.CompletedBy = *update.CompletedBy
	}
	return nil
}

func (m *mockStore) ListTasks(_ context.Context, filter store.TaskFilter) ([]*store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Task
	for _, task := range m.tasks {
		if filter.InstanceID != "" && task.InstanceID != filter.InstanceID {
			continue
		}
		if filter.StepID != "" && task.StepID != filter.StepID {
			continue
		}
		if filter.AssigneeID != "" && task.AssigneeID != filter.AssigneeID {
			continue
		}
		if filter.TaskType != "" && task.TaskType != filter.TaskType {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		cp := *task
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *mockStore) AppendAuditEntry(_ context.Context, entry *store.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	cp.ID = int64(len(m.audits) + 1)
	m.audits = append(m.audits, &cp)
	return nil
}

func (m *mockStore) ListAuditEntries(_ context.Context, filter store.AuditFilter) ([]*store.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.AuditEntry
	for _, entry := range m.audits {
		if filter.Resource != "" && entry.Resource != filter.Resource {
			continue
		}
		if filter.ResourceID != "" && entry.ResourceID != filter.ResourceID {
			continue
		}
		if filter.Category != "" && entry.Category != filter.Category {
			continue
		}
		cp := *entry
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockStore) Migrate(_ context.Context) error { return nil }
func (m *mockStore) Vacuum(_ context.Context) error  { return nil }
func (m *mockStore) Close() error                    { return nil }

var _ store.Store = (*mockStore)(nil)
