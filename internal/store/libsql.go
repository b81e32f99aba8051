package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/procflow/procflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Workflow Definitions ---

func (s *LibSQLStore) CreateWorkflowDefinition(ctx context.Context, def *schema.WorkflowDefinition) error {
	nodes, err := json.Marshal(def.Nodes)
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	version := def.Version
	if version <= 0 {
		version = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_definitions (id, organization_id, name, version, nodes) VALUES (?, ?, ?, ?, ?)`,
		def.ID, nullStr(def.OrganizationID), nullStr(def.Name), version, string(nodes),
	)
	return err
}

func (s *LibSQLStore) FindWorkflowDefinition(ctx context.Context, id, orgID string) (*schema.WorkflowDefinition, error) {
	def := &schema.WorkflowDefinition{}
	var org, name sql.NullString
	var nodesJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, version, nodes FROM workflow_definitions WHERE id = ?`, id,
	).Scan(&def.ID, &org, &name, &def.Version, &nodesJSON)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow definition", id)
	}
	if err != nil {
		return nil, err
	}
	def.OrganizationID = org.String
	def.Name = name.String
	if err := json.Unmarshal([]byte(nodesJSON), &def.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	// Org-scoped lookups must not leak definitions across tenants.
	if orgID != "" && def.OrganizationID != orgID {
		return nil, storeNotFound("workflow definition", id)
	}
	return def, nil
}

func (s *LibSQLStore) ListWorkflowDefinitions(ctx context.Context, orgID string) ([]*schema.WorkflowDefinition, error) {
	query := `SELECT id, organization_id, name, version, nodes FROM workflow_definitions`
	var args []any
	if orgID != "" {
		query += ` WHERE organization_id = ?`
		args = append(args, orgID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*schema.WorkflowDefinition
	for rows.Next() {
		def := &schema.WorkflowDefinition{}
		var org, name sql.NullString
		var nodesJSON string
		if err := rows.Scan(&def.ID, &org, &name, &def.Version, &nodesJSON); err != nil {
			return nil, err
		}
		def.OrganizationID = org.String
		def.Name = name.String
		if err := json.Unmarshal([]byte(nodesJSON), &def.Nodes); err != nil {
			return nil, fmt.Errorf("unmarshal nodes: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// --- Instances ---

func (s *LibSQLStore) CreateInstance(ctx context.Context, inst *Instance) error {
	data, err := marshalMapOrDefault(inst.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	variables, err := marshalMapOrDefault(inst.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	instCtx, err := marshalMapOrDefault(inst.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	triggerData, err := marshalMapOrDefault(inst.TriggerData)
	if err != nil {
		return fmt.Errorf("marshal trigger_data: %w", err)
	}
	version := inst.Version
	if version <= 0 {
		version = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_instances (id, workflow_id, organization_id, status, current_step_id, data, variables, context, priority, trigger_type, trigger_data, sla_deadline, triggered_by, version, created_at, completed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.WorkflowID, nullStr(inst.OrganizationID), string(inst.Status), nullStr(inst.CurrentStepID),
		string(data), string(variables), string(instCtx), nullStr(inst.Priority), nullStr(inst.TriggerType),
		string(triggerData), nullTime(inst.SLADeadline), nullStr(inst.TriggeredBy), version,
		timeOrNow(inst.CreatedAt), nullTime(inst.CompletedAt), timeOrNow(inst.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) FindInstance(ctx context.Context, id string) (*Instance, error) {
	inst := &Instance{}
	var (
		org, currentStep, priority, triggerType, triggeredBy sql.NullString
		dataJSON, varsJSON, ctxJSON, triggerJSON             string
		slaDeadline, completedAt                             sql.NullTime
		status                                               string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, organization_id, status, current_step_id, data, variables, context, priority, trigger_type, trigger_data, sla_deadline, triggered_by, version, created_at, completed_at, updated_at
		 FROM workflow_instances WHERE id = ?`, id,
	).Scan(&inst.ID, &inst.WorkflowID, &org, &status, &currentStep, &dataJSON, &varsJSON, &ctxJSON,
		&priority, &triggerType, &triggerJSON, &slaDeadline, &triggeredBy, &inst.Version,
		&inst.CreatedAt, &completedAt, &inst.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow instance", id)
	}
	if err != nil {
		return nil, err
	}
	inst.OrganizationID = org.String
	inst.Status = schema.InstanceStatus(status)
	inst.CurrentStepID = currentStep.String
	inst.Priority = priority.String
	inst.TriggerType = triggerType.String
	inst.TriggeredBy = triggeredBy.String
	if slaDeadline.Valid {
		inst.SLADeadline = &slaDeadline.Time
	}
	if completedAt.Valid {
		inst.CompletedAt = &completedAt.Time
	}
	if err := unmarshalMap(dataJSON, &inst.Data); err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	if err := unmarshalMap(varsJSON, &inst.Variables); err != nil {
		return nil, fmt.Errorf("unmarshal variables: %w", err)
	}
	if err := unmarshalMap(ctxJSON, &inst.Context); err != nil {
		return nil, fmt.Errorf("unmarshal context: %w", err)
	}
	if err := unmarshalMap(triggerJSON, &inst.TriggerData); err != nil {
		return nil, fmt.Errorf("unmarshal trigger_data: %w", err)
	}
	return inst, nil
}

func (s *LibSQLStore) UpdateInstance(ctx context.Context, id string, expectedVersion int64, update InstanceUpdate) error {
	sets := []string{"version = version + 1", "updated_at = CURRENT_TIMESTAMP"}
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.CurrentStepID != nil {
		sets = append(sets, "current_step_id = ?")
		args = append(args, nullStr(*update.CurrentStepID))
	}
	if update.Data != nil {
		data, err := json.Marshal(update.Data)
		if err != nil {
			return fmt.Errorf("marshal data: %w", err)
		}
		sets = append(sets, "data = ?")
		args = append(args, string(data))
	}
	if update.Variables != nil {
		vars, err := json.Marshal(update.Variables)
		if err != nil {
			return fmt.Errorf("marshal variables: %w", err)
		}
		sets = append(sets, "variables = ?")
		args = append(args, string(vars))
	}
	if update.Context != nil {
		instCtx, err := json.Marshal(update.Context)
		if err != nil {
			return fmt.Errorf("marshal context: %w", err)
		}
		sets = append(sets, "context = ?")
		args = append(args, string(instCtx))
	}
	if update.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, nullStr(*update.Priority))
	}
	if update.SLADeadline != nil {
		sets = append(sets, "sla_deadline = ?")
		args = append(args, *update.SLADeadline)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}

	query := `UPDATE workflow_instances SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND version = ?`
	args = append(args, id, expectedVersion)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing row from a stale version.
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM workflow_instances WHERE id = ?`, id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return storeNotFound("workflow instance", id)
		}
		return schema.NewErrorf(schema.ErrCodeConcurrentModification,
			"workflow instance %q was modified concurrently (expected version %d)", id, expectedVersion).
			WithDetails(map[string]any{"instance_id": id, "expected_version": expectedVersion})
	}
	return nil
}

func (s *LibSQLStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]*Instance, error) {
	query := `SELECT id FROM workflow_instances` + instanceFilterClause(filter)
	query += ` ORDER BY created_at DESC`
	args := instanceFilterArgs(filter)
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	insts := make([]*Instance, 0, len(ids))
	for _, id := range ids {
		inst, err := s.FindInstance(ctx, id)
		if err != nil {
			return nil, err
		}
		insts = append(insts, inst)
	}
	return insts, nil
}

func (s *LibSQLStore) CountInstances(ctx context.Context, filter InstanceFilter) (int64, error) {
	query := `SELECT COUNT(1) FROM workflow_instances` + instanceFilterClause(filter)
	var count int64
	err := s.db.QueryRowContext(ctx, query, instanceFilterArgs(filter)...).Scan(&count)
	return count, err
}

func instanceFilterClause(filter InstanceFilter) string {
	var conds []string
	if filter.WorkflowID != "" {
		conds = append(conds, "workflow_id = ?")
	}
	if filter.OrganizationID != "" {
		conds = append(conds, "organization_id = ?")
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
	}
	if filter.Priority != "" {
		conds = append(conds, "priority = ?")
	}
	if filter.TriggeredBy != "" {
		conds = append(conds, "triggered_by = ?")
	}
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func instanceFilterArgs(filter InstanceFilter) []any {
	var args []any
	if filter.WorkflowID != "" {
		args = append(args, filter.WorkflowID)
	}
	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
	}
	if filter.TriggeredBy != "" {
		args = append(args, filter.TriggeredBy)
	}
	return args
}

// --- Tasks ---

func (s *LibSQLStore) CreateTask(ctx context.Context, task *Task) error {
	formData, err := marshalMapOrDefault(task.FormData)
	if err != nil {
		return fmt.Errorf("marshal form_data: %w", err)
	}
	attachments, err := json.Marshal(task.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}
	if task.Attachments == nil {
		attachments = []byte("[]")
	}
	status := task.Status
	if status == "" {
		status = "open"
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_tasks (id, instance_id, step_id, name, description, task_type, priority, assignee_id, assignment_type, due_date, form_data, attachments, status, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.InstanceID, task.StepID, task.Name, nullStr(task.Description), task.TaskType,
		nullStr(task.Priority), nullStr(task.AssigneeID), nullStr(task.AssignmentType), nullTime(task.DueDate),
		string(formData), string(attachments), status, nullStr(task.CreatedBy), timeOrNow(task.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetTask(ctx context.Context, id string) (*Task, error) {
	task := &Task{}
	var (
		description, priority, assignee, assignmentType, createdBy, completedBy sql.NullString
		dueDate, completedAt                                                    sql.NullTime
		formJSON, attachJSON                                                    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, instance_id, step_id, name, description, task_type, priority, assignee_id, assignment_type, due_date, form_data, attachments, status, created_by, created_at, completed_at, completed_by
		 FROM workflow_tasks WHERE id = ?`, id,
	).Scan(&task.ID, &task.InstanceID, &task.StepID, &task.Name, &description, &task.TaskType,
		&priority, &assignee, &assignmentType, &dueDate, &formJSON, &attachJSON, &task.Status,
		&createdBy, &task.CreatedAt, &completedAt, &completedBy)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("task", id)
	}
	if err != nil {
		return nil, err
	}
	task.Description = description.String
	task.Priority = priority.String
	task.AssigneeID = assignee.String
	task.AssignmentType = assignmentType.String
	task.CreatedBy = createdBy.String
	task.CompletedBy = completedBy.String
	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	if err := unmarshalMap(formJSON, &task.FormData); err != nil {
		return nil, fmt.Errorf("unmarshal form_data: %w", err)
	}
	if err := json.Unmarshal([]byte(attachJSON), &task.Attachments); err != nil {
		return nil, fmt.Errorf("unmarshal attachments: %w", err)
	}
	return task, nil
}

func (s *LibSQLStore) UpdateTask(ctx context.Context, id string, update TaskUpdate) error {
	var sets []string
	var args []any
	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *update.Status)
	}
	if update.AssigneeID != nil {
		sets = append(sets, "assignee_id = ?")
		args = append(args, nullStr(*update.AssigneeID))
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if update.CompletedBy != nil {
		sets = append(sets, "completed_by = ?")
		args = append(args, nullStr(*update.CompletedBy))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "task", id)
}

func (s *LibSQLStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	query := `SELECT id FROM workflow_tasks`
	var conds []string
	var args []any
	if filter.InstanceID != "" {
		conds = append(conds, "instance_id = ?")
		args = append(args, filter.InstanceID)
	}
	if filter.StepID != "" {
		conds = append(conds, "step_id = ?")
		args = append(args, filter.StepID)
	}
	if filter.AssigneeID != "" {
		conds = append(conds, "assignee_id = ?")
		args = append(args, filter.AssigneeID)
	}
	if filter.TaskType != "" {
		conds = append(conds, "task_type = ?")
		args = append(args, filter.TaskType)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		task, err := s.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// --- Audit ---

func (s *LibSQLStore) AppendAuditEntry(ctx context.Context, entry *AuditEntry) error {
	metadata, err := marshalMapOrDefault(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (action, resource, resource_id, user_id, organization_id, category, severity, metadata, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Action, entry.Resource, nullStr(entry.ResourceID), nullStr(entry.UserID),
		nullStr(entry.OrganizationID), entry.Category, nullStr(entry.Severity),
		string(metadata), timeOrNow(entry.Timestamp),
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

func (s *LibSQLStore) ListAuditEntries(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	query := `SELECT id, action, resource, resource_id, user_id, organization_id, category, severity, metadata, timestamp FROM audit_entries`
	var conds []string
	var args []any
	if filter.Resource != "" {
		conds = append(conds, "resource = ?")
		args = append(args, filter.Resource)
	}
	if filter.ResourceID != "" {
		conds = append(conds, "resource_id = ?")
		args = append(args, filter.ResourceID)
	}
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.OrganizationID != "" {
		conds = append(conds, "organization_id = ?")
		args = append(args, filter.OrganizationID)
	}
	if filter.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, filter.Category)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		entry := &AuditEntry{}
		var resourceID, userID, orgID, severity sql.NullString
		var metaJSON string
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.Resource, &resourceID, &userID,
			&orgID, &entry.Category, &severity, &metaJSON, &entry.Timestamp); err != nil {
			return nil, err
		}
		entry.ResourceID = resourceID.String
		entry.UserID = userID.String
		entry.OrganizationID = orgID.String
		entry.Severity = severity.String
		if err := unmarshalMap(metaJSON, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.WorkflowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func marshalMapOrDefault(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func unmarshalMap(raw string, dest *map[string]any) error {
	if raw == "" || raw == "{}" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}
