package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/procflow/procflow/internal/audit"
	"github.com/procflow/procflow/internal/expressions"
	"github.com/procflow/procflow/internal/logging"
	"github.com/procflow/procflow/internal/store"
	"github.com/procflow/procflow/internal/validation"
	"github.com/procflow/procflow/pkg/schema"
)

// InstancePage is one page of an instance listing.
type InstancePage struct {
	Instances []*store.Instance `json:"instances"`
	Total     int64             `json:"total"`
	Page      int               `json:"page"`
	Limit     int               `json:"limit"`
}

// Service coordinates workflow execution: it creates instances from
// definitions, advances them step by step through the processor table, and
// applies external lifecycle actions. All instance mutations go through the
// store's version check, so concurrent callers lose cleanly instead of
// overwriting each other.
type Service struct {
	store     store.Store
	resolver  *Resolver
	fsm       *LifecycleFSM
	auditor   audit.Service
	validator validation.Validator
	defCache  *gocache.Cache
	config    Config
	logger    *slog.Logger
}

// NewService creates the execution service.
func NewService(s store.Store, resolver *Resolver, fsm *LifecycleFSM, auditor audit.Service, validator validation.Validator, cfg Config, logger *slog.Logger) *Service {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     s,
		resolver:  resolver,
		fsm:       fsm,
		auditor:   auditor,
		validator: validator,
		defCache:  gocache.New(cfg.DefinitionCacheTTL, 2*cfg.DefinitionCacheTTL),
		config:    cfg,
		logger:    logger,
	}
}

// CreateWorkflowDefinition validates and persists a workflow definition.
func (s *Service) CreateWorkflowDefinition(ctx context.Context, def *schema.WorkflowDefinition) error {
	if s.validator != nil {
		if err := s.validator.ValidateDefinition(def); err != nil {
			return err
		}
	}
	if err := s.store.CreateWorkflowDefinition(ctx, def); err != nil {
		return schema.NewError(schema.ErrCodeStore, "create workflow definition").WithCause(err)
	}
	s.defCache.Delete(definitionCacheKey(def.ID, def.OrganizationID))

	if s.auditor != nil {
		_ = s.auditor.Log(ctx, audit.Event{
			Action:         "create",
			Resource:       "workflow_definition",
			ResourceID:     def.ID,
			UserID:         logging.ActorID(ctx),
			OrganizationID: def.OrganizationID,
			Category:       audit.CategoryWorkflow,
		})
	}
	return nil
}

// ExecuteWorkflow creates a new instance and immediately advances it as far
// as it will go in one pass.
func (s *Service) ExecuteWorkflow(ctx context.Context, orgID, userID string, req *schema.ExecuteWorkflowRequest) (*store.Instance, error) {
	inst, err := s.CreateWorkflowInstance(ctx, orgID, userID, &schema.CreateInstanceRequest{
		WorkflowID:  req.WorkflowID,
		Data:        req.Data,
		Variables:   req.Variables,
		Priority:    req.Priority,
		TriggerType: "manual",
		SLADeadline: req.SLADeadline,
	})
	if err != nil {
		return nil, err
	}
	return s.ProcessWorkflowInstance(ctx, inst.ID)
}

// CreateWorkflowInstance creates a new instance positioned at the
// definition's start node, without advancing it.
func (s *Service) CreateWorkflowInstance(ctx context.Context, orgID, userID string, req *schema.CreateInstanceRequest) (*store.Instance, error) {
	def, err := s.loadDefinition(ctx, req.WorkflowID, orgID)
	if err != nil {
		return nil, err
	}

	start := def.StartNode()
	if start == nil {
		return nil, schema.NewErrorf(schema.ErrCodeMissingStartNode,
			"workflow %s has no start node", def.ID)
	}

	triggerType := req.TriggerType
	if triggerType == "" {
		triggerType = "manual"
	}

	now := time.Now().UTC()
	inst := &store.Instance{
		ID:             uuid.NewString(),
		WorkflowID:     def.ID,
		OrganizationID: orgID,
		Status:         schema.InstanceStatusRunning,
		CurrentStepID:  start.ID,
		Data:           req.Data,
		Variables:      req.Variables,
		Context:        req.Context,
		Priority:       req.Priority,
		TriggerType:    triggerType,
		TriggerData:    req.TriggerData,
		SLADeadline:    req.SLADeadline,
		TriggeredBy:    userID,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.CreateInstance(ctx, inst); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "create workflow instance").WithCause(err)
	}

	ctx = logging.WithInstanceID(ctx, inst.ID)
	s.logger.InfoContext(ctx, "workflow instance created",
		"workflow_id", def.ID, "trigger_type", triggerType)

	if s.auditor != nil {
		_ = s.auditor.Log(ctx, audit.Event{
			Action:         "create",
			Resource:       "workflow_instance",
			ResourceID:     inst.ID,
			UserID:         userID,
			OrganizationID: orgID,
			Category:       audit.CategoryWorkflow,
			Metadata:       map[string]any{"workflow_id": def.ID, "trigger_type": triggerType},
		})
	}

	return inst, nil
}

// ProcessWorkflowInstance advances a running instance until a step suspends,
// a step reports a recoverable failure, the instance reaches a terminal
// node, or the per-invocation step bound is exceeded. Instances in any
// status other than running are returned unchanged.
func (s *Service) ProcessWorkflowInstance(ctx context.Context, instanceID string) (*store.Instance, error) {
	inst, err := s.findInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != schema.InstanceStatusRunning {
		return inst, nil
	}

	ctx = logging.WithInstanceID(ctx, inst.ID)

	def, err := s.loadDefinition(ctx, inst.WorkflowID, inst.OrganizationID)
	if err != nil {
		return nil, err
	}

	// Output of the most recent completed step, visible to the next step's
	// interpolation scope. Never persisted.
	var stepData map[string]any

	for steps := 0; steps < s.config.MaxStepsPerRun; steps++ {
		node := def.Node(inst.CurrentStepID)
		if node == nil {
			failErr := schema.NewErrorf(schema.ErrCodeValidation,
				"current step %q not found in workflow %s", inst.CurrentStepID, def.ID)
			return s.failInstance(ctx, inst, failErr)
		}

		stepCtx := logging.WithStepID(ctx, node.ID)

		processor, err := s.resolver.Resolve(node.Type)
		if err != nil {
			return s.failInstance(ctx, inst, err)
		}

		result, err := processor.Process(stepCtx, &Input{
			Instance: inst,
			Node:     node,
			Scope:    s.buildScope(inst, stepData),
		})
		if err != nil {
			s.logger.ErrorContext(stepCtx, "step processing failed", "error", err)
			return s.failInstance(ctx, inst, fmt.Errorf("process workflow instance: %w", err))
		}

		if !result.Completed {
			if result.Err != "" {
				// Recoverable failure: the instance stays parked at this
				// step and a later invocation retries it.
				s.logger.WarnContext(stepCtx, "step did not complete", "reason", result.Err)
			} else {
				s.logger.InfoContext(stepCtx, "step suspended, awaiting external completion")
			}
			return inst, nil
		}

		stepData = result.Data

		next := result.NextStepID
		if next == "" && node.Type != schema.StepTypeEnd {
			if conns := node.Connections(); len(conns) > 0 {
				next = conns[0]
			}
		}

		if next == "" {
			return s.completeInstance(ctx, inst)
		}

		if err := s.advanceInstance(ctx, inst, next); err != nil {
			return nil, err
		}
	}

	stalled := schema.NewErrorf(schema.ErrCodeStalled,
		"instance exceeded %d steps in one run at step %s",
		s.config.MaxStepsPerRun, inst.CurrentStepID).WithStep(inst.CurrentStepID)
	return s.failInstance(ctx, inst, stalled)
}

// PerformWorkflowAction applies an external lifecycle action (pause, resume,
// cancel) to an instance. Resuming does not advance the instance; callers
// invoke ProcessWorkflowInstance separately when they want it to move.
func (s *Service) PerformWorkflowAction(ctx context.Context, orgID, userID, instanceID string, req *schema.ActionRequest) (*store.Instance, error) {
	inst, err := s.loadInstance(ctx, instanceID, orgID)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithInstanceID(ctx, inst.ID)
	prev := inst.Status

	newStatus, err := s.fsm.TransitionForAction(ctx, inst.ID, prev, req.Action)
	if err != nil {
		return nil, err
	}

	update := store.InstanceUpdate{Status: &newStatus}
	if newStatus.Terminal() {
		now := time.Now().UTC()
		update.CompletedAt = &now
	}
	if err := s.store.UpdateInstance(ctx, inst.ID, inst.Version, update); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "workflow action applied",
		"action", string(req.Action), "from", string(prev), "to", string(newStatus))

	if s.auditor != nil {
		metadata := map[string]any{
			"action":          string(req.Action),
			"previous_status": string(prev),
			"new_status":      string(newStatus),
		}
		if req.Reason != "" {
			metadata["reason"] = req.Reason
		}
		_ = s.auditor.Log(ctx, audit.Event{
			Action:         string(req.Action),
			Resource:       "workflow_instance",
			ResourceID:     inst.ID,
			UserID:         userID,
			OrganizationID: orgID,
			Category:       audit.CategoryWorkflow,
			Severity:       transitionSeverity(newStatus),
			Metadata:       metadata,
		})
	}

	return s.findInstance(ctx, inst.ID)
}

// GetWorkflowInstance returns an instance scoped to the organization.
func (s *Service) GetWorkflowInstance(ctx context.Context, orgID, instanceID string) (*store.Instance, error) {
	return s.loadInstance(ctx, instanceID, orgID)
}

// GetWorkflowInstances returns one page of instances matching the query.
func (s *Service) GetWorkflowInstances(ctx context.Context, orgID string, query *schema.InstanceQuery) (*InstancePage, error) {
	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 20
	}

	filter := store.InstanceFilter{
		WorkflowID:     query.WorkflowID,
		OrganizationID: orgID,
		Status:         query.Status,
		Priority:       query.Priority,
		TriggeredBy:    query.TriggeredBy,
		Limit:          limit,
		Offset:         (page - 1) * limit,
	}

	instances, err := s.store.ListInstances(ctx, filter)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list workflow instances").WithCause(err)
	}
	total, err := s.store.CountInstances(ctx, filter)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "count workflow instances").WithCause(err)
	}

	return &InstancePage{
		Instances: instances,
		Total:     total,
		Page:      page,
		Limit:     limit,
	}, nil
}

// UpdateWorkflowInstance applies a partial update to an instance. Status
// changes go through the transition table; a patch to a terminal status
// stamps the completion time.
func (s *Service) UpdateWorkflowInstance(ctx context.Context, orgID, instanceID string, patch *schema.InstancePatch) (*store.Instance, error) {
	inst, err := s.loadInstance(ctx, instanceID, orgID)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithInstanceID(ctx, inst.ID)

	update := store.InstanceUpdate{
		Data:        patch.Data,
		Variables:   patch.Variables,
		Context:     patch.Context,
		Priority:    patch.Priority,
		SLADeadline: patch.SLADeadline,
	}

	if patch.Status != nil && *patch.Status != inst.Status {
		if err := s.fsm.Transition(ctx, inst.ID, inst.Status, *patch.Status); err != nil {
			return nil, err
		}
		update.Status = patch.Status
		if patch.Status.Terminal() {
			now := time.Now().UTC()
			update.CompletedAt = &now
			if *patch.Status == schema.InstanceStatusCompleted {
				empty := ""
				update.CurrentStepID = &empty
			}
		}
	}

	if err := s.store.UpdateInstance(ctx, inst.ID, inst.Version, update); err != nil {
		return nil, err
	}

	return s.findInstance(ctx, inst.ID)
}

// --- Internals ---

// advanceInstance moves the cursor to the next step and bumps the local
// version to match the store's increment.
func (s *Service) advanceInstance(ctx context.Context, inst *store.Instance, nextStepID string) error {
	if err := s.store.UpdateInstance(ctx, inst.ID, inst.Version, store.InstanceUpdate{
		CurrentStepID: &nextStepID,
	}); err != nil {
		return err
	}
	inst.CurrentStepID = nextStepID
	inst.Version++
	return nil
}

// completeInstance marks the instance completed and clears its cursor.
func (s *Service) completeInstance(ctx context.Context, inst *store.Instance) (*store.Instance, error) {
	if err := s.fsm.Transition(ctx, inst.ID, inst.Status, schema.InstanceStatusCompleted); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	completed := schema.InstanceStatusCompleted
	empty := ""
	if err := s.store.UpdateInstance(ctx, inst.ID, inst.Version, store.InstanceUpdate{
		Status:        &completed,
		CurrentStepID: &empty,
		CompletedAt:   &now,
	}); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "workflow instance completed", "workflow_id", inst.WorkflowID)
	return s.findInstance(ctx, inst.ID)
}

// failInstance marks the instance failed. The cursor is retained so the
// failing step is visible post-mortem. The original error is returned to
// the caller alongside the refreshed instance.
func (s *Service) failInstance(ctx context.Context, inst *store.Instance, cause error) (*store.Instance, error) {
	if err := s.fsm.Transition(ctx, inst.ID, inst.Status, schema.InstanceStatusFailed); err != nil {
		s.logger.ErrorContext(ctx, "failed-state transition rejected", "error", err)
	}

	now := time.Now().UTC()
	failed := schema.InstanceStatusFailed
	if err := s.store.UpdateInstance(ctx, inst.ID, inst.Version, store.InstanceUpdate{
		Status:      &failed,
		CompletedAt: &now,
	}); err != nil {
		s.logger.ErrorContext(ctx, "persist failed status", "error", err)
	}

	s.logger.ErrorContext(ctx, "workflow instance failed",
		"workflow_id", inst.WorkflowID, "step_id", inst.CurrentStepID, "error", cause)

	refreshed, findErr := s.findInstance(ctx, inst.ID)
	if findErr != nil {
		refreshed = inst
	}
	return refreshed, cause
}

// buildScope assembles the interpolation and expression scope for one step.
func (s *Service) buildScope(inst *store.Instance, stepData map[string]any) *expressions.Scope {
	return &expressions.Scope{
		Data:      inst.Data,
		Variables: inst.Variables,
		Context:   inst.Context,
		Instance: map[string]any{
			"id":          inst.ID,
			"workflow_id": inst.WorkflowID,
			"status":      string(inst.Status),
			"priority":    inst.Priority,
			"trigger":     inst.TriggerType,
		},
		Step: stepData,
	}
}

// loadDefinition fetches a definition through the read-through cache.
func (s *Service) loadDefinition(ctx context.Context, workflowID, orgID string) (*schema.WorkflowDefinition, error) {
	key := definitionCacheKey(workflowID, orgID)
	if cached, ok := s.defCache.Get(key); ok {
		return cached.(*schema.WorkflowDefinition), nil
	}
	def, err := s.store.FindWorkflowDefinition(ctx, workflowID, orgID)
	if err != nil {
		return nil, err
	}
	s.defCache.Set(key, def, gocache.DefaultExpiration)
	return def, nil
}

func definitionCacheKey(workflowID, orgID string) string {
	return orgID + "/" + workflowID
}

// findInstance fetches an instance without organization scoping, for
// engine-internal reloads.
func (s *Service) findInstance(ctx context.Context, instanceID string) (*store.Instance, error) {
	return s.store.FindInstance(ctx, instanceID)
}

// loadInstance fetches an instance scoped to the organization. A mismatch
// is reported as not-found rather than as a permission failure.
func (s *Service) loadInstance(ctx context.Context, instanceID, orgID string) (*store.Instance, error) {
	inst, err := s.store.FindInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if orgID != "" && inst.OrganizationID != "" && inst.OrganizationID != orgID {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow instance not found: %s", instanceID)
	}
	return inst, nil
}
