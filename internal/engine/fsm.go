package engine

import (
	"context"
	"sync"

	"github.com/procflow/procflow/internal/audit"
	"github.com/procflow/procflow/pkg/schema"
)

// TransitionHook is called before or after an instance status transition.
type TransitionHook func(from, to schema.InstanceStatus) error

type hookKey struct {
	from, to schema.InstanceStatus
}

// LifecycleFSM validates instance status transitions against the transition
// table and records each one in the audit log. The caller persists the new
// status; the FSM only decides whether the move is legal.
type LifecycleFSM struct {
	mu      sync.Mutex
	auditor audit.Service
	before  map[hookKey][]TransitionHook
	after   map[hookKey][]TransitionHook
}

// NewLifecycleFSM creates an FSM that records transitions via the auditor.
func NewLifecycleFSM(auditor audit.Service) *LifecycleFSM {
	return &LifecycleFSM{
		auditor: auditor,
		before:  make(map[hookKey][]TransitionHook),
		after:   make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition.
func (f *LifecycleFSM) OnBefore(from, to schema.InstanceStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition.
func (f *LifecycleFSM) OnAfter(from, to schema.InstanceStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and records one instance status transition.
func (f *LifecycleFSM) Transition(ctx context.Context, instanceID string, from, to schema.InstanceStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !isValidInstanceTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid instance transition: %s -> %s", from, to).
			WithDetails(map[string]any{"instance_id": instanceID, "from": string(from), "to": string(to)})
	}

	key := hookKey{from, to}

	for _, hook := range f.before[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	if f.auditor != nil {
		event := audit.Event{
			Action:     "status_transition",
			Resource:   "workflow_instance",
			ResourceID: instanceID,
			Category:   audit.CategoryWorkflow,
			Severity:   transitionSeverity(to),
			Metadata:   map[string]any{"from": string(from), "to": string(to)},
		}
		if err := f.auditor.Log(ctx, event); err != nil {
			return schema.NewError(schema.ErrCodeStore, "record instance transition").WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	return nil
}

// TransitionForAction resolves the target status for an external lifecycle
// action against the instance's current status, validating the combination.
func (f *LifecycleFSM) TransitionForAction(ctx context.Context, instanceID string, from schema.InstanceStatus, action schema.InstanceAction) (schema.InstanceStatus, error) {
	to, ok := actionTargets[action]
	if !ok {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "unknown instance action %q", action).
			WithDetails(map[string]any{"instance_id": instanceID, "action": string(action)})
	}
	if err := f.Transition(ctx, instanceID, from, to); err != nil {
		return "", err
	}
	return to, nil
}

func isValidInstanceTransition(from, to schema.InstanceStatus) bool {
	allowed, ok := ValidInstanceTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

func transitionSeverity(to schema.InstanceStatus) string {
	switch to {
	case schema.InstanceStatusFailed:
		return audit.SeverityError
	case schema.InstanceStatusCancelled:
		return audit.SeverityWarning
	default:
		return audit.SeverityInfo
	}
}

// ValidInstanceTransitions defines the allowed instance status transitions.
// Terminal statuses admit none.
var ValidInstanceTransitions = map[schema.InstanceStatus][]schema.InstanceStatus{
	schema.InstanceStatusRunning:   {schema.InstanceStatusPaused, schema.InstanceStatusCompleted, schema.InstanceStatusFailed, schema.InstanceStatusCancelled},
	schema.InstanceStatusPaused:    {schema.InstanceStatusRunning, schema.InstanceStatusCancelled, schema.InstanceStatusFailed},
	schema.InstanceStatusCompleted: {},
	schema.InstanceStatusFailed:    {},
	schema.InstanceStatusCancelled: {},
}

// actionTargets maps an external lifecycle action to its target status.
// Whether the move is legal from the instance's current status is decided
// by the transition table.
var actionTargets = map[schema.InstanceAction]schema.InstanceStatus{
	schema.ActionPause:  schema.InstanceStatusPaused,
	schema.ActionResume: schema.InstanceStatusRunning,
	schema.ActionCancel: schema.InstanceStatusCancelled,
}
