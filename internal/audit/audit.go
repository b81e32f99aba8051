package audit

import (
	"context"
	"time"

	"github.com/procflow/procflow/internal/store"
)

// Categories and severities used by the engine.
const (
	CategoryWorkflow = "workflow"

	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Event describes one auditable action.
type Event struct {
	Action         string
	Resource       string
	ResourceID     string
	UserID         string
	OrganizationID string
	Category       string
	Severity       string
	Metadata       map[string]any
}

// Service records engine actions in an append-only log.
type Service interface {
	Log(ctx context.Context, event Event) error
}

// StoreService persists audit events via the Store.
type StoreService struct {
	store store.Store
}

// NewStoreService creates a store-backed audit service.
func NewStoreService(s store.Store) *StoreService {
	return &StoreService{store: s}
}

// Log appends the event to the audit_entries table.
func (s *StoreService) Log(ctx context.Context, event Event) error {
	severity := event.Severity
	if severity == "" {
		severity = SeverityInfo
	}
	return s.store.AppendAuditEntry(ctx, &store.AuditEntry{
		Action:         event.Action,
		Resource:       event.Resource,
		ResourceID:     event.ResourceID,
		UserID:         event.UserID,
		OrganizationID: event.OrganizationID,
		Category:       event.Category,
		Severity:       severity,
		Metadata:       event.Metadata,
		Timestamp:      time.Now().UTC(),
	})
}

var _ Service = (*StoreService)(nil)
