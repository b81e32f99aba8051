package notify

import (
	"context"
	"log/slog"
)

// Payload is one notification to deliver.
type Payload struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Type     string   `json:"type,omitempty"`
	Priority string   `json:"priority,omitempty"`
	Channels []string `json:"channels,omitempty"`
}

// Service delivers notifications to users. Delivery is best-effort from the
// engine's point of view: the notification processor never stalls a workflow
// on a delivery error.
type Service interface {
	Notify(ctx context.Context, targetUserID string, payload Payload) error
}

// LogService writes notifications to the structured log. It stands in for a
// real delivery transport (email, push, chat) which is outside the engine.
type LogService struct {
	logger *slog.Logger
}

// NewLogService creates a log-backed notification service.
func NewLogService(logger *slog.Logger) *LogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogService{logger: logger}
}

// Notify records the notification in the log.
func (s *LogService) Notify(ctx context.Context, targetUserID string, payload Payload) error {
	s.logger.InfoContext(ctx, "notification dispatched",
		"target_user_id", targetUserID,
		"title", payload.Title,
		"type", payload.Type,
		"priority", payload.Priority,
		"channels", payload.Channels,
	)
	return nil
}

var _ Service = (*LogService)(nil)
