package engine

import (
	"context"
	"log/slog"

	"github.com/procflow/procflow/internal/expressions"
	"github.com/procflow/procflow/internal/notify"
	"github.com/procflow/procflow/pkg/schema"
)

// NotificationProcessor handles notification nodes. Delivery is
// fire-and-forget: a delivery failure is logged and recorded in the result
// data but never blocks the workflow.
type NotificationProcessor struct {
	notifier notify.Service
	interp   *expressions.Interpolator
	logger   *slog.Logger
}

// NewNotificationProcessor creates the notification-node processor.
func NewNotificationProcessor(notifier notify.Service, interp *expressions.Interpolator, logger *slog.Logger) *NotificationProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationProcessor{notifier: notifier, interp: interp, logger: logger}
}

func (p *NotificationProcessor) Type() schema.StepType { return schema.StepTypeNotification }

func (p *NotificationProcessor) Process(ctx context.Context, input *Input) (*Result, error) {
	config := input.Node.Data.Config

	title := stringParam(config, "title", input.Node.Data.Label)
	message := stringParam(config, "message", "")
	target := stringParam(config, "target_user", input.Instance.TriggeredBy)

	// Title and message may reference instance data via ${{...}}. An
	// interpolation failure degrades to the raw template: the notification
	// is best-effort end to end.
	if resolved, err := p.interp.ResolveString(title, input.Scope); err == nil {
		title = resolved
	}
	if resolved, err := p.interp.ResolveString(message, input.Scope); err == nil {
		message = resolved
	}

	payload := notify.Payload{
		Title:    title,
		Message:  message,
		Type:     stringParam(config, "type", "workflow"),
		Priority: stringParam(config, "priority", ""),
		Channels: stringSliceParam(config, "channels"),
	}

	if err := p.notifier.Notify(ctx, target, payload); err != nil {
		p.logger.WarnContext(ctx, "notification delivery failed", "error", err, "target_user_id", target)
		return &Result{
			Completed: true,
			Data:      map[string]any{"delivered": false, "delivery_error": err.Error()},
		}, nil
	}

	return &Result{Completed: true, Data: map[string]any{"delivered": true}}, nil
}

var _ Processor = (*NotificationProcessor)(nil)
