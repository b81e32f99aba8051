package logging

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// correlation carries the IDs that tie a log record to the workflow
// entity being worked on. Stored by value; each With* call copies it.
type correlation struct {
	InstanceID string
	StepID     string
	ActorID    string
}

func fromContext(ctx context.Context) correlation {
	c, _ := ctx.Value(ctxKey{}).(correlation)
	return c
}

// WithInstanceID returns a context with the workflow instance ID set.
func WithInstanceID(ctx context.Context, id string) context.Context {
	c := fromContext(ctx)
	c.InstanceID = id
	return context.WithValue(ctx, ctxKey{}, c)
}

// WithStepID returns a context with the step ID set.
func WithStepID(ctx context.Context, id string) context.Context {
	c := fromContext(ctx)
	c.StepID = id
	return context.WithValue(ctx, ctxKey{}, c)
}

// WithActorID returns a context with the acting user's ID set.
func WithActorID(ctx context.Context, id string) context.Context {
	c := fromContext(ctx)
	c.ActorID = id
	return context.WithValue(ctx, ctxKey{}, c)
}

// InstanceID extracts the instance ID from the context, or "" if absent.
func InstanceID(ctx context.Context) string { return fromContext(ctx).InstanceID }

// StepID extracts the step ID from the context, or "" if absent.
func StepID(ctx context.Context) string { return fromContext(ctx).StepID }

// ActorID extracts the actor ID from the context, or "" if absent.
func ActorID(ctx context.Context) string { return fromContext(ctx).ActorID }

// CorrelationHandler wraps an slog.Handler so that records logged through
// the ctx-aware logger methods (InfoContext and friends) automatically
// carry instance_id, step_id, and actor_id attributes when set.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	c := fromContext(ctx)
	if c.InstanceID != "" {
		r.AddAttrs(slog.String("instance_id", c.InstanceID))
	}
	if c.StepID != "" {
		r.AddAttrs(slog.String("step_id", c.StepID))
	}
	if c.ActorID != "" {
		r.AddAttrs(slog.String("actor_id", c.ActorID))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
