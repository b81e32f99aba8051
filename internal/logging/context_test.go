package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, InstanceID(ctx))
	assert.Empty(t, StepID(ctx))
	assert.Empty(t, ActorID(ctx))

	ctx = WithInstanceID(ctx, "inst-1")
	ctx = WithStepID(ctx, "step-a")
	ctx = WithActorID(ctx, "user-7")

	assert.Equal(t, "inst-1", InstanceID(ctx))
	assert.Equal(t, "step-a", StepID(ctx))
	assert.Equal(t, "user-7", ActorID(ctx))
}

func logLine(t *testing.T, ctx context.Context, fn func(logger *slog.Logger)) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))
	fn(logger)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestCorrelationHandlerInjectsIDs(t *testing.T) {
	ctx := WithActorID(WithStepID(WithInstanceID(context.Background(), "inst-1"), "step-a"), "user-7")
	entry := logLine(t, ctx, func(logger *slog.Logger) {
		logger.InfoContext(ctx, "processing step", "attempt", 1)
	})

	assert.Equal(t, "processing step", entry["msg"])
	assert.Equal(t, "inst-1", entry["instance_id"])
	assert.Equal(t, "step-a", entry["step_id"])
	assert.Equal(t, "user-7", entry["actor_id"])
	assert.EqualValues(t, 1, entry["attempt"])
}

func TestCorrelationHandlerSkipsAbsentIDs(t *testing.T) {
	ctx := WithInstanceID(context.Background(), "inst-1")
	entry := logLine(t, ctx, func(logger *slog.Logger) {
		logger.InfoContext(ctx, "created")
	})

	assert.Equal(t, "inst-1", entry["instance_id"])
	assert.NotContains(t, entry, "step_id")
	assert.NotContains(t, entry, "actor_id")
}

func TestCorrelationHandlerWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))
	logger := base.With("component", "engine").WithGroup("step")

	ctx := WithInstanceID(context.Background(), "inst-2")
	logger.InfoContext(ctx, "done", "id", "n1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "engine", entry["component"])
	group, ok := entry["step"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "n1", group["id"])
	assert.Equal(t, "inst-2", group["instance_id"])
}
