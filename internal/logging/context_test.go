package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	// Initially empty.
	assert.Equal(t, "", WorkflowName(ctx))
	assert.Equal(t, "", ExecutionID(ctx))
	assert.Equal(t, "", Trigger(ctx))

	// Set values.
	ctx = WithWorkflowName(ctx, "daily_report")
	ctx = WithExecutionID(ctx, "WE_12345678")
	ctx = WithTrigger(ctx, "schedule")

	// Round-trip.
	assert.Equal(t, "daily_report", WorkflowName(ctx))
	assert.Equal(t, "WE_12345678", ExecutionID(ctx))
	assert.Equal(t, "schedule", Trigger(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := context.Background()
	ctx = WithWorkflowName(ctx, "daily_report")
	ctx = WithExecutionID(ctx, "WE_abc")
	ctx = WithTrigger(ctx, "manual")

	enriched := LogWith(ctx, logger)
	enriched.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "workflow_name=daily_report")
	assert.Contains(t, output, "execution_id=WE_abc")
	assert.Contains(t, output, "trigger=manual")
	assert.Contains(t, output, "test message")
}

func TestLogWithMissingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Only set the workflow name. Execution and trigger should not appear.
	ctx := WithWorkflowName(context.Background(), "only_name")

	enriched := LogWith(ctx, logger)
	enriched.Info("partial context")

	output := buf.String()
	assert.Contains(t, output, "workflow_name=only_name")
	assert.NotContains(t, output, "execution_id")
	assert.NotContains(t, output, "trigger")
}

func TestLogWithEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	enriched := LogWith(context.Background(), logger)
	enriched.Info("no context")

	output := buf.String()
	assert.NotContains(t, output, "workflow_name")
	assert.NotContains(t, output, "execution_id")
	assert.NotContains(t, output, "trigger")
	assert.Contains(t, output, "no context")
}

func TestWithExecution(t *testing.T) {
	ctx := WithExecution(context.Background(), "wf", "WE_1", "api")
	assert.Equal(t, "wf", WorkflowName(ctx))
	assert.Equal(t, "WE_1", ExecutionID(ctx))
	assert.Equal(t, "api", Trigger(ctx))
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	ctx := WithExecution(context.Background(), "auto_wf", "WE_auto", "webhook")
	logger.InfoContext(ctx, "auto inject")

	output := buf.String()
	assert.Contains(t, output, `"workflow_name":"auto_wf"`)
	assert.Contains(t, output, `"execution_id":"WE_auto"`)
	assert.Contains(t, output, `"trigger":"webhook"`)
	assert.Contains(t, output, "auto inject")
}

func TestCorrelationHandlerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	logger.InfoContext(context.Background(), "bare log")

	output := buf.String()
	assert.NotContains(t, output, "workflow_name")
	assert.NotContains(t, output, "execution_id")
	assert.NotContains(t, output, "trigger")
	assert.Contains(t, output, "bare log")
}

func TestCorrelationHandlerPartialContext(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	ctx := WithWorkflowName(context.Background(), "only_name")
	logger.InfoContext(ctx, "partial")

	output := buf.String()
	assert.Contains(t, output, `"workflow_name":"only_name"`)
	assert.NotContains(t, output, "execution_id")
	assert.NotContains(t, output, "trigger")
}

func TestCorrelationHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	handler := NewCorrelationHandler(inner)
	logger := slog.New(handler.WithAttrs([]slog.Attr{slog.String("component", "engine")}))

	ctx := WithWorkflowName(context.Background(), "attr_wf")
	logger.InfoContext(ctx, "with attrs")

	output := buf.String()
	assert.Contains(t, output, `"workflow_name":"attr_wf"`)
	assert.Contains(t, output, `"component":"engine"`)
}

func TestCorrelationHandlerWithGroup(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	handler := NewCorrelationHandler(inner)
	logger := slog.New(handler.WithGroup("engine"))

	ctx := WithWorkflowName(context.Background(), "grp_wf")
	logger.InfoContext(ctx, "grouped", "key", "val")

	output := buf.String()
	assert.Contains(t, output, "grp_wf")
	assert.Contains(t, output, "grouped")
}
