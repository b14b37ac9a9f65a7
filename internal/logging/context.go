package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	workflowNameKey ctxKey = iota
	executionIDKey
	triggerKey
)

// WithWorkflowName returns a context with the workflow name set.
func WithWorkflowName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, workflowNameKey, name)
}

// WithExecutionID returns a context with the execution ID set.
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey, id)
}

// WithTrigger returns a context with the trigger type set.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey, trigger)
}

// WorkflowName extracts the workflow name from the context, or "" if absent.
func WorkflowName(ctx context.Context) string {
	v, _ := ctx.Value(workflowNameKey).(string)
	return v
}

// ExecutionID extracts the execution ID from the context, or "" if absent.
func ExecutionID(ctx context.Context) string {
	v, _ := ctx.Value(executionIDKey).(string)
	return v
}

// Trigger extracts the trigger type from the context, or "" if absent.
func Trigger(ctx context.Context) string {
	v, _ := ctx.Value(triggerKey).(string)
	return v
}

// WithExecution sets all three correlation values on the context at once.
func WithExecution(ctx context.Context, workflowName, executionID, trigger string) context.Context {
	ctx = WithWorkflowName(ctx, workflowName)
	ctx = WithExecutionID(ctx, executionID)
	ctx = WithTrigger(ctx, trigger)
	return ctx
}

// LogWith returns a logger enriched with correlation values from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if name := WorkflowName(ctx); name != "" {
		logger = logger.With(slog.String("workflow_name", name))
	}
	if id := ExecutionID(ctx); id != "" {
		logger = logger.With(slog.String("execution_id", id))
	}
	if tr := Trigger(ctx); tr != "" {
		logger = logger.With(slog.String("trigger", tr))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation values from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and the values appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := WorkflowName(ctx); v != "" {
		r.AddAttrs(slog.String("workflow_name", v))
	}
	if v := ExecutionID(ctx); v != "" {
		r.AddAttrs(slog.String("execution_id", v))
	}
	if v := Trigger(ctx); v != "" {
		r.AddAttrs(slog.String("trigger", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
