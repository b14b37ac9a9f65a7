package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/flowdeck/flowdeck/internal/catalog"
	"github.com/flowdeck/flowdeck/internal/logging"
	"github.com/flowdeck/flowdeck/internal/profiles"
	"github.com/flowdeck/flowdeck/internal/store"
	"github.com/flowdeck/flowdeck/pkg/schema"
)

// DefaultProfile is the profile bound to a required tool when the workflow
// manifest does not name one.
const DefaultProfile = "DEFAULT"

// Catalog is the subset of the catalog index the executor needs.
type Catalog interface {
	Workflow(name string) (*catalog.WorkflowEntry, bool)
	Tool(name string) (*catalog.ToolEntry, bool)
}

// ProfileSource resolves one named profile for a tool.
type ProfileSource interface {
	Get(ctx context.Context, toolName, profileName string) (*profiles.Profile, error)
}

// Executor runs workflow entry points. It is the single boundary that
// converts plugin errors and panics into structured Results: callers always
// receive a Result, never an error or a propagated panic.
type Executor struct {
	store    store.Store
	catalog  Catalog
	profiles ProfileSource
	rules    *RuleEngine
	hub      *LogHub
	logger   *slog.Logger
}

// NewExecutor creates an Executor. The hub receives live log lines per
// execution and may be shared with streaming consumers.
func NewExecutor(st store.Store, cat Catalog, prof ProfileSource, hub *LogHub, logger *slog.Logger) *Executor {
	return &Executor{
		store:    st,
		catalog:  cat,
		profiles: prof,
		rules:    NewRuleEngine(),
		hub:      hub,
		logger:   logger,
	}
}

// Hub returns the executor's log hub for streaming subscribers.
func (e *Executor) Hub() *LogHub { return e.hub }

// Execute runs a workflow by name. An unknown or inactive workflow is a
// normal outcome reported as an error Result.
func (e *Executor) Execute(ctx context.Context, name string, input map[string]any, trigger string) *schema.Result {
	return e.execute(ctx, name, input, trigger, schema.NewID(schema.PrefixExecution))
}

// ExecuteStreaming runs a workflow under a caller-supplied execution ID so
// the caller can subscribe to the log hub before or during the run.
func (e *Executor) ExecuteStreaming(ctx context.Context, name string, input map[string]any, trigger, executionID string) *schema.Result {
	return e.execute(ctx, name, input, trigger, executionID)
}

// ProcessWebhook runs a workflow for an incoming webhook payload. Workflows
// that do not declare the webhook trigger are rejected.
func (e *Executor) ProcessWebhook(ctx context.Context, name string, payload map[string]any) *schema.Result {
	wf, err := e.store.GetWorkflowByName(ctx, name)
	if err != nil {
		return schema.Errorf("workflow %q not found", name)
	}
	if !slices.Contains(wf.Triggers, schema.TriggerWebhook) {
		return schema.Errorf("workflow %q does not accept webhook triggers", name)
	}
	return e.Execute(ctx, name, payload, schema.TriggerWebhook)
}

// History lists past executions, newest first. An empty workflow name lists
// across all workflows.
func (e *Executor) History(ctx context.Context, workflowName string, limit int) ([]*store.Execution, error) {
	filter := store.ExecutionFilter{Limit: limit}
	if workflowName != "" {
		wf, err := e.store.GetWorkflowByName(ctx, workflowName)
		if err != nil {
			return nil, err
		}
		filter.WorkflowID = wf.ID
	}
	return e.store.ListExecutions(ctx, filter)
}

// Stats aggregates execution counts and durations. An empty workflow name
// aggregates across all workflows.
func (e *Executor) Stats(ctx context.Context, workflowName string) (*store.ExecutionStats, error) {
	workflowID := ""
	if workflowName != "" {
		wf, err := e.store.GetWorkflowByName(ctx, workflowName)
		if err != nil {
			return nil, err
		}
		workflowID = wf.ID
	}
	return e.store.ExecutionStats(ctx, workflowID)
}

func (e *Executor) execute(ctx context.Context, name string, input map[string]any, trigger, executionID string) *schema.Result {
	wf, err := e.store.GetWorkflowByName(ctx, name)
	if err != nil {
		return schema.Errorf("workflow %q not found", name)
	}
	if !wf.Active {
		return schema.Errorf("workflow %q is not active", name)
	}
	entry, ok := e.catalog.Workflow(name)
	if !ok {
		return schema.Errorf("workflow %q has no loaded definition", name)
	}

	ctx = logging.WithExecution(ctx, name, executionID, trigger)
	log := e.logger

	inputRaw, err := json.Marshal(input)
	if err != nil {
		return schema.Errorf("workflow input is not serializable: %s", err)
	}
	start := time.Now().UTC()
	exec := &store.Execution{
		ID:          executionID,
		WorkflowID:  wf.ID,
		TriggerType: trigger,
		StartTime:   start,
		Status:      schema.StatusRunning,
		Input:       inputRaw,
	}
	if err := e.store.CreateExecution(ctx, exec); err != nil {
		log.ErrorContext(ctx, "failed to record execution", "error", err)
		return schema.Errorf("failed to record execution: %s", err)
	}

	log.InfoContext(ctx, "execution started")
	e.hub.Append(executionID, LogLine{Level: "INFO", Message: "execution started", Timestamp: start})

	result := e.run(ctx, wf, entry, input)

	end := time.Now().UTC()
	resultRaw, merr := json.Marshal(result)
	if merr != nil {
		resultRaw = nil
	}
	final := store.ExecutionFinal{
		EndTime:    end,
		Status:     result.Status,
		DurationMs: end.Sub(start).Milliseconds(),
		Result:     resultRaw,
		Error:      result.Error,
	}
	if err := e.store.FinalizeExecution(ctx, executionID, final); err != nil {
		log.ErrorContext(ctx, "failed to finalize execution", "error", err)
	}

	summary := fmt.Sprintf("execution finished with status %s", result.Status)
	level := "INFO"
	if !result.OK() {
		summary = fmt.Sprintf("execution failed: %s", result.Error)
		level = "ERROR"
	}
	logCtx, _ := json.Marshal(map[string]any{"trigger": trigger, "status": result.Status})
	if err := e.store.AppendLog(ctx, &store.LogEntry{
		EntityType:  "workflow",
		EntityID:    wf.ID,
		Level:       level,
		Message:     summary,
		Timestamp:   end,
		ExecutionID: executionID,
		Context:     logCtx,
	}); err != nil {
		log.ErrorContext(ctx, "failed to append execution log", "error", err)
	}

	e.hub.Append(executionID, LogLine{Level: level, Message: summary, Timestamp: end})
	e.hub.Complete(executionID)

	if result.OK() {
		log.InfoContext(ctx, "execution finished", "status", result.Status, "duration_ms", final.DurationMs)
	} else {
		log.ErrorContext(ctx, "execution failed", "status", result.Status, "error", result.Error)
	}
	return result
}

// run validates input, resolves tools, and invokes the entry point. Panics
// are converted into error Results here so finalization above always runs
// exactly once.
func (e *Executor) run(ctx context.Context, wf *store.Workflow, entry *catalog.WorkflowEntry, input map[string]any) (res *schema.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "workflow panicked", "panic", r)
			res = schema.Errorf("workflow panicked: %v", r)
		}
	}()

	if d, ok := entry.Plugin.(catalog.InputDescriptor); ok {
		for _, key := range d.RequiredInputs() {
			if _, present := input[key]; !present {
				return schema.Errorf("input validation failed: missing required input %q", key)
			}
		}
	}
	if v, ok := entry.Plugin.(catalog.InputValidator); ok {
		if err := v.ValidateInput(input); err != nil {
			return schema.Errorf("input validation failed: %s", err)
		}
	}
	if err := e.rules.Check(entry.Manifest.InputRules, input); err != nil {
		return schema.Errorf("input validation failed: %s", err)
	}

	tools, errResult := e.resolveTools(ctx, wf)
	if errResult != nil {
		return errResult
	}

	result, err := entry.Plugin.Execute(ctx, input, tools)
	if err != nil {
		return schema.Errorf("workflow execution failed: %s", err)
	}
	if result == nil {
		return schema.Errorf("workflow %q returned no result", wf.Name)
	}
	if result.Status == "" {
		return schema.Errorf("workflow %q returned a result without status", wf.Name)
	}
	return result
}

// resolveTools builds one tool instance per required tool using its bound
// profile. Configuration problems are validation failures, not faults.
func (e *Executor) resolveTools(ctx context.Context, wf *store.Workflow) (map[string]catalog.Tool, *schema.Result) {
	tools := make(map[string]catalog.Tool, len(wf.ToolsRequired))

	for _, toolName := range wf.ToolsRequired {
		entry, ok := e.catalog.Tool(toolName)
		if !ok {
			return nil, schema.Errorf("required tool %q has no loaded definition", toolName)
		}
		row, err := e.store.GetToolByName(ctx, toolName)
		if err != nil || !row.Active {
			return nil, schema.Errorf("required tool %q is not active", toolName)
		}

		profileName := wf.ToolProfiles[toolName]
		if profileName == "" {
			profileName = DefaultProfile
		}

		config := map[string]string{}
		profile, err := e.profiles.Get(ctx, toolName, profileName)
		switch {
		case err == nil:
			config = profile.Config
		case schema.IsCode(err, schema.ErrCodeNotFound):
			// No stored profile. Tools without required params run with
			// an empty config; the check below catches the rest.
		default:
			return nil, schema.Errorf("failed to resolve profile %q for tool %q: %s", profileName, toolName, err)
		}

		for _, param := range entry.Manifest.RequiredParams {
			if config[param] == "" {
				return nil, schema.Errorf("tool %q profile %q is missing required parameter %q", toolName, profileName, param)
			}
		}

		instance, err := entry.Plugin.New(config)
		if err != nil {
			return nil, schema.Errorf("failed to build tool %q: %s", toolName, err)
		}
		tools[toolName] = instance
	}
	return tools, nil
}
