package store

import (
	"encoding/json"
	"time"
)

// Workflow is the persisted catalog record of a workflow definition.
// Name is the stable filesystem-derived key; rows are soft-deactivated,
// never deleted, so execution history stays referenceable.
type Workflow struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	DisplayName   string            `json:"display_name,omitempty"`
	Description   string            `json:"description,omitempty"`
	Category      string            `json:"category,omitempty"`
	Schedule      string            `json:"schedule,omitempty"`
	Triggers      []string          `json:"triggers,omitempty"`
	ToolsRequired []string          `json:"tools_required,omitempty"`
	ToolProfiles  map[string]string `json:"tool_profiles,omitempty"`
	Author        string            `json:"author,omitempty"`
	Version       string            `json:"version"`
	Active        bool              `json:"active"`
	FilePath      string            `json:"file_path,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Tool is the persisted catalog record of a tool definition.
type Tool struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name,omitempty"`
	Description string    `json:"description,omitempty"`
	LogoPath    string    `json:"logo_path,omitempty"`
	ConfigPath  string    `json:"config_path,omitempty"`
	ReadmePath  string    `json:"readme_path,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToolProfile is a database-stored named configuration bundle for a tool.
// File-backed profiles live outside the store; the two tiers are presented
// to callers side by side, never merged.
type ToolProfile struct {
	ID          string            `json:"id"`
	ToolID      string            `json:"tool_id"`
	ProfileName string            `json:"profile_name"`
	Config      map[string]string `json:"config"`
	IsDefault   bool              `json:"is_default"`
	Active      bool              `json:"active"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ScheduledJob is the persisted cron binding for a workflow. At most one
// active job exists per workflow.
type ScheduledJob struct {
	ID             string     `json:"id"`
	WorkflowID     string     `json:"workflow_id"`
	CronExpression string     `json:"cron_expression"`
	Active         bool       `json:"active"`
	NextRun        *time.Time `json:"next_run,omitempty"`
	LastRun        *time.Time `json:"last_run,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Execution is one append-only workflow execution record. End-time, status,
// duration, result and error are written exactly once, at finalization.
type Execution struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	TriggerType string          `json:"trigger_type"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     *time.Time      `json:"end_time,omitempty"`
	DurationMs  int64           `json:"duration_ms,omitempty"`
	Status      string          `json:"status"`
	Input       json.RawMessage `json:"input_data,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// LogEntry is an append-only log row with a polymorphic entity association.
type LogEntry struct {
	ID          string          `json:"id"`
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id,omitempty"`
	Level       string          `json:"level"`
	Message     string          `json:"message"`
	Timestamp   time.Time       `json:"timestamp"`
	ExecutionID string          `json:"execution_id,omitempty"`
	Context     json.RawMessage `json:"context_data,omitempty"`
}

// Setting is a simple persisted key/value record.
type Setting struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Category  string    `json:"category,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ExecutionStats aggregates execution history for a workflow (or all
// workflows when unscoped).
type ExecutionStats struct {
	Total         int     `json:"total"`
	Success       int     `json:"success"`
	Error         int     `json:"error"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs float64 `json:"average_duration_ms"`
}

// --- Filter and update types ---

// WorkflowFilter specifies criteria for listing workflows.
type WorkflowFilter struct {
	ActiveOnly bool   `json:"active_only,omitempty"`
	Category   string `json:"category,omitempty"`
}

// WorkflowUpdate specifies mutable fields of a workflow. Nil fields are left
// untouched; reconciliation never sets Active through this path.
type WorkflowUpdate struct {
	DisplayName   *string            `json:"display_name,omitempty"`
	Description   *string            `json:"description,omitempty"`
	Category      *string            `json:"category,omitempty"`
	Schedule      *string            `json:"schedule,omitempty"`
	Triggers      *[]string          `json:"triggers,omitempty"`
	ToolsRequired *[]string          `json:"tools_required,omitempty"`
	ToolProfiles  *map[string]string `json:"tool_profiles,omitempty"`
	Author        *string            `json:"author,omitempty"`
	Version       *string            `json:"version,omitempty"`
	FilePath      *string            `json:"file_path,omitempty"`
	Active        *bool              `json:"active,omitempty"`
}

// ToolFilter specifies criteria for listing tools.
type ToolFilter struct {
	ActiveOnly bool `json:"active_only,omitempty"`
}

// ToolUpdate specifies mutable fields of a tool.
type ToolUpdate struct {
	DisplayName *string `json:"display_name,omitempty"`
	Description *string `json:"description,omitempty"`
	LogoPath    *string `json:"logo_path,omitempty"`
	ConfigPath  *string `json:"config_path,omitempty"`
	ReadmePath  *string `json:"readme_path,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// ToolProfileUpdate specifies mutable fields of a database-tier profile.
type ToolProfileUpdate struct {
	Config    *map[string]string `json:"config,omitempty"`
	IsDefault *bool              `json:"is_default,omitempty"`
	Active    *bool              `json:"active,omitempty"`
}

// ScheduledJobFilter specifies criteria for listing scheduled jobs.
type ScheduledJobFilter struct {
	ActiveOnly bool   `json:"active_only,omitempty"`
	WorkflowID string `json:"workflow_id,omitempty"`
}

// ScheduledJobUpdate specifies mutable fields of a scheduled job.
type ScheduledJobUpdate struct {
	CronExpression *string    `json:"cron_expression,omitempty"`
	Active         *bool      `json:"active,omitempty"`
	NextRun        *time.Time `json:"next_run,omitempty"`
	LastRun        *time.Time `json:"last_run,omitempty"`
}

// ExecutionFinal carries the write-once completion fields of an execution.
type ExecutionFinal struct {
	EndTime    time.Time       `json:"end_time"`
	Status     string          `json:"status"`
	DurationMs int64           `json:"duration_ms"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	WorkflowID  string `json:"workflow_id,omitempty"`
	TriggerType string `json:"trigger_type,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

// LogFilter specifies criteria for listing log entries.
type LogFilter struct {
	EntityType  string `json:"entity_type,omitempty"`
	EntityID    string `json:"entity_id,omitempty"`
	ExecutionID string `json:"execution_id,omitempty"`
	Level       string `json:"level,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}
