package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflows
	CreateWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	GetWorkflowByName(ctx context.Context, name string) (*Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error)

	// Tools
	CreateTool(ctx context.Context, tool *Tool) error
	GetTool(ctx context.Context, id string) (*Tool, error)
	GetToolByName(ctx context.Context, name string) (*Tool, error)
	UpdateTool(ctx context.Context, id string, update ToolUpdate) error
	ListTools(ctx context.Context, filter ToolFilter) ([]*Tool, error)

	// Tool profiles (database tier)
	CreateToolProfile(ctx context.Context, profile *ToolProfile) error
	ListToolProfiles(ctx context.Context, toolID string) ([]*ToolProfile, error)
	UpdateToolProfile(ctx context.Context, id string, update ToolProfileUpdate) error
	DeleteToolProfile(ctx context.Context, id string) error

	// Scheduled jobs
	CreateScheduledJob(ctx context.Context, job *ScheduledJob) error
	GetScheduledJobByWorkflow(ctx context.Context, workflowID string) (*ScheduledJob, error)
	UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error
	ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error)

	// Executions (append-only history)
	CreateExecution(ctx context.Context, exec *Execution) error
	FinalizeExecution(ctx context.Context, id string, final ExecutionFinal) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error)
	ExecutionStats(ctx context.Context, workflowID string) (*ExecutionStats, error)

	// Logs (append-only)
	AppendLog(ctx context.Context, entry *LogEntry) error
	ListLogs(ctx context.Context, filter LogFilter) ([]*LogEntry, error)

	// Settings
	SetSetting(ctx context.Context, key, value, category string) error
	GetSetting(ctx context.Context, key string) (*Setting, error)
	ListSettings(ctx context.Context, category string) ([]*Setting, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
