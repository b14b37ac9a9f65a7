package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/flowdeck/flowdeck/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Workflows ---

const workflowColumns = `id, name, display_name, description, category, schedule, triggers, tools_required, tool_profiles, author, version, active, file_path, created_at`

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *Workflow) error {
	if wf.ID == "" {
		wf.ID = schema.NewID(schema.PrefixWorkflow)
	}
	triggers, err := marshalSliceOrDefault(wf.Triggers)
	if err != nil {
		return fmt.Errorf("marshal triggers: %w", err)
	}
	toolsRequired, err := marshalSliceOrDefault(wf.ToolsRequired)
	if err != nil {
		return fmt.Errorf("marshal tools_required: %w", err)
	}
	toolProfiles, err := marshalMapOrDefault(wf.ToolProfiles)
	if err != nil {
		return fmt.Errorf("marshal tool_profiles: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (`+workflowColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.Name, nullStr(wf.DisplayName), nullStr(wf.Description), nullStr(wf.Category),
		nullStr(wf.Schedule), triggers, toolsRequired, toolProfiles,
		nullStr(wf.Author), wf.Version, wf.Active, nullStr(wf.FilePath), timeOrNow(wf.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", id)
	}
	return wf, err
}

// GetWorkflowByName returns the most recent row for a name, active or not.
// Callers that require an active workflow must check the Active flag.
func (s *LibSQLStore) GetWorkflowByName(ctx context.Context, name string) (*Workflow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE name = ?
		 ORDER BY active DESC, created_at DESC LIMIT 1`, name)
	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", name)
	}
	return wf, err
}

func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error {
	var sets []string
	var args []any

	appendSet := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if update.DisplayName != nil {
		appendSet("display_name", nullStr(*update.DisplayName))
	}
	if update.Description != nil {
		appendSet("description", nullStr(*update.Description))
	}
	if update.Category != nil {
		appendSet("category", nullStr(*update.Category))
	}
	if update.Schedule != nil {
		appendSet("schedule", nullStr(*update.Schedule))
	}
	if update.Triggers != nil {
		v, err := marshalSliceOrDefault(*update.Triggers)
		if err != nil {
			return fmt.Errorf("marshal triggers: %w", err)
		}
		appendSet("triggers", v)
	}
	if update.ToolsRequired != nil {
		v, err := marshalSliceOrDefault(*update.ToolsRequired)
		if err != nil {
			return fmt.Errorf("marshal tools_required: %w", err)
		}
		appendSet("tools_required", v)
	}
	if update.ToolProfiles != nil {
		v, err := marshalMapOrDefault(*update.ToolProfiles)
		if err != nil {
			return fmt.Errorf("marshal tool_profiles: %w", err)
		}
		appendSet("tool_profiles", v)
	}
	if update.Author != nil {
		appendSet("author", nullStr(*update.Author))
	}
	if update.Version != nil {
		appendSet("version", *update.Version)
	}
	if update.FilePath != nil {
		appendSet("file_path", nullStr(*update.FilePath))
	}
	if update.Active != nil {
		appendSet("active", *update.Active)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE workflows SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error) {
	var where []string
	var args []any

	if filter.ActiveOnly {
		where = append(where, "active = 1")
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}

	query := `SELECT ` + workflowColumns + ` FROM workflows`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*Workflow, error) {
	wf := &Workflow{}
	var (
		displayName, description, category, schedule sql.NullString
		author, filePath                             sql.NullString
		triggersJSON, toolsJSON, profilesJSON        string
	)
	err := row.Scan(&wf.ID, &wf.Name, &displayName, &description, &category, &schedule,
		&triggersJSON, &toolsJSON, &profilesJSON, &author, &wf.Version, &wf.Active,
		&filePath, &wf.CreatedAt)
	if err != nil {
		return nil, err
	}
	wf.DisplayName = displayName.String
	wf.Description = description.String
	wf.Category = category.String
	wf.Schedule = schedule.String
	wf.Author = author.String
	wf.FilePath = filePath.String
	if err := json.Unmarshal([]byte(triggersJSON), &wf.Triggers); err != nil {
		return nil, fmt.Errorf("unmarshal triggers: %w", err)
	}
	if err := json.Unmarshal([]byte(toolsJSON), &wf.ToolsRequired); err != nil {
		return nil, fmt.Errorf("unmarshal tools_required: %w", err)
	}
	if err := json.Unmarshal([]byte(profilesJSON), &wf.ToolProfiles); err != nil {
		return nil, fmt.Errorf("unmarshal tool_profiles: %w", err)
	}
	return wf, nil
}

// --- Tools ---

const toolColumns = `id, name, display_name, description, logo_path, config_path, readme_path, active, created_at`

func (s *LibSQLStore) CreateTool(ctx context.Context, tool *Tool) error {
	if tool.ID == "" {
		tool.ID = schema.NewID(schema.PrefixTool)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tools (`+toolColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tool.ID, tool.Name, nullStr(tool.DisplayName), nullStr(tool.Description),
		nullStr(tool.LogoPath), nullStr(tool.ConfigPath), nullStr(tool.ReadmePath),
		tool.Active, timeOrNow(tool.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetTool(ctx context.Context, id string) (*Tool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+toolColumns+` FROM tools WHERE id = ?`, id)
	tool, err := scanTool(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("tool", id)
	}
	return tool, err
}

func (s *LibSQLStore) GetToolByName(ctx context.Context, name string) (*Tool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+toolColumns+` FROM tools WHERE name = ?
		 ORDER BY active DESC, created_at DESC LIMIT 1`, name)
	tool, err := scanTool(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("tool", name)
	}
	return tool, err
}

func (s *LibSQLStore) UpdateTool(ctx context.Context, id string, update ToolUpdate) error {
	var sets []string
	var args []any

	if update.DisplayName != nil {
		sets = append(sets, "display_name = ?")
		args = append(args, nullStr(*update.DisplayName))
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nullStr(*update.Description))
	}
	if update.LogoPath != nil {
		sets = append(sets, "logo_path = ?")
		args = append(args, nullStr(*update.LogoPath))
	}
	if update.ConfigPath != nil {
		sets = append(sets, "config_path = ?")
		args = append(args, nullStr(*update.ConfigPath))
	}
	if update.ReadmePath != nil {
		sets = append(sets, "readme_path = ?")
		args = append(args, nullStr(*update.ReadmePath))
	}
	if update.Active != nil {
		sets = append(sets, "active = ?")
		args = append(args, *update.Active)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE tools SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "tool", id)
}

func (s *LibSQLStore) ListTools(ctx context.Context, filter ToolFilter) ([]*Tool, error) {
	query := `SELECT ` + toolColumns + ` FROM tools`
	if filter.ActiveOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY name ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tools []*Tool
	for rows.Next() {
		tool, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	return tools, rows.Err()
}

func scanTool(row rowScanner) (*Tool, error) {
	t := &Tool{}
	var displayName, description, logoPath, configPath, readmePath sql.NullString
	err := row.Scan(&t.ID, &t.Name, &displayName, &description, &logoPath, &configPath,
		&readmePath, &t.Active, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.DisplayName = displayName.String
	t.Description = description.String
	t.LogoPath = logoPath.String
	t.ConfigPath = configPath.String
	t.ReadmePath = readmePath.String
	return t, nil
}

// --- Tool profiles ---

func (s *LibSQLStore) CreateToolProfile(ctx context.Context, profile *ToolProfile) error {
	if profile.ID == "" {
		profile.ID = schema.NewID(schema.PrefixToolProfile)
	}
	config, err := marshalMapOrDefault(profile.Config)
	if err != nil {
		return fmt.Errorf("marshal config_data: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tool_profiles (id, tool_id, profile_name, config_data, is_default, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		profile.ID, profile.ToolID, profile.ProfileName, config,
		profile.IsDefault, profile.Active, timeOrNow(profile.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) ListToolProfiles(ctx context.Context, toolID string) ([]*ToolProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tool_id, profile_name, config_data, is_default, active, created_at
		 FROM tool_profiles WHERE tool_id = ? AND active = 1 ORDER BY profile_name ASC`, toolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*ToolProfile
	for rows.Next() {
		p := &ToolProfile{}
		var configJSON string
		if err := rows.Scan(&p.ID, &p.ToolID, &p.ProfileName, &configJSON, &p.IsDefault, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(configJSON), &p.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config_data: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *LibSQLStore) UpdateToolProfile(ctx context.Context, id string, update ToolProfileUpdate) error {
	var sets []string
	var args []any

	if update.Config != nil {
		v, err := marshalMapOrDefault(*update.Config)
		if err != nil {
			return fmt.Errorf("marshal config_data: %w", err)
		}
		sets = append(sets, "config_data = ?")
		args = append(args, v)
	}
	if update.IsDefault != nil {
		sets = append(sets, "is_default = ?")
		args = append(args, *update.IsDefault)
	}
	if update.Active != nil {
		sets = append(sets, "active = ?")
		args = append(args, *update.Active)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE tool_profiles SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "tool_profile", id)
}

func (s *LibSQLStore) DeleteToolProfile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tool_profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "tool_profile", id)
}

// --- Scheduled jobs ---

const jobColumns = `id, workflow_id, cron_expression, active, next_run, last_run, created_at`

func (s *LibSQLStore) CreateScheduledJob(ctx context.Context, job *ScheduledJob) error {
	if job.ID == "" {
		job.ID = schema.NewID(schema.PrefixScheduled)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.WorkflowID, job.CronExpression, job.Active,
		nullTime(job.NextRun), nullTime(job.LastRun), timeOrNow(job.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetScheduledJobByWorkflow(ctx context.Context, workflowID string) (*ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs WHERE workflow_id = ?
		 ORDER BY created_at DESC LIMIT 1`, workflowID)
	job, err := scanScheduledJob(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("scheduled_job", workflowID)
	}
	return job, err
}

func (s *LibSQLStore) UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error {
	var sets []string
	var args []any

	if update.CronExpression != nil {
		sets = append(sets, "cron_expression = ?")
		args = append(args, *update.CronExpression)
	}
	if update.Active != nil {
		sets = append(sets, "active = ?")
		args = append(args, *update.Active)
	}
	if update.NextRun != nil {
		sets = append(sets, "next_run = ?")
		args = append(args, *update.NextRun)
	}
	if update.LastRun != nil {
		sets = append(sets, "last_run = ?")
		args = append(args, *update.LastRun)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE scheduled_jobs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled_job", id)
}

func (s *LibSQLStore) ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	var where []string
	var args []any

	if filter.ActiveOnly {
		where = append(where, "active = 1")
	}
	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}

	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ScheduledJob
	for rows.Next() {
		job, err := scanScheduledJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanScheduledJob(row rowScanner) (*ScheduledJob, error) {
	j := &ScheduledJob{}
	var nextRun, lastRun sql.NullTime
	err := row.Scan(&j.ID, &j.WorkflowID, &j.CronExpression, &j.Active, &nextRun, &lastRun, &j.CreatedAt)
	if err != nil {
		return nil, err
	}
	if nextRun.Valid {
		j.NextRun = &nextRun.Time
	}
	if lastRun.Valid {
		j.LastRun = &lastRun.Time
	}
	return j, nil
}

// --- Executions ---

const executionColumns = `id, workflow_id, trigger_type, start_time, end_time, duration_ms, status, input_data, result, error`

func (s *LibSQLStore) CreateExecution(ctx context.Context, exec *Execution) error {
	if exec.ID == "" {
		exec.ID = schema.NewID(schema.PrefixExecution)
	}
	if exec.Status == "" {
		exec.Status = schema.StatusRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_executions (`+executionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.WorkflowID, exec.TriggerType, timeOrNow(exec.StartTime),
		nullTime(exec.EndTime), nullInt(exec.DurationMs), exec.Status,
		nullRaw(exec.Input), nullRaw(exec.Result), nullStr(exec.Error),
	)
	return err
}

// FinalizeExecution sets the completion fields of a running execution exactly
// once. A second finalization attempt finds no running row and fails.
func (s *LibSQLStore) FinalizeExecution(ctx context.Context, id string, final ExecutionFinal) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_executions
		 SET end_time = ?, duration_ms = ?, status = ?, result = ?, error = ?
		 WHERE id = ? AND status = 'running'`,
		final.EndTime, final.DurationMs, final.Status,
		nullRaw(final.Result), nullStr(final.Error), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "running execution", id)
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("execution", id)
	}
	return exec, err
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.TriggerType != "" {
		where = append(where, "trigger_type = ?")
		args = append(args, filter.TriggerType)
	}

	query := `SELECT ` + executionColumns + ` FROM workflow_executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_time DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, exec)
	}
	return executions, rows.Err()
}

func (s *LibSQLStore) ExecutionStats(ctx context.Context, workflowID string) (*ExecutionStats, error) {
	query := `SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
		COALESCE(AVG(duration_ms), 0)
		FROM workflow_executions`
	var args []any
	if workflowID != "" {
		query += " WHERE workflow_id = ?"
		args = append(args, workflowID)
	}

	stats := &ExecutionStats{}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&stats.Total, &stats.Success, &stats.AvgDurationMs); err != nil {
		return nil, err
	}
	stats.Error = stats.Total - stats.Success
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Success) / float64(stats.Total) * 100
	}
	return stats, nil
}

func scanExecution(row rowScanner) (*Execution, error) {
	e := &Execution{}
	var endTime sql.NullTime
	var durationMs sql.NullInt64
	var input, result, errText sql.NullString
	err := row.Scan(&e.ID, &e.WorkflowID, &e.TriggerType, &e.StartTime, &endTime,
		&durationMs, &e.Status, &input, &result, &errText)
	if err != nil {
		return nil, err
	}
	if endTime.Valid {
		e.EndTime = &endTime.Time
	}
	e.DurationMs = durationMs.Int64
	e.Input = rawOrNil(input)
	e.Result = rawOrNil(result)
	e.Error = errText.String
	return e, nil
}

// --- Logs ---

func (s *LibSQLStore) AppendLog(ctx context.Context, entry *LogEntry) error {
	if entry.ID == "" {
		entry.ID = schema.NewID(schema.PrefixLog)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (id, entity_type, entity_id, level, message, timestamp, execution_id, context_data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.EntityType, nullStr(entry.EntityID), entry.Level, entry.Message,
		timeOrNow(entry.Timestamp), nullStr(entry.ExecutionID), nullRaw(entry.Context),
	)
	return err
}

func (s *LibSQLStore) ListLogs(ctx context.Context, filter LogFilter) ([]*LogEntry, error) {
	var where []string
	var args []any

	if filter.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if filter.ExecutionID != "" {
		where = append(where, "execution_id = ?")
		args = append(args, filter.ExecutionID)
	}
	if filter.Level != "" {
		where = append(where, "level = ?")
		args = append(args, filter.Level)
	}

	query := `SELECT id, entity_type, entity_id, level, message, timestamp, execution_id, context_data FROM logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*LogEntry
	for rows.Next() {
		e := &LogEntry{}
		var entityID, executionID, contextData sql.NullString
		if err := rows.Scan(&e.ID, &e.EntityType, &entityID, &e.Level, &e.Message,
			&e.Timestamp, &executionID, &contextData); err != nil {
			return nil, err
		}
		e.EntityID = entityID.String
		e.ExecutionID = executionID.String
		e.Context = rawOrNil(contextData)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Settings ---

func (s *LibSQLStore) SetSetting(ctx context.Context, key, value, category string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (id, key, value, category, active, created_at)
		 VALUES (?, ?, ?, ?, 1, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, category=excluded.category`,
		schema.NewID(schema.PrefixSetting), key, value, nullStr(category),
	)
	return err
}

func (s *LibSQLStore) GetSetting(ctx context.Context, key string) (*Setting, error) {
	st := &Setting{}
	var category sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, key, value, category, active, created_at FROM settings WHERE key = ?`, key,
	).Scan(&st.ID, &st.Key, &st.Value, &category, &st.Active, &st.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("setting", key)
	}
	if err != nil {
		return nil, err
	}
	st.Category = category.String
	return st, nil
}

func (s *LibSQLStore) ListSettings(ctx context.Context, category string) ([]*Setting, error) {
	query := `SELECT id, key, value, category, active, created_at FROM settings`
	var args []any
	if category != "" {
		query += " WHERE category = ?"
		args = append(args, category)
	}
	query += " ORDER BY key ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []*Setting
	for rows.Next() {
		st := &Setting{}
		var cat sql.NullString
		if err := rows.Scan(&st.ID, &st.Key, &st.Value, &cat, &st.Active, &st.CreatedAt); err != nil {
			return nil, err
		}
		st.Category = cat.String
		settings = append(settings, st)
	}
	return settings, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func marshalSliceOrDefault(s []string) (string, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	return string(b), err
}

func marshalMapOrDefault[V any](m map[string]V) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}
