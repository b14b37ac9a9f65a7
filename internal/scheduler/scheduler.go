package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowdeck/flowdeck/internal/logging"
	"github.com/flowdeck/flowdeck/internal/store"
	"github.com/flowdeck/flowdeck/pkg/schema"
)

// WorkflowRunner is the interface the scheduler uses to run workflows.
// Satisfied by the executor (avoids import cycle).
type WorkflowRunner interface {
	Execute(ctx context.Context, name string, input map[string]any, trigger string) *schema.Result
}

// JobInfo describes one armed scheduled job.
type JobInfo struct {
	WorkflowName   string
	WorkflowID     string
	CronExpression string
	NextRun        *time.Time
	LastRun        *time.Time
}

// Scheduler arms one cron entry per active, schedule-bearing workflow on a
// shared cron runner. Each firing dispatches on its own goroutine so a slow
// workflow does not delay other due jobs. The persisted next_run always
// comes from the runner's own entry tracking, never recomputed
// independently, so the stored value cannot drift from the live timer.
type Scheduler struct {
	store  store.Store
	runner WorkflowRunner
	logger *slog.Logger
	parser cron.Parser

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID // workflow name -> armed entry
	started bool
}

// NewScheduler creates a new Scheduler using standard 5-field crontab
// syntax.
func NewScheduler(s store.Store, runner WorkflowRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:   s,
		runner:  runner,
		logger:  logger,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
	}
}

// Start launches the cron runner.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.cron.Start()
	s.started = true
	s.logger.Info("scheduler started")
	return nil
}

// Stop halts the cron runner and waits for in-flight firings to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	<-s.cron.Stop().Done()
	s.started = false
	s.logger.Info("scheduler stopped")
	return nil
}

// ScheduleAll arms every eligible workflow: active, non-empty cron
// schedule, and the schedule trigger declared. A bad cron expression on one
// workflow is logged and does not prevent the others from being armed.
func (s *Scheduler) ScheduleAll(ctx context.Context) error {
	workflows, err := s.store.ListWorkflows(ctx, store.WorkflowFilter{ActiveOnly: true})
	if err != nil {
		return fmt.Errorf("list workflows for scheduling: %w", err)
	}

	armed := 0
	for _, wf := range workflows {
		if !schedulable(wf) {
			continue
		}
		if err := s.Arm(ctx, wf.Name); err != nil {
			s.logger.ErrorContext(ctx, "failed to arm workflow",
				"workflow", wf.Name, "schedule", wf.Schedule, "error", err)
			continue
		}
		armed++
	}
	s.logger.InfoContext(ctx, "schedules armed", "armed", armed)
	return nil
}

// Arm registers (or replaces) the cron entry for one workflow and persists
// its ScheduledJob row with the computed next_run.
func (s *Scheduler) Arm(ctx context.Context, workflowName string) error {
	wf, err := s.store.GetWorkflowByName(ctx, workflowName)
	if err != nil {
		return err
	}
	if !schedulable(wf) {
		return schema.NewErrorf(schema.ErrCodeSchedule, "workflow %q is not schedulable", workflowName)
	}

	s.mu.Lock()
	if old, ok := s.entries[workflowName]; ok {
		s.cron.Remove(old)
		delete(s.entries, workflowName)
	}
	id, err := s.cron.AddFunc(wf.Schedule, func() { s.fire(workflowName) })
	if err != nil {
		s.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeSchedule,
			"invalid cron expression %q for workflow %q", wf.Schedule, workflowName).WithCause(err)
	}
	s.entries[workflowName] = id
	entry := s.cron.Entry(id)
	s.mu.Unlock()

	next := entry.Next
	if next.IsZero() {
		// Runner not started yet; ask the parsed schedule directly.
		next = entry.Schedule.Next(time.Now().UTC())
	}

	if err := s.persistJob(ctx, wf, next); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "workflow armed",
		"workflow", workflowName, "schedule", wf.Schedule, "next_run", next)
	return nil
}

// Reload drops every armed entry and re-derives the armed set from current
// store state. Used after catalog reconciliation so manifest schedule
// changes take effect without a restart.
func (s *Scheduler) Reload(ctx context.Context) error {
	s.mu.Lock()
	for name, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "reloading schedules")
	return s.ScheduleAll(ctx)
}

// Unschedule removes the workflow's cron entry and deactivates its
// ScheduledJob row. The row is retained for history.
func (s *Scheduler) Unschedule(ctx context.Context, workflowName string) error {
	s.mu.Lock()
	if id, ok := s.entries[workflowName]; ok {
		s.cron.Remove(id)
		delete(s.entries, workflowName)
	}
	s.mu.Unlock()

	wf, err := s.store.GetWorkflowByName(ctx, workflowName)
	if err != nil {
		if schema.IsCode(err, schema.ErrCodeNotFound) {
			return nil
		}
		return err
	}
	job, err := s.store.GetScheduledJobByWorkflow(ctx, wf.ID)
	if err != nil {
		if schema.IsCode(err, schema.ErrCodeNotFound) {
			return nil
		}
		return err
	}

	inactive := false
	if err := s.store.UpdateScheduledJob(ctx, job.ID, store.ScheduledJobUpdate{Active: &inactive}); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "workflow unscheduled", "workflow", workflowName)
	return nil
}

// Jobs returns info for the currently armed jobs, sorted by workflow name.
func (s *Scheduler) Jobs(ctx context.Context) ([]JobInfo, error) {
	s.mu.Lock()
	names := make([]string, 0, len(s.entries))
	ids := make(map[string]cron.EntryID, len(s.entries))
	for name, id := range s.entries {
		names = append(names, name)
		ids[name] = id
	}
	s.mu.Unlock()
	sort.Strings(names)

	jobs := make([]JobInfo, 0, len(names))
	for _, name := range names {
		wf, err := s.store.GetWorkflowByName(ctx, name)
		if err != nil {
			continue
		}
		info := JobInfo{
			WorkflowName:   name,
			WorkflowID:     wf.ID,
			CronExpression: wf.Schedule,
		}
		if next := s.cron.Entry(ids[name]).Next; !next.IsZero() {
			info.NextRun = &next
		}
		if job, err := s.store.GetScheduledJobByWorkflow(ctx, wf.ID); err == nil {
			info.LastRun = job.LastRun
			if info.NextRun == nil {
				info.NextRun = job.NextRun
			}
		}
		jobs = append(jobs, info)
	}
	return jobs, nil
}

// Armed reports whether a workflow currently has a cron entry.
func (s *Scheduler) Armed(workflowName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[workflowName]
	return ok
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// fire is one scheduled invocation attempt. Panics and per-step failures
// are confined to this firing; the runner keeps ticking.
func (s *Scheduler) fire(workflowName string) {
	ctx := logging.WithTrigger(logging.WithWorkflowName(context.Background(), workflowName), schema.TriggerSchedule)
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "scheduled firing panicked", "panic", r)
		}
	}()

	// Config may have changed between arm time and fire time.
	wf, err := s.store.GetWorkflowByName(ctx, workflowName)
	if err != nil || !wf.Active {
		s.logger.WarnContext(ctx, "workflow no longer active, unscheduling")
		if err := s.Unschedule(ctx, workflowName); err != nil {
			s.logger.ErrorContext(ctx, "failed to unschedule workflow", "error", err)
		}
		return
	}

	// Tool availability may be transient: skip this firing but stay armed,
	// without touching last_run or recording an execution.
	for _, toolName := range wf.ToolsRequired {
		tool, err := s.store.GetToolByName(ctx, toolName)
		if err != nil || !tool.Active {
			s.logger.WarnContext(ctx, "required tool not active, skipping firing", "tool", toolName)
			return
		}
	}

	now := time.Now().UTC()
	job, err := s.store.GetScheduledJobByWorkflow(ctx, wf.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled job row missing", "error", err)
		return
	}
	if err := s.store.UpdateScheduledJob(ctx, job.ID, store.ScheduledJobUpdate{LastRun: &now}); err != nil {
		s.logger.ErrorContext(ctx, "failed to update last_run", "error", err)
	}

	result := s.runner.Execute(ctx, workflowName, map[string]any{}, schema.TriggerSchedule)
	if result.OK() {
		s.logger.InfoContext(ctx, "scheduled execution finished", "status", result.Status)
	} else {
		s.logger.ErrorContext(ctx, "scheduled execution failed", "error", result.Error)
	}

	s.persistNextRun(ctx, workflowName, job.ID)
}

// persistNextRun stores the cron runner's own next-fire time for the entry.
func (s *Scheduler) persistNextRun(ctx context.Context, workflowName, jobID string) {
	s.mu.Lock()
	id, ok := s.entries[workflowName]
	var next time.Time
	if ok {
		next = s.cron.Entry(id).Next
	}
	s.mu.Unlock()

	if !ok || next.IsZero() {
		return
	}
	if err := s.store.UpdateScheduledJob(ctx, jobID, store.ScheduledJobUpdate{NextRun: &next}); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist next_run", "error", err)
	}
}

// persistJob creates or updates the ScheduledJob row for an armed workflow.
func (s *Scheduler) persistJob(ctx context.Context, wf *store.Workflow, next time.Time) error {
	job, err := s.store.GetScheduledJobByWorkflow(ctx, wf.ID)
	if err != nil {
		if !schema.IsCode(err, schema.ErrCodeNotFound) {
			return err
		}
		return s.store.CreateScheduledJob(ctx, &store.ScheduledJob{
			WorkflowID:     wf.ID,
			CronExpression: wf.Schedule,
			Active:         true,
			NextRun:        &next,
		})
	}

	active := true
	return s.store.UpdateScheduledJob(ctx, job.ID, store.ScheduledJobUpdate{
		CronExpression: &wf.Schedule,
		Active:         &active,
		NextRun:        &next,
	})
}

func schedulable(wf *store.Workflow) bool {
	return wf.Active && wf.Schedule != "" && slices.Contains(wf.Triggers, schema.TriggerSchedule)
}
