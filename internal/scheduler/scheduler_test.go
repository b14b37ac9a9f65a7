package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeck/flowdeck/internal/store"
	"github.com/flowdeck/flowdeck/pkg/schema"
)

// schedulerStore is an in-memory mock of the store methods the scheduler
// touches.
type schedulerStore struct {
	store.Store

	mu        sync.Mutex
	workflows map[string]*store.Workflow
	tools     map[string]*store.Tool
	jobs      map[string]*store.ScheduledJob // keyed by workflow ID
}

func newSchedulerStore() *schedulerStore {
	return &schedulerStore{
		workflows: make(map[string]*store.Workflow),
		tools:     make(map[string]*store.Tool),
		jobs:      make(map[string]*store.ScheduledJob),
	}
}

func (m *schedulerStore) GetWorkflowByName(_ context.Context, name string) (*store.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", name)
	}
	return wf, nil
}

func (m *schedulerStore) ListWorkflows(_ context.Context, filter store.WorkflowFilter) ([]*store.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Workflow
	for _, wf := range m.workflows {
		if filter.ActiveOnly && !wf.Active {
			continue
		}
		out = append(out, wf)
	}
	return out, nil
}

func (m *schedulerStore) GetToolByName(_ context.Context, name string) (*store.Tool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tools[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "tool %q not found", name)
	}
	return t, nil
}

func (m *schedulerStore) CreateScheduledJob(_ context.Context, job *store.ScheduledJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = schema.NewID(schema.PrefixScheduled)
	}
	m.jobs[job.WorkflowID] = job
	return nil
}

func (m *schedulerStore) GetScheduledJobByWorkflow(_ context.Context, workflowID string) (*store.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[workflowID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "scheduled job for workflow %q not found", workflowID)
	}
	return job, nil
}

func (m *schedulerStore) UpdateScheduledJob(_ context.Context, id string, update store.ScheduledJobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.ID != id {
			continue
		}
		if update.CronExpression != nil {
			job.CronExpression = *update.CronExpression
		}
		if update.Active != nil {
			job.Active = *update.Active
		}
		if update.NextRun != nil {
			job.NextRun = update.NextRun
		}
		if update.LastRun != nil {
			job.LastRun = update.LastRun
		}
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeNotFound, "scheduled job %q not found", id)
}

func (m *schedulerStore) job(t *testing.T, workflowID string) *store.ScheduledJob {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[workflowID]
	require.True(t, ok, "expected scheduled job for workflow %s", workflowID)
	return job
}

// fakeRunner records Execute calls.
type fakeRunner struct {
	mu    sync.Mutex
	calls []runnerCall
}

type runnerCall struct {
	name    string
	trigger string
	input   map[string]any
}

func (f *fakeRunner) Execute(_ context.Context, name string, input map[string]any, trigger string) *schema.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, runnerCall{name: name, trigger: trigger, input: input})
	return schema.Success("done", nil)
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestScheduler() (*Scheduler, *schedulerStore, *fakeRunner) {
	st := newSchedulerStore()
	runner := &fakeRunner{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(st, runner, logger), st, runner
}

func seedScheduledWorkflow(st *schedulerStore, name, cronExpr string) *store.Workflow {
	wf := &store.Workflow{
		ID:       schema.NewID(schema.PrefixWorkflow),
		Name:     name,
		Schedule: cronExpr,
		Triggers: []string{schema.TriggerManual, schema.TriggerSchedule},
		Active:   true,
	}
	st.workflows[name] = wf
	return wf
}

func TestCalculateNextRun(t *testing.T) {
	s, _, _ := newTestScheduler()

	from := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	next, err := s.CalculateNextRun("0 9 * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), next)

	from = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	next, err = s.CalculateNextRun("0 9 * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC), next)
}

func TestCalculateNextRunInvalidExpression(t *testing.T) {
	s, _, _ := newTestScheduler()

	_, err := s.CalculateNextRun("not a cron", time.Now())
	assert.Error(t, err)
}

func TestArmPersistsJob(t *testing.T) {
	s, st, _ := newTestScheduler()
	wf := seedScheduledWorkflow(st, "daily_report", "0 9 * * *")

	require.NoError(t, s.Arm(context.Background(), "daily_report"))

	assert.True(t, s.Armed("daily_report"))
	job := st.job(t, wf.ID)
	assert.Equal(t, "0 9 * * *", job.CronExpression)
	assert.True(t, job.Active)
	require.NotNil(t, job.NextRun)
	assert.True(t, job.NextRun.After(time.Now().Add(-time.Minute)))
}

func TestArmReplacesExistingEntry(t *testing.T) {
	s, st, _ := newTestScheduler()
	wf := seedScheduledWorkflow(st, "daily_report", "0 9 * * *")

	require.NoError(t, s.Arm(context.Background(), "daily_report"))

	st.workflows["daily_report"].Schedule = "30 14 * * *"
	require.NoError(t, s.Arm(context.Background(), "daily_report"))

	assert.True(t, s.Armed("daily_report"))
	job := st.job(t, wf.ID)
	assert.Equal(t, "30 14 * * *", job.CronExpression)

	s.mu.Lock()
	entryCount := len(s.entries)
	s.mu.Unlock()
	assert.Equal(t, 1, entryCount)
}

func TestArmRejectsUnschedulableWorkflow(t *testing.T) {
	s, st, _ := newTestScheduler()
	wf := seedScheduledWorkflow(st, "manual_only", "")
	wf.Triggers = []string{schema.TriggerManual}

	err := s.Arm(context.Background(), "manual_only")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeSchedule))
	assert.False(t, s.Armed("manual_only"))
}

func TestArmInvalidCronExpression(t *testing.T) {
	s, st, _ := newTestScheduler()
	seedScheduledWorkflow(st, "bad_cron", "every tuesday maybe")

	err := s.Arm(context.Background(), "bad_cron")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeSchedule))
	assert.False(t, s.Armed("bad_cron"))
}

func TestScheduleAllArmsEligibleOnly(t *testing.T) {
	s, st, _ := newTestScheduler()
	seedScheduledWorkflow(st, "eligible", "*/5 * * * *")
	seedScheduledWorkflow(st, "no_schedule", "")
	noTrigger := seedScheduledWorkflow(st, "no_trigger", "0 9 * * *")
	noTrigger.Triggers = []string{schema.TriggerManual}
	inactive := seedScheduledWorkflow(st, "inactive", "0 9 * * *")
	inactive.Active = false

	require.NoError(t, s.ScheduleAll(context.Background()))

	assert.True(t, s.Armed("eligible"))
	assert.False(t, s.Armed("no_schedule"))
	assert.False(t, s.Armed("no_trigger"))
	assert.False(t, s.Armed("inactive"))
}

func TestScheduleAllIsolatesBadCron(t *testing.T) {
	s, st, _ := newTestScheduler()
	seedScheduledWorkflow(st, "broken", "this is not cron")
	seedScheduledWorkflow(st, "healthy", "0 9 * * *")

	require.NoError(t, s.ScheduleAll(context.Background()))

	assert.False(t, s.Armed("broken"))
	assert.True(t, s.Armed("healthy"))
}

func TestFireRunsWorkflow(t *testing.T) {
	s, st, runner := newTestScheduler()
	wf := seedScheduledWorkflow(st, "daily_report", "0 9 * * *")
	require.NoError(t, s.Arm(context.Background(), "daily_report"))

	s.fire("daily_report")

	require.Equal(t, 1, runner.callCount())
	call := runner.calls[0]
	assert.Equal(t, "daily_report", call.name)
	assert.Equal(t, schema.TriggerSchedule, call.trigger)
	assert.Empty(t, call.input)

	job := st.job(t, wf.ID)
	require.NotNil(t, job.LastRun)
	assert.WithinDuration(t, time.Now().UTC(), *job.LastRun, time.Minute)
}

func TestFireUnschedulesInactiveWorkflow(t *testing.T) {
	s, st, runner := newTestScheduler()
	wf := seedScheduledWorkflow(st, "daily_report", "0 9 * * *")
	require.NoError(t, s.Arm(context.Background(), "daily_report"))

	st.workflows["daily_report"].Active = false
	s.fire("daily_report")

	assert.Zero(t, runner.callCount())
	assert.False(t, s.Armed("daily_report"))
	job := st.job(t, wf.ID)
	assert.False(t, job.Active)
	assert.Nil(t, job.LastRun)
}

func TestFireSkipsWhenToolInactive(t *testing.T) {
	s, st, runner := newTestScheduler()
	wf := seedScheduledWorkflow(st, "daily_report", "0 9 * * *")
	wf.ToolsRequired = []string{"mailer"}
	st.tools["mailer"] = &store.Tool{ID: schema.NewID(schema.PrefixTool), Name: "mailer", Active: false}
	require.NoError(t, s.Arm(context.Background(), "daily_report"))

	s.fire("daily_report")

	// Transient condition: no run, no last_run update, entry stays armed.
	assert.Zero(t, runner.callCount())
	assert.True(t, s.Armed("daily_report"))
	job := st.job(t, wf.ID)
	assert.Nil(t, job.LastRun)
	assert.True(t, job.Active)
}

func TestFireSkipsWhenToolMissing(t *testing.T) {
	s, st, runner := newTestScheduler()
	wf := seedScheduledWorkflow(st, "daily_report", "0 9 * * *")
	wf.ToolsRequired = []string{"ghost"}
	require.NoError(t, s.Arm(context.Background(), "daily_report"))

	s.fire("daily_report")

	assert.Zero(t, runner.callCount())
	assert.True(t, s.Armed("daily_report"))
}

func TestUnschedule(t *testing.T) {
	s, st, _ := newTestScheduler()
	wf := seedScheduledWorkflow(st, "daily_report", "0 9 * * *")
	require.NoError(t, s.Arm(context.Background(), "daily_report"))

	require.NoError(t, s.Unschedule(context.Background(), "daily_report"))

	assert.False(t, s.Armed("daily_report"))
	job := st.job(t, wf.ID)
	assert.False(t, job.Active)
}

func TestUnscheduleUnknownWorkflow(t *testing.T) {
	s, _, _ := newTestScheduler()
	assert.NoError(t, s.Unschedule(context.Background(), "missing"))
}

func TestReload(t *testing.T) {
	s, st, _ := newTestScheduler()
	seedScheduledWorkflow(st, "first", "0 9 * * *")
	require.NoError(t, s.ScheduleAll(context.Background()))
	require.True(t, s.Armed("first"))

	// Simulate a reconcile that deactivated one workflow and added another.
	st.workflows["first"].Active = false
	seedScheduledWorkflow(st, "second", "0 12 * * *")

	require.NoError(t, s.Reload(context.Background()))

	assert.False(t, s.Armed("first"))
	assert.True(t, s.Armed("second"))
}

func TestJobs(t *testing.T) {
	s, st, _ := newTestScheduler()
	wf := seedScheduledWorkflow(st, "daily_report", "0 9 * * *")
	seedScheduledWorkflow(st, "cleanup", "0 3 * * *")
	require.NoError(t, s.ScheduleAll(context.Background()))

	jobs, err := s.Jobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	// Sorted by workflow name.
	assert.Equal(t, "cleanup", jobs[0].WorkflowName)
	assert.Equal(t, "daily_report", jobs[1].WorkflowName)
	assert.Equal(t, wf.ID, jobs[1].WorkflowID)
	assert.Equal(t, "0 9 * * *", jobs[1].CronExpression)
	require.NotNil(t, jobs[1].NextRun)
}

func TestStartStop(t *testing.T) {
	s, st, _ := newTestScheduler()
	seedScheduledWorkflow(st, "daily_report", "0 9 * * *")
	require.NoError(t, s.ScheduleAll(context.Background()))

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())
	require.NoError(t, s.Stop())
	assert.NoError(t, s.Stop())
}
