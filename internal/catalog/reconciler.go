package catalog

import (
	"context"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/flowdeck/flowdeck/internal/store"
	"github.com/flowdeck/flowdeck/pkg/schema"
)

// WorkflowEntry is one discovered, well-formed workflow definition: the
// parsed manifest plus its registered entry point.
type WorkflowEntry struct {
	Name     string
	Dir      string
	Manifest *schema.WorkflowManifest
	Plugin   WorkflowPlugin
}

// ToolEntry is one discovered, well-formed tool definition.
type ToolEntry struct {
	Name       string
	Dir        string
	Manifest   *schema.ToolManifest
	Plugin     ToolPlugin
	LogoPath   string
	ConfigPath string
	ReadmePath string
}

// Reconciler scans the definitions root for workflow and tool definitions,
// keeps an in-memory index of the well-formed ones, and syncs the catalog
// tables in the store (insert new, update changed fields, soft-deactivate
// orphans). The index is swapped wholesale on each Reconcile so readers see
// either the old or the new catalog, never a half-updated one.
type Reconciler struct {
	store    store.Store
	registry *Registry
	root     string
	logger   *slog.Logger

	mu        sync.RWMutex
	workflows map[string]*WorkflowEntry
	tools     map[string]*ToolEntry
}

// NewReconciler creates a Reconciler over the given definitions root. The
// root is expected to contain "workflows" and "tools" subdirectories, each
// holding one directory per definition.
func NewReconciler(st store.Store, registry *Registry, root string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:     st,
		registry:  registry,
		root:      root,
		logger:    logger,
		workflows: make(map[string]*WorkflowEntry),
		tools:     make(map[string]*ToolEntry),
	}
}

// Reconcile scans the filesystem, syncs the store, and swaps the in-memory
// index. Safe to invoke repeatedly; unchanged definitions produce zero store
// writes. Per-definition failures are logged and skipped.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	workflows := r.scanWorkflows(ctx)
	tools := r.scanTools(ctx)

	if err := r.syncWorkflows(ctx, workflows); err != nil {
		return err
	}
	if err := r.syncTools(ctx, tools); err != nil {
		return err
	}

	r.mu.Lock()
	r.workflows = workflows
	r.tools = tools
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "catalog reconciled",
		"workflows", len(workflows), "tools", len(tools))
	return nil
}

// Workflow returns the indexed entry for a workflow name.
func (r *Reconciler) Workflow(name string) (*WorkflowEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.workflows[name]
	return e, ok
}

// Tool returns the indexed entry for a tool name.
func (r *Reconciler) Tool(name string) (*ToolEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e, ok
}

// Workflows returns the indexed workflow entries sorted by name.
func (r *Reconciler) Workflows() []*WorkflowEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*WorkflowEntry, 0, len(r.workflows))
	for _, e := range r.workflows {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *WorkflowEntry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return entries
}

// Tools returns the indexed tool entries sorted by name.
func (r *Reconciler) Tools() []*ToolEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*ToolEntry, 0, len(r.tools))
	for _, e := range r.tools {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *ToolEntry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return entries
}

// --- Filesystem scan ---

func (r *Reconciler) scanWorkflows(ctx context.Context) map[string]*WorkflowEntry {
	found := make(map[string]*WorkflowEntry)
	dir := filepath.Join(r.root, "workflows")

	entries, err := os.ReadDir(dir)
	if err != nil {
		r.logger.WarnContext(ctx, "workflow definitions directory unreadable", "dir", dir, "error", err)
		return found
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		defDir := filepath.Join(dir, name)

		raw, err := os.ReadFile(filepath.Join(defDir, schema.ManifestFileName))
		if err != nil {
			r.logger.WarnContext(ctx, "workflow definition has no readable manifest, skipping",
				"workflow", name, "error", err)
			continue
		}
		manifest, err := schema.ParseWorkflowManifest(raw)
		if err != nil {
			r.logger.WarnContext(ctx, "workflow manifest invalid, skipping",
				"workflow", name, "error", err)
			continue
		}
		if len(manifest.Triggers) == 0 {
			manifest.Triggers = []string{schema.TriggerManual}
		}

		plugin, err := r.registry.Workflow(name)
		if err != nil {
			r.logger.WarnContext(ctx, "workflow has no registered entry point, skipping",
				"workflow", name)
			continue
		}

		found[name] = &WorkflowEntry{
			Name:     name,
			Dir:      defDir,
			Manifest: manifest,
			Plugin:   plugin,
		}
	}
	return found
}

func (r *Reconciler) scanTools(ctx context.Context) map[string]*ToolEntry {
	found := make(map[string]*ToolEntry)
	dir := filepath.Join(r.root, "tools")

	entries, err := os.ReadDir(dir)
	if err != nil {
		r.logger.WarnContext(ctx, "tool definitions directory unreadable", "dir", dir, "error", err)
		return found
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		defDir := filepath.Join(dir, name)
		manifestPath := filepath.Join(defDir, schema.ManifestFileName)

		raw, err := os.ReadFile(manifestPath)
		if err != nil {
			r.logger.WarnContext(ctx, "tool definition has no readable manifest, skipping",
				"tool", name, "error", err)
			continue
		}
		manifest, err := schema.ParseToolManifest(raw)
		if err != nil {
			r.logger.WarnContext(ctx, "tool manifest invalid, skipping",
				"tool", name, "error", err)
			continue
		}

		plugin, err := r.registry.Tool(name)
		if err != nil {
			r.logger.WarnContext(ctx, "tool has no registered entry point, skipping",
				"tool", name)
			continue
		}

		e := &ToolEntry{
			Name:       name,
			Dir:        defDir,
			Manifest:   manifest,
			Plugin:     plugin,
			ConfigPath: manifestPath,
		}
		if p := filepath.Join(defDir, "logo.png"); fileExists(p) {
			e.LogoPath = p
		}
		if p := filepath.Join(defDir, "README.md"); fileExists(p) {
			e.ReadmePath = p
		}
		found[name] = e
	}
	return found
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// --- Store sync ---

// syncWorkflows diffs discovered definitions against the full (active and
// inactive) workflow table. A re-added folder updates its existing row's
// mutable fields and leaves active as the operator left it.
func (r *Reconciler) syncWorkflows(ctx context.Context, discovered map[string]*WorkflowEntry) error {
	existing, err := r.store.ListWorkflows(ctx, store.WorkflowFilter{})
	if err != nil {
		return err
	}
	byName := make(map[string]*store.Workflow, len(existing))
	for _, wf := range existing {
		if prev, ok := byName[wf.Name]; ok && prev.Active {
			continue
		}
		byName[wf.Name] = wf
	}

	for name, entry := range discovered {
		m := entry.Manifest
		current, ok := byName[name]
		if !ok {
			active := true
			if m.Active != nil {
				active = *m.Active
			}
			wf := &store.Workflow{
				Name:          name,
				DisplayName:   m.Name,
				Description:   m.Description,
				Category:      m.Category,
				Schedule:      m.Schedule,
				Triggers:      m.Triggers,
				ToolsRequired: m.ToolsRequired,
				ToolProfiles:  m.ToolProfiles,
				Author:        m.Author,
				Version:       m.Version,
				Active:        active,
				FilePath:      entry.Dir,
			}
			if err := r.store.CreateWorkflow(ctx, wf); err != nil {
				r.logger.ErrorContext(ctx, "failed to register workflow", "workflow", name, "error", err)
				continue
			}
			r.logger.InfoContext(ctx, "workflow registered", "workflow", name, "id", wf.ID)
			continue
		}

		update := workflowDiff(current, entry)
		if update == nil {
			continue
		}
		if err := r.store.UpdateWorkflow(ctx, current.ID, *update); err != nil {
			r.logger.ErrorContext(ctx, "failed to update workflow", "workflow", name, "error", err)
			continue
		}
		r.logger.InfoContext(ctx, "workflow updated", "workflow", name)
	}

	// Soft-deactivate orphans: active rows with no backing definition.
	inactive := false
	for _, wf := range existing {
		if !wf.Active {
			continue
		}
		if _, ok := discovered[wf.Name]; ok {
			continue
		}
		if err := r.store.UpdateWorkflow(ctx, wf.ID, store.WorkflowUpdate{Active: &inactive}); err != nil {
			r.logger.ErrorContext(ctx, "failed to deactivate orphaned workflow", "workflow", wf.Name, "error", err)
			continue
		}
		if job, err := r.store.GetScheduledJobByWorkflow(ctx, wf.ID); err == nil && job.Active {
			if err := r.store.UpdateScheduledJob(ctx, job.ID, store.ScheduledJobUpdate{Active: &inactive}); err != nil {
				r.logger.ErrorContext(ctx, "failed to unschedule orphaned workflow", "workflow", wf.Name, "error", err)
			}
		}
		r.logger.InfoContext(ctx, "workflow orphaned, deactivated", "workflow", wf.Name)
	}
	return nil
}

// workflowDiff returns a partial update for the mutable fields that differ,
// or nil when nothing changed. The active flag is never part of the diff.
func workflowDiff(current *store.Workflow, entry *WorkflowEntry) *store.WorkflowUpdate {
	m := entry.Manifest
	update := &store.WorkflowUpdate{}
	changed := false

	if current.DisplayName != m.Name {
		update.DisplayName = &m.Name
		changed = true
	}
	if current.Description != m.Description {
		update.Description = &m.Description
		changed = true
	}
	if current.Category != m.Category {
		update.Category = &m.Category
		changed = true
	}
	if current.Schedule != m.Schedule {
		update.Schedule = &m.Schedule
		changed = true
	}
	if !slices.Equal(current.Triggers, m.Triggers) {
		update.Triggers = &m.Triggers
		changed = true
	}
	if !slices.Equal(current.ToolsRequired, m.ToolsRequired) {
		update.ToolsRequired = &m.ToolsRequired
		changed = true
	}
	if !maps.Equal(current.ToolProfiles, m.ToolProfiles) {
		update.ToolProfiles = &m.ToolProfiles
		changed = true
	}
	if current.Author != m.Author {
		update.Author = &m.Author
		changed = true
	}
	if current.Version != m.Version {
		update.Version = &m.Version
		changed = true
	}
	if current.FilePath != entry.Dir {
		update.FilePath = &entry.Dir
		changed = true
	}

	if !changed {
		return nil
	}
	return update
}

func (r *Reconciler) syncTools(ctx context.Context, discovered map[string]*ToolEntry) error {
	existing, err := r.store.ListTools(ctx, store.ToolFilter{})
	if err != nil {
		return err
	}
	byName := make(map[string]*store.Tool, len(existing))
	for _, t := range existing {
		if prev, ok := byName[t.Name]; ok && prev.Active {
			continue
		}
		byName[t.Name] = t
	}

	for name, entry := range discovered {
		m := entry.Manifest
		current, ok := byName[name]
		if !ok {
			tool := &store.Tool{
				Name:        name,
				DisplayName: m.DisplayName,
				Description: m.Description,
				LogoPath:    entry.LogoPath,
				ConfigPath:  entry.ConfigPath,
				ReadmePath:  entry.ReadmePath,
				Active:      true,
			}
			if err := r.store.CreateTool(ctx, tool); err != nil {
				r.logger.ErrorContext(ctx, "failed to register tool", "tool", name, "error", err)
				continue
			}
			r.logger.InfoContext(ctx, "tool registered", "tool", name, "id", tool.ID)
			continue
		}

		update := toolDiff(current, entry)
		if update == nil {
			continue
		}
		if err := r.store.UpdateTool(ctx, current.ID, *update); err != nil {
			r.logger.ErrorContext(ctx, "failed to update tool", "tool", name, "error", err)
			continue
		}
		r.logger.InfoContext(ctx, "tool updated", "tool", name)
	}

	inactive := false
	for _, t := range existing {
		if !t.Active {
			continue
		}
		if _, ok := discovered[t.Name]; ok {
			continue
		}
		if err := r.store.UpdateTool(ctx, t.ID, store.ToolUpdate{Active: &inactive}); err != nil {
			r.logger.ErrorContext(ctx, "failed to deactivate orphaned tool", "tool", t.Name, "error", err)
			continue
		}
		r.logger.InfoContext(ctx, "tool orphaned, deactivated", "tool", t.Name)
	}
	return nil
}

func toolDiff(current *store.Tool, entry *ToolEntry) *store.ToolUpdate {
	m := entry.Manifest
	update := &store.ToolUpdate{}
	changed := false

	if current.DisplayName != m.DisplayName {
		update.DisplayName = &m.DisplayName
		changed = true
	}
	if current.Description != m.Description {
		update.Description = &m.Description
		changed = true
	}
	if current.LogoPath != entry.LogoPath {
		update.LogoPath = &entry.LogoPath
		changed = true
	}
	if current.ConfigPath != entry.ConfigPath {
		update.ConfigPath = &entry.ConfigPath
		changed = true
	}
	if current.ReadmePath != entry.ReadmePath {
		update.ReadmePath = &entry.ReadmePath
		changed = true
	}

	if !changed {
		return nil
	}
	return update
}
