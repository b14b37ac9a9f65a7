package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/flowdeck/flowdeck/pkg/schema"
)

// Tool is the capability contract every tool instance satisfies. Instances
// are built by a ToolPlugin from a resolved profile config.
type Tool interface {
	// Authenticate verifies the tool's configuration/credentials.
	Authenticate(ctx context.Context) (bool, error)
	// Execute runs one named action with the given parameters.
	Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error)
	// AvailableActions lists the action names this tool supports.
	AvailableActions() []string
}

// WorkflowPlugin is the entry point a workflow definition registers. The
// engine invokes Execute with the caller's input and the resolved tool
// instances keyed by tool name.
type WorkflowPlugin interface {
	Name() string
	Execute(ctx context.Context, input map[string]any, tools map[string]Tool) (*schema.Result, error)
}

// ToolPlugin is the factory a tool definition registers. New builds a tool
// instance from a profile's config mapping.
type ToolPlugin interface {
	Name() string
	New(config map[string]string) (Tool, error)
}

// InputValidator is an optional workflow capability. When implemented, the
// engine asks it whether the supplied input is acceptable before executing.
type InputValidator interface {
	ValidateInput(input map[string]any) error
}

// InputDescriptor is an optional workflow capability describing which input
// keys the workflow requires.
type InputDescriptor interface {
	RequiredInputs() []string
}

// Registry is the thread-safe static registration table mapping definition
// names to their compiled-in entry points. A filesystem definition is only
// considered well-formed when its directory name has a registered plugin.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]WorkflowPlugin
	tools     map[string]ToolPlugin
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		workflows: make(map[string]WorkflowPlugin),
		tools:     make(map[string]ToolPlugin),
	}
}

// RegisterWorkflow adds a workflow plugin. Returns error on duplicate name.
func (r *Registry) RegisterWorkflow(p WorkflowPlugin) error {
	if p == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow plugin is nil")
	}
	name := p.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow plugin name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow plugin %q already registered", name)
	}
	r.workflows[name] = p
	return nil
}

// RegisterTool adds a tool plugin. Returns error on duplicate name.
func (r *Registry) RegisterTool(p ToolPlugin) error {
	if p == nil {
		return schema.NewError(schema.ErrCodeValidation, "tool plugin is nil")
	}
	name := p.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "tool plugin name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "tool plugin %q already registered", name)
	}
	r.tools[name] = p
	return nil
}

// Workflow retrieves a workflow plugin by name.
func (r *Registry) Workflow(name string) (WorkflowPlugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.workflows[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow plugin %q not registered", name)
	}
	return p, nil
}

// Tool retrieves a tool plugin by name.
func (r *Registry) Tool(name string) (ToolPlugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.tools[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "tool plugin %q not registered", name)
	}
	return p, nil
}

// HasWorkflow checks if a workflow plugin is registered.
func (r *Registry) HasWorkflow(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.workflows[name]
	return ok
}

// HasTool checks if a tool plugin is registered.
func (r *Registry) HasTool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// WorkflowNames returns all registered workflow plugin names, sorted.
func (r *Registry) WorkflowNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToolNames returns all registered tool plugin names, sorted.
func (r *Registry) ToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
