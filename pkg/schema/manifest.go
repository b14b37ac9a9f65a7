package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ManifestFileName is the definition-manifest file expected inside every
// workflow and tool definition directory.
const ManifestFileName = "manifest.json"

// workflowManifestJSON is the JSON Schema for workflow manifests.
// Embedded as a constant to avoid filesystem dependencies.
const workflowManifestJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowdeck.dev/schemas/workflow-manifest.json",
  "type": "object",
  "properties": {
    "name": { "type": "string" },
    "description": { "type": "string" },
    "category": { "type": "string" },
    "schedule": { "type": "string" },
    "triggers": {
      "type": "array",
      "items": { "type": "string", "enum": ["manual", "webhook", "schedule", "api"] }
    },
    "tools_required": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "tool_profiles": {
      "type": "object",
      "additionalProperties": { "type": "string" }
    },
    "input_rules": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "author": { "type": "string" },
    "version": { "type": "string" },
    "active": { "type": "boolean" }
  },
  "additionalProperties": false
}`

// toolManifestJSON is the JSON Schema for tool manifests.
const toolManifestJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowdeck.dev/schemas/tool-manifest.json",
  "type": "object",
  "properties": {
    "display_name": { "type": "string" },
    "description": { "type": "string" },
    "required_params": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "optional_params": {
      "type": "object",
      "additionalProperties": { "type": "string" }
    },
    "actions": {
      "type": "object",
      "additionalProperties": { "type": "string" }
    },
    "profile_examples": { "type": "object" },
    "setup_instructions": { "type": "object" }
  },
  "additionalProperties": false
}`

// WorkflowManifest is the static metadata a workflow definition declares in
// its manifest.json. The definition's name is derived from its directory, not
// from the manifest: "name" here is the human-facing display name.
type WorkflowManifest struct {
	Name          string            `json:"name,omitempty"`
	Description   string            `json:"description,omitempty"`
	Category      string            `json:"category,omitempty"`
	Schedule      string            `json:"schedule,omitempty"`
	Triggers      []string          `json:"triggers,omitempty"`
	ToolsRequired []string          `json:"tools_required,omitempty"`
	ToolProfiles  map[string]string `json:"tool_profiles,omitempty"`
	InputRules    []string          `json:"input_rules,omitempty"`
	Author        string            `json:"author,omitempty"`
	Version       string            `json:"version,omitempty"`
	Active        *bool             `json:"active,omitempty"`
}

// HasTrigger reports whether the manifest declares the given trigger type.
func (m *WorkflowManifest) HasTrigger(trigger string) bool {
	for _, t := range m.Triggers {
		if t == trigger {
			return true
		}
	}
	return false
}

// ToolManifest is the static metadata a tool definition declares in its
// manifest.json. The declared parameter names constrain which environment
// variables the profile resolver attributes to this tool.
type ToolManifest struct {
	DisplayName    string            `json:"display_name,omitempty"`
	Description    string            `json:"description,omitempty"`
	RequiredParams []string          `json:"required_params,omitempty"`
	OptionalParams map[string]string `json:"optional_params,omitempty"`
	Actions        map[string]string `json:"actions,omitempty"`
}

// ParamNames returns the declared required+optional parameter names.
func (m *ToolManifest) ParamNames() []string {
	names := make([]string, 0, len(m.RequiredParams)+len(m.OptionalParams))
	names = append(names, m.RequiredParams...)
	for k := range m.OptionalParams {
		names = append(names, k)
	}
	return names
}

var (
	manifestOnce    sync.Once
	workflowSchema  *jsonschema.Schema
	toolSchema      *jsonschema.Schema
	manifestCompile error
)

func compileManifestSchemas() {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	for url, src := range map[string]string{
		"https://flowdeck.dev/schemas/workflow-manifest.json": workflowManifestJSON,
		"https://flowdeck.dev/schemas/tool-manifest.json":     toolManifestJSON,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			manifestCompile = fmt.Errorf("unmarshal manifest schema %s: %w", url, err)
			return
		}
		if err := c.AddResource(url, doc); err != nil {
			manifestCompile = fmt.Errorf("add manifest schema %s: %w", url, err)
			return
		}
	}

	var err error
	if workflowSchema, err = c.Compile("https://flowdeck.dev/schemas/workflow-manifest.json"); err != nil {
		manifestCompile = fmt.Errorf("compile workflow manifest schema: %w", err)
		return
	}
	if toolSchema, err = c.Compile("https://flowdeck.dev/schemas/tool-manifest.json"); err != nil {
		manifestCompile = fmt.Errorf("compile tool manifest schema: %w", err)
	}
}

// ParseWorkflowManifest validates raw manifest bytes against the workflow
// manifest schema and decodes them.
func ParseWorkflowManifest(raw []byte) (*WorkflowManifest, error) {
	manifestOnce.Do(compileManifestSchemas)
	if manifestCompile != nil {
		return nil, manifestCompile
	}
	if err := validateManifest(raw, workflowSchema); err != nil {
		return nil, err
	}
	var m WorkflowManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, NewError(ErrCodeDefinition, "decode workflow manifest").WithCause(err)
	}
	if m.Version == "" {
		m.Version = "1.0.0"
	}
	return &m, nil
}

// ParseToolManifest validates raw manifest bytes against the tool manifest
// schema and decodes them.
func ParseToolManifest(raw []byte) (*ToolManifest, error) {
	manifestOnce.Do(compileManifestSchemas)
	if manifestCompile != nil {
		return nil, manifestCompile
	}
	if err := validateManifest(raw, toolSchema); err != nil {
		return nil, err
	}
	var m ToolManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, NewError(ErrCodeDefinition, "decode tool manifest").WithCause(err)
	}
	return &m, nil
}

func validateManifest(raw []byte, s *jsonschema.Schema) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return NewError(ErrCodeDefinition, "manifest is not valid JSON").WithCause(err)
	}
	if err := s.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// toFlowError converts a jsonschema.ValidationError into a FlowError with
// instance locations collected from the violation tree.
func toFlowError(err error) *FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return NewError(ErrCodeDefinition, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return NewError(ErrCodeDefinition, verr.Error())
	}
	if len(violations) == 1 {
		return NewError(ErrCodeDefinition, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return NewErrorf(ErrCodeDefinition, "manifest validation failed with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
