package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorkflowManifest(t *testing.T) {
	raw := []byte(`{
		"name": "Daily Report",
		"description": "Sends the daily numbers",
		"category": "reporting",
		"schedule": "0 9 * * *",
		"triggers": ["manual", "schedule"],
		"tools_required": ["date", "sample"],
		"tool_profiles": {"sample": "PROD"},
		"input_rules": ["input.recipient != \"\""],
		"version": "2.1.0"
	}`)

	m, err := ParseWorkflowManifest(raw)
	require.NoError(t, err)
	assert.Equal(t, "Daily Report", m.Name)
	assert.Equal(t, "0 9 * * *", m.Schedule)
	assert.Equal(t, []string{"date", "sample"}, m.ToolsRequired)
	assert.Equal(t, "PROD", m.ToolProfiles["sample"])
	assert.Equal(t, "2.1.0", m.Version)
	assert.True(t, m.HasTrigger(TriggerSchedule))
	assert.False(t, m.HasTrigger(TriggerWebhook))
}

func TestParseWorkflowManifestVersionDefault(t *testing.T) {
	m, err := ParseWorkflowManifest([]byte(`{"name": "Minimal"}`))
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", m.Version)
}

func TestParseWorkflowManifestRejectsUnknownTrigger(t *testing.T) {
	_, err := ParseWorkflowManifest([]byte(`{"triggers": ["carrier_pigeon"]}`))
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeDefinition))
}

func TestParseWorkflowManifestRejectsUnknownField(t *testing.T) {
	_, err := ParseWorkflowManifest([]byte(`{"entrypoint": "main.py"}`))
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeDefinition))
}

func TestParseWorkflowManifestInvalidJSON(t *testing.T) {
	_, err := ParseWorkflowManifest([]byte(`{not json`))
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeDefinition))
}

func TestParseToolManifest(t *testing.T) {
	raw := []byte(`{
		"display_name": "Sample",
		"required_params": ["api_key"],
		"optional_params": {"base_url": "https://api.example.com"},
		"actions": {"example_action": "Echo a message"}
	}`)

	m, err := ParseToolManifest(raw)
	require.NoError(t, err)
	assert.Equal(t, "Sample", m.DisplayName)
	assert.ElementsMatch(t, []string{"api_key", "base_url"}, m.ParamNames())
}

func TestParseToolManifestRejectsEmptyParamName(t *testing.T) {
	_, err := ParseToolManifest([]byte(`{"required_params": [""]}`))
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeDefinition))
}
