package plugins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeck/flowdeck/internal/catalog"
)

func reportTools(t *testing.T) map[string]catalog.Tool {
	t.Helper()
	date, err := NewDatePlugin().New(nil)
	require.NoError(t, err)
	sample, err := NewSamplePlugin().New(map[string]string{"api_key": "secret"})
	require.NoError(t, err)
	return map[string]catalog.Tool{"date": date, "sample": sample}
}

func TestSampleReportExecute(t *testing.T) {
	wf := NewSampleReport()

	result, err := wf.Execute(context.Background(),
		map[string]any{"recipient": "ops", "message": "weekly numbers"}, reportTools(t))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.OK())

	data := result.Data
	require.NotNil(t, data)
	assert.Equal(t, "ops", data["recipient"])
	assert.NotEmpty(t, data["date"])
	assert.Equal(t, "Example executed: weekly numbers", data["output"])
}

func TestSampleReportDefaultMessage(t *testing.T) {
	result, err := NewSampleReport().Execute(context.Background(),
		map[string]any{"recipient": "ops"}, reportTools(t))
	require.NoError(t, err)

	assert.Equal(t, "Example executed: Scheduled report", result.Data["output"])
}

func TestSampleReportMissingTool(t *testing.T) {
	_, err := NewSampleReport().Execute(context.Background(),
		map[string]any{"recipient": "ops"}, map[string]catalog.Tool{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "date tool")
}

func TestSampleReportRequiredInputs(t *testing.T) {
	assert.Equal(t, []string{"recipient"}, NewSampleReport().RequiredInputs())
}

func TestRegisterAll(t *testing.T) {
	reg := catalog.NewRegistry()
	require.NoError(t, RegisterAll(reg))

	assert.Equal(t, []string{"sample_report"}, reg.WorkflowNames())
	assert.Equal(t, []string{"date", "http", "sample"}, reg.ToolNames())

	// Second registration collides with the first.
	assert.Error(t, RegisterAll(reg))
}
