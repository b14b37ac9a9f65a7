package plugins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleAuthenticate(t *testing.T) {
	tool, err := NewSamplePlugin().New(map[string]string{"api_key": "secret"})
	require.NoError(t, err)
	ok, err := tool.Authenticate(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	bare, err := NewSamplePlugin().New(nil)
	require.NoError(t, err)
	ok, err = bare.Authenticate(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSampleExampleAction(t *testing.T) {
	tool, err := NewSamplePlugin().New(map[string]string{"api_key": "secret"})
	require.NoError(t, err)

	out, err := tool.Execute(context.Background(), "example_action", map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Example executed: hi", out["result"])
	assert.NotEmpty(t, out["timestamp"])

	out, err = tool.Execute(context.Background(), "example_action", nil)
	require.NoError(t, err)
	assert.Equal(t, "Example executed: Hello World", out["result"])
}

func TestSampleTestConnection(t *testing.T) {
	tool, err := NewSamplePlugin().New(map[string]string{"api_key": "secret"})
	require.NoError(t, err)

	out, err := tool.Execute(context.Background(), "test_connection", nil)
	require.NoError(t, err)
	assert.Equal(t, "Connection test successful", out["result"])
}

func TestSampleUnauthenticatedExecute(t *testing.T) {
	tool, err := NewSamplePlugin().New(map[string]string{})
	require.NoError(t, err)

	_, err = tool.Execute(context.Background(), "example_action", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication failed")
}

func TestSampleUnknownAction(t *testing.T) {
	tool, err := NewSamplePlugin().New(map[string]string{"api_key": "secret"})
	require.NoError(t, err)

	_, err = tool.Execute(context.Background(), "teleport", nil)
	assert.Error(t, err)
}
