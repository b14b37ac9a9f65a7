package plugins

import (
	"context"
	"fmt"
	"time"

	"github.com/flowdeck/flowdeck/internal/catalog"
)

// SamplePlugin is the factory for the "sample" echo tool. It demonstrates a
// credentialed tool: instances authenticate only when the profile carries a
// non-empty api_key.
type SamplePlugin struct{}

// NewSamplePlugin creates the sample tool factory.
func NewSamplePlugin() *SamplePlugin { return &SamplePlugin{} }

func (p *SamplePlugin) Name() string { return "sample" }

func (p *SamplePlugin) New(config map[string]string) (catalog.Tool, error) {
	return &sampleTool{apiKey: config["api_key"]}, nil
}

type sampleTool struct {
	apiKey string
}

func (t *sampleTool) Authenticate(_ context.Context) (bool, error) {
	return t.apiKey != "", nil
}

func (t *sampleTool) AvailableActions() []string {
	return []string{"example_action", "test_connection"}
}

func (t *sampleTool) Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	if ok, _ := t.Authenticate(ctx); !ok {
		return nil, fmt.Errorf("authentication failed: api_key is not configured")
	}

	switch action {
	case "example_action":
		message, _ := params["message"].(string)
		if message == "" {
			message = "Hello World"
		}
		return map[string]any{
			"result":    fmt.Sprintf("Example executed: %s", message),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}, nil
	case "test_connection":
		return map[string]any{"result": "Connection test successful"}, nil
	default:
		return nil, fmt.Errorf("unknown action: %s", action)
	}
}
