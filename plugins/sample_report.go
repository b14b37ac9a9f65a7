package plugins

import (
	"context"
	"fmt"

	"github.com/flowdeck/flowdeck/internal/catalog"
	"github.com/flowdeck/flowdeck/pkg/schema"
)

// SampleReport is the built-in "sample_report" workflow. It stamps a message
// with today's date via the date tool and relays it through the sample tool,
// producing a small report payload. Exercises the full plugin contract
// including the optional required-inputs capability.
type SampleReport struct{}

// NewSampleReport creates the sample report workflow.
func NewSampleReport() *SampleReport { return &SampleReport{} }

func (w *SampleReport) Name() string { return "sample_report" }

// RequiredInputs declares the input keys the engine must see before running.
func (w *SampleReport) RequiredInputs() []string { return []string{"recipient"} }

func (w *SampleReport) Execute(ctx context.Context, input map[string]any, tools map[string]catalog.Tool) (*schema.Result, error) {
	dateTool, ok := tools["date"]
	if !ok {
		return nil, fmt.Errorf("date tool is not available")
	}
	sampleTool, ok := tools["sample"]
	if !ok {
		return nil, fmt.Errorf("sample tool is not available")
	}

	message, _ := input["message"].(string)
	if message == "" {
		message = "Scheduled report"
	}
	recipient, _ := input["recipient"].(string)

	today, err := dateTool.Execute(ctx, "calculate_date", nil)
	if err != nil {
		return nil, fmt.Errorf("date tool failed: %w", err)
	}

	echo, err := sampleTool.Execute(ctx, "example_action", map[string]any{"message": message})
	if err != nil {
		return nil, fmt.Errorf("sample tool failed: %w", err)
	}

	return schema.Success("report generated", map[string]any{
		"recipient": recipient,
		"date":      today["date"],
		"day":       today["day"],
		"output":    echo["result"],
	}), nil
}
