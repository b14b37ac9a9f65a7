// Package plugins holds the built-in workflow and tool entry points compiled
// into the binary. A definition directory on disk only becomes loadable when
// a plugin carrying the directory's name is registered here.
package plugins

import (
	"github.com/flowdeck/flowdeck/internal/catalog"
)

// RegisterAll registers every built-in plugin on the given registry.
func RegisterAll(reg *catalog.Registry) error {
	for _, p := range []catalog.ToolPlugin{
		NewDatePlugin(),
		NewHTTPPlugin(),
		NewSamplePlugin(),
	} {
		if err := reg.RegisterTool(p); err != nil {
			return err
		}
	}
	for _, p := range []catalog.WorkflowPlugin{
		NewSampleReport(),
	} {
		if err := reg.RegisterWorkflow(p); err != nil {
			return err
		}
	}
	return nil
}
