package schema

import (
	"strings"

	"github.com/google/uuid"
)

// ID prefixes for the persisted entity types.
const (
	PrefixWorkflow    = "WF"
	PrefixTool        = "TL"
	PrefixToolProfile = "TP"
	PrefixScheduled   = "SJ"
	PrefixExecution   = "WE"
	PrefixLog         = "LG"
	PrefixSetting     = "ST"
)

// NewID generates an opaque identifier with a type-indicating prefix,
// e.g. "WF_3fa85f64". The suffix is the first 8 hex characters of a v4 UUID.
func NewID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + raw[:8]
}
