package schema

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIDFormat(t *testing.T) {
	idPattern := regexp.MustCompile(`^WF_[0-9a-f]{8}$`)
	assert.Regexp(t, idPattern, NewID(PrefixWorkflow))
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID(PrefixExecution)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
