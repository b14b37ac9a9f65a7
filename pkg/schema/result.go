package schema

import "fmt"

// Execution statuses. The set is open: a workflow entry point may report any
// status string, but these are the ones the platform itself produces.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Trigger types for workflow executions.
const (
	TriggerManual   = "manual"
	TriggerWebhook  = "webhook"
	TriggerSchedule = "schedule"
	TriggerAPI      = "api"
)

// Result is the value returned by every workflow execution. Callers always
// receive a Result, never a raw error or a propagated panic.
type Result struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// OK reports whether the result carries a success status.
func (r *Result) OK() bool {
	return r != nil && r.Status == StatusSuccess
}

// Success builds a success result.
func Success(message string, data map[string]any) *Result {
	return &Result{Status: StatusSuccess, Message: message, Data: data}
}

// Errorf builds an error result with a formatted message. The message doubles
// as the error text recorded on the execution row.
func Errorf(format string, args ...any) *Result {
	msg := fmt.Sprintf(format, args...)
	return &Result{Status: StatusError, Message: msg, Error: msg}
}
