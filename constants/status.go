package constants

import "strings"

// WorkflowStatus is the canonical status of one essay-analysis run.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowSucceeded WorkflowStatus = "succeeded"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// IsTerminal reports whether the run can no longer change state.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowSucceeded || s == WorkflowFailed || s == WorkflowCancelled
}

var statusAliases = map[string]WorkflowStatus{
	"pending":   WorkflowPending,
	"running":   WorkflowRunning,
	"succeeded": WorkflowSucceeded,
	"failed":    WorkflowFailed,
	"error":     WorkflowFailed,
	"cancelled": WorkflowCancelled,
	"canceled":  WorkflowCancelled,
}

// ParseWorkflowStatus maps a vendor status string onto the canonical set.
// Unknown or empty values map to pending.
func ParseWorkflowStatus(s string) WorkflowStatus {
	if st, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st
	}
	return WorkflowPending
}

// ResponseMode selects how the workflow endpoint returns results.
type ResponseMode string

const (
	ResponseModeBlocking  ResponseMode = "blocking"
	ResponseModeStreaming ResponseMode = "streaming"
)

// Valid reports whether m is one of the two accepted literals.
func (m ResponseMode) Valid() bool {
	return m == ResponseModeBlocking || m == ResponseModeStreaming
}

// ImportOutcome labels the result of one rubric import.
type ImportOutcome string

const (
	ImportSuccess   ImportOutcome = "success"
	ImportNotRubric ImportOutcome = "not_rubric"
	ImportError     ImportOutcome = "error"
)
