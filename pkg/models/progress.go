package models

import "time"

// StepProgressStatus is the per-attempt lifecycle state.
type StepProgressStatus string

const (
	StepNotStarted StepProgressStatus = "NOT_STARTED"
	StepInProgress StepProgressStatus = "IN_PROGRESS"
	StepCompleted  StepProgressStatus = "COMPLETED"
	StepSkipped    StepProgressStatus = "SKIPPED"
	StepFailed     StepProgressStatus = "FAILED"
)

// StepResult is the overall outcome of a completed attempt.
type StepResult string

const (
	ResultSuccess StepResult = "SUCCESS"
	ResultFailure StepResult = "FAILURE"
)

// ActionResult is the outcome of one action within a step attempt.
type ActionResult struct {
	ActionName string `json:"action_name"`
	Success    bool   `json:"success"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

// StepExecutionData is the structured payload tracked while an attempt
// is in flight and frozen when it closes.
type StepExecutionData struct {
	Phase            ExecutionPhase `json:"phase"`
	CompletedActions int            `json:"completed_actions"`
	TotalActions     int            `json:"total_actions"`
	LastActionResult string         `json:"last_action_result,omitempty"`
	ActionResults    []ActionResult `json:"action_results,omitempty"`
}

// WorkflowStepProgress records one step attempt within an execution.
// Historical attempts are retained; at most one record per
// (execution, step) may be IN_PROGRESS at a time.
type WorkflowStepProgress struct {
	ID            string             `json:"id" db:"id"`
	ExecutionID   string             `json:"execution_id" db:"execution_id"`
	StepID        string             `json:"step_id" db:"step_id"`
	RoleID        string             `json:"role_id" db:"role_id"`
	TaskID        *string            `json:"task_id,omitempty" db:"task_id"`
	Status        StepProgressStatus `json:"status" db:"status"`
	Result        *StepResult        `json:"result,omitempty" db:"result"`
	ExecutionData *StepExecutionData `json:"execution_data,omitempty" db:"execution_data"`
	ErrorDetails  []string           `json:"error_details,omitempty" db:"error_details"`
	DurationMs    *int64             `json:"duration_ms,omitempty" db:"duration_ms"`
	StartedAt     *time.Time         `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty" db:"completed_at"`
	FailedAt      *time.Time         `json:"failed_at,omitempty" db:"failed_at"`
}
