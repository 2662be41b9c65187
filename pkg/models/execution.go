package models

import "time"

// ExecutionMode determines how much autonomy the executing agent has.
type ExecutionMode string

const (
	ModeGuided    ExecutionMode = "GUIDED"
	ModeAutomated ExecutionMode = "AUTOMATED"
	ModeHybrid    ExecutionMode = "HYBRID"
)

// ExecutionPhase is the coarse state of a workflow execution.
type ExecutionPhase string

const (
	PhaseInitialized ExecutionPhase = "initialized"
	PhaseInProgress  ExecutionPhase = "in-progress"
	PhaseCompleted   ExecutionPhase = "completed"
	PhaseFailed      ExecutionPhase = "failed"
	PhasePaused      ExecutionPhase = "paused"
)

// ExecutionError is the last recorded execution-level error. Code, when
// set, classifies the error for the retrying agent.
type ExecutionError struct {
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	Stack      string    `json:"stack,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WorkflowExecution is one run of a task through the pipeline. TaskID is
// nullable to support bootstrap flows where the execution is created
// before its task exists. Version is a monotonic counter used for
// compare-and-swap updates so concurrent writers cannot silently
// clobber each other.
type WorkflowExecution struct {
	ID                  string          `json:"id" db:"id"`
	TaskID              *string         `json:"task_id,omitempty" db:"task_id"`
	CurrentRoleID       string          `json:"current_role_id" db:"current_role_id"`
	CurrentStepID       *string         `json:"current_step_id,omitempty" db:"current_step_id"`
	Mode                ExecutionMode   `json:"mode" db:"mode"`
	Phase               ExecutionPhase  `json:"phase" db:"phase"`
	StepsCompleted      int             `json:"steps_completed" db:"steps_completed"`
	TotalSteps          int             `json:"total_steps" db:"total_steps"`
	ProgressPercentage  int             `json:"progress_percentage" db:"progress_percentage"`
	RecoveryAttempts    int             `json:"recovery_attempts" db:"recovery_attempts"`
	MaxRecoveryAttempts int             `json:"max_recovery_attempts" db:"max_recovery_attempts"`
	LastError           *ExecutionError `json:"last_error,omitempty" db:"last_error"`
	Context             map[string]any  `json:"context,omitempty" db:"context"`
	Version             int             `json:"version" db:"version"`
	StartedAt           time.Time       `json:"started_at" db:"started_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// Terminal reports whether the execution can no longer be mutated.
func (e *WorkflowExecution) Terminal() bool {
	return e.CompletedAt != nil
}
