package models

import "time"

// RoleName identifies one of the fixed pipeline personas.
type RoleName string

const (
	RoleBoomerang           RoleName = "boomerang"
	RoleResearcher          RoleName = "researcher"
	RoleArchitect           RoleName = "architect"
	RoleSeniorDeveloper     RoleName = "senior-developer"
	RoleCodeReview          RoleName = "code-review"
	RoleIntegrationEngineer RoleName = "integration-engineer"
)

// WorkflowRole is a named persona owning an ordered list of steps.
// Roles are static reference data seeded at bootstrap.
type WorkflowRole struct {
	ID          string    `json:"id" db:"id"`
	Name        RoleName  `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	Priority    int       `json:"priority" db:"priority"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// StepType categorises what a step asks the agent to do
type StepType string

const (
	StepTypeAction     StepType = "ACTION"
	StepTypeAnalysis   StepType = "ANALYSIS"
	StepTypeDecision   StepType = "DECISION"
	StepTypeValidation StepType = "VALIDATION"
)

// WorkflowStep is the smallest unit of guided work within a role.
// SequenceNumber is unique per role and defines strict linear ordering.
type WorkflowStep struct {
	ID                 string          `json:"id" db:"id"`
	RoleID             string          `json:"role_id" db:"role_id"`
	Name               string          `json:"name" db:"name"`
	Description        string          `json:"description,omitempty" db:"description"`
	SequenceNumber     int             `json:"sequence_number" db:"sequence_number"`
	StepType           StepType        `json:"step_type" db:"step_type"`
	BehavioralGuidance string          `json:"behavioral_guidance,omitempty" db:"behavioral_guidance"`
	ApproachGuidance   string          `json:"approach_guidance,omitempty" db:"approach_guidance"`
	Conditions         []StepCondition `json:"conditions,omitempty"`
	Actions            []StepAction    `json:"actions,omitempty"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
}

// StepAction describes something the step executes, e.g. a named service
// call with parameters. ActionData is a JSON payload interpreted by the
// executing agent, not by the engine.
type StepAction struct {
	ID            string `json:"id" db:"id"`
	StepID        string `json:"step_id" db:"step_id"`
	Name          string `json:"name" db:"name"`
	ActionType    string `json:"action_type" db:"action_type"`
	ActionData    []byte `json:"action_data,omitempty" db:"action_data"`
	SequenceOrder int    `json:"sequence_order" db:"sequence_order"`
}

// ConditionType enumerates the supported precondition interpreters.
type ConditionType string

const (
	ConditionContextCheck          ConditionType = "CONTEXT_CHECK"
	ConditionFileExists            ConditionType = "FILE_EXISTS"
	ConditionTaskStatus            ConditionType = "TASK_STATUS"
	ConditionGitStatus             ConditionType = "GIT_STATUS"
	ConditionPreviousStepCompleted ConditionType = "PREVIOUS_STEP_COMPLETED"
	ConditionCustomLogic           ConditionType = "CUSTOM_LOGIC"
)

// StepCondition is a typed precondition attached to a step. Only required
// conditions can block execution; the rest are evaluated for diagnostics.
type StepCondition struct {
	ID       string         `json:"id" db:"id"`
	StepID   string         `json:"step_id" db:"step_id"`
	Name     string         `json:"name" db:"name"`
	Type     ConditionType  `json:"type" db:"type"`
	Required bool           `json:"required" db:"required"`
	Logic    ConditionLogic `json:"logic" db:"logic"`
}

// ConditionLogic carries one payload variant per condition type. Exactly
// the variant matching the condition's Type must be set; the evaluator
// rejects conditions whose variant is missing.
type ConditionLogic struct {
	ContextCheck *ContextCheckLogic `json:"context_check,omitempty"`
	FileExists   *FileExistsLogic   `json:"file_exists,omitempty"`
	TaskStatus   *TaskStatusLogic   `json:"task_status,omitempty"`
	GitStatus    *GitStatusLogic    `json:"git_status,omitempty"`
	PreviousStep *PreviousStepLogic `json:"previous_step,omitempty"`
	Custom       *CustomLogic       `json:"custom,omitempty"`
}

// ContextCheckLogic requires dot-path keys to exist in the execution context.
type ContextCheckLogic struct {
	RequiredKeys []string `json:"required_keys"`
}

// FileExistsLogic requires files or directories to exist. Relative paths
// are resolved against the configured project root; absolute paths pass
// through unchanged.
type FileExistsLogic struct {
	Paths []string `json:"paths"`
}

// TaskStatusLogic constrains the current status of the owning task.
type TaskStatusLogic struct {
	RequiredStatus    TaskStatus   `json:"required_status,omitempty"`
	ForbiddenStatuses []TaskStatus `json:"forbidden_statuses,omitempty"`
}

// GitStatusLogic constrains the state of the working tree.
type GitStatusLogic struct {
	RequireCleanWorkingTree bool   `json:"require_clean_working_tree,omitempty"`
	RequiredBranch          string `json:"required_branch,omitempty"`
}

// PreviousStepLogic requires a named step of a role to have a COMPLETED
// progress record for the current task.
type PreviousStepLogic struct {
	StepName string `json:"step_name"`
	RoleID   string `json:"role_id,omitempty"`
}

// CustomLogic is the sandboxed sub-language. Exactly one sub-variant is
// set; anything else is unsupported and evaluates to false.
type CustomLogic struct {
	Expression  *ExpressionLogic  `json:"expression,omitempty"`
	Query       *DataQueryLogic   `json:"query,omitempty"`
	FileContent *FileContentLogic `json:"file_content,omitempty"`
	EnvVar      *EnvVarLogic      `json:"env_var,omitempty"`
}

// ExpressionLogic is a pattern-matched boolean expression evaluated
// against a fixed parameter map. Supported forms are equality,
// inequality and existence checks; anything else evaluates to false.
type ExpressionLogic struct {
	Expression string            `json:"expression"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// DataQueryLogic is a read-only query condition. The statement must be
// lexically SELECT-only and passes a destructive-keyword deny list before
// it is handed to the store.
type DataQueryLogic struct {
	Statement string `json:"statement"`
	Params    []any  `json:"params,omitempty"`
	// ExpectRows makes the condition pass only when at least one row
	// comes back; otherwise passing requires zero rows.
	ExpectRows bool `json:"expect_rows"`
}

// FileContentLogic checks the content of a resolved file, either by
// regex match (Pattern) or substring containment (Substring).
type FileContentLogic struct {
	Path      string `json:"path"`
	Pattern   string `json:"pattern,omitempty"`
	Substring string `json:"substring,omitempty"`
}

// EnvCheck enumerates the environment-variable check modes.
type EnvCheck string

const (
	EnvCheckExists   EnvCheck = "exists"
	EnvCheckEquals   EnvCheck = "equals"
	EnvCheckContains EnvCheck = "contains"
)

// EnvVarLogic checks an environment variable.
type EnvVarLogic struct {
	Variable string   `json:"variable"`
	Check    EnvCheck `json:"check"`
	Value    string   `json:"value,omitempty"`
}
