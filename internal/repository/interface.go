package repository

import (
	"context"

	"workflow-mcp/pkg/models"
)

// Store is the data access surface consumed by the workflow engine.
// Every method is a point read or write; WithTx provides the one
// atomic-grouping primitive, and Query the raw read-only primitive used
// by the sandboxed data-query condition (safety filtering happens in
// the engine, not here).
type Store interface {
	// Tasks
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	GetTaskBySlug(ctx context.Context, slug string) (*models.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus) error

	// Roles and steps (static reference data)
	GetRole(ctx context.Context, id string) (*models.WorkflowRole, error)
	GetRoleByName(ctx context.Context, name models.RoleName) (*models.WorkflowRole, error)
	ListRoles(ctx context.Context) ([]*models.WorkflowRole, error)
	CreateRole(ctx context.Context, role *models.WorkflowRole) error
	GetStep(ctx context.Context, id string) (*models.WorkflowStep, error)
	FindStepByName(ctx context.Context, roleID, name string) (*models.WorkflowStep, error)
	// ListRoleSteps returns a role's steps ordered by sequence number.
	ListRoleSteps(ctx context.Context, roleID string) ([]*models.WorkflowStep, error)
	CreateStep(ctx context.Context, step *models.WorkflowStep) error

	// Executions
	CreateExecution(ctx context.Context, exec *models.WorkflowExecution) error
	GetExecution(ctx context.Context, id string) (*models.WorkflowExecution, error)
	GetExecutionByTask(ctx context.Context, taskID string) (*models.WorkflowExecution, error)
	// UpdateExecution rewrites the full execution row, guarded by the
	// version the caller read. Returns ErrVersionConflict if the row
	// moved on underneath; on success the stored version is exec.Version+1.
	UpdateExecution(ctx context.Context, exec *models.WorkflowExecution) error
	// ListActiveExecutions returns executions with no completed_at,
	// most recently started first.
	ListActiveExecutions(ctx context.Context) ([]*models.WorkflowExecution, error)

	// Step progress
	CreateStepProgress(ctx context.Context, p *models.WorkflowStepProgress) error
	UpdateStepProgress(ctx context.Context, p *models.WorkflowStepProgress) error
	// LatestStepProgress returns the most recent attempt for the
	// (execution, step) pair, or ErrNotFound when the step was never started.
	LatestStepProgress(ctx context.Context, executionID, stepID string) (*models.WorkflowStepProgress, error)
	ListExecutionProgress(ctx context.Context, executionID string) ([]*models.WorkflowStepProgress, error)
	ListRoleProgress(ctx context.Context, roleID string) ([]*models.WorkflowStepProgress, error)
	// CompletedStepIDs returns the step ids with a COMPLETED attempt for
	// the given task and role.
	CompletedStepIDs(ctx context.Context, taskID, roleID string) (map[string]bool, error)

	// Plans and subtasks
	CreatePlan(ctx context.Context, plan *models.ImplementationPlan) error
	GetPlan(ctx context.Context, id string) (*models.ImplementationPlan, error)
	CreateSubtask(ctx context.Context, st *models.Subtask) error
	GetSubtask(ctx context.Context, id string) (*models.Subtask, error)
	ListPlanSubtasks(ctx context.Context, planID string) ([]*models.Subtask, error)
	ListBatchSubtasks(ctx context.Context, planID, batchID string) ([]*models.Subtask, error)
	UpdateSubtaskStatus(ctx context.Context, id string, status models.SubtaskStatus) error

	// WithTx runs fn against a store bound to a single transaction;
	// any error rolls the whole block back.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Query runs a raw read-only statement and returns generic rows.
	Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
}
