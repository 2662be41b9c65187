package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"workflow-mcp/internal/repository"
	"workflow-mcp/pkg/models"
)

// ExecutionConfig carries the tunables for the execution state machine.
type ExecutionConfig struct {
	DefaultMode         models.ExecutionMode
	MaxRecoveryAttempts int
}

// CreateExecutionInput describes a new execution. TaskID may be nil to
// support bootstrap flows where the first step creates the task.
type CreateExecutionInput struct {
	TaskID  *string
	RoleID  string
	Mode    models.ExecutionMode
	Context map[string]any
}

// ExecutionPatch is a partial update applied to an execution. Context,
// when set, replaces the stored bag wholesale: callers must pass the
// complete merged map, not a delta.
type ExecutionPatch struct {
	CurrentRoleID    *string
	CurrentStepID    *string
	ClearCurrentStep bool
	Phase            *models.ExecutionPhase
	Context          map[string]any
	StepsCompleted   *int
	TotalSteps       *int
}

// RetryDecision reports the recovery budget after an execution error.
// The caller decides whether to re-invoke the failed step; the engine
// never auto-retries.
type RetryDecision struct {
	CanRetry   bool `json:"can_retry"`
	RetryCount int  `json:"retry_count"`
	MaxRetries int  `json:"max_retries"`
}

// ExecutionService owns the WorkflowExecution record: phase transitions,
// role/step pointers and recovery bookkeeping. All writes go through the
// store's version compare-and-swap, so a concurrent writer surfaces as a
// conflict instead of silently double-counting.
type ExecutionService struct {
	store repository.Store
	cfg   ExecutionConfig
	now   func() time.Time

	execsStarted   metric.Int64Counter
	execsCompleted metric.Int64Counter
	recoveries     metric.Int64Counter
}

// NewExecutionService creates a new ExecutionService.
func NewExecutionService(store repository.Store, cfg ExecutionConfig) *ExecutionService {
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = models.ModeGuided
	}
	if cfg.MaxRecoveryAttempts <= 0 {
		cfg.MaxRecoveryAttempts = 3
	}

	meter := otel.Meter("workflow-mcp/engine")
	started, _ := meter.Int64Counter("workflow_executions_started_total")
	completed, _ := meter.Int64Counter("workflow_executions_completed_total")
	recoveries, _ := meter.Int64Counter("workflow_execution_recoveries_total")

	return &ExecutionService{
		store:          store,
		cfg:            cfg,
		now:            time.Now,
		execsStarted:   started,
		execsCompleted: completed,
		recoveries:     recoveries,
	}
}

const executionService = "execution-service"

// CreateExecution starts a run of the pipeline for a role, pointing at
// the role's first step in sequence order.
func (s *ExecutionService) CreateExecution(ctx context.Context, in CreateExecutionInput) (*models.WorkflowExecution, error) {
	role, err := s.store.GetRole(ctx, in.RoleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(CodeNotFound, executionService, "CreateExecution",
				"role not found", map[string]any{"role_id": in.RoleID})
		}
		return nil, fmt.Errorf("get role: %w", err)
	}

	steps, err := s.store.ListRoleSteps(ctx, role.ID)
	if err != nil {
		return nil, fmt.Errorf("list role steps: %w", err)
	}

	mode := in.Mode
	if mode == "" {
		mode = s.cfg.DefaultMode
	}

	exec := &models.WorkflowExecution{
		ID:                  uuid.New().String(),
		TaskID:              in.TaskID,
		CurrentRoleID:       role.ID,
		Mode:                mode,
		Phase:               models.PhaseInitialized,
		TotalSteps:          len(steps),
		MaxRecoveryAttempts: s.cfg.MaxRecoveryAttempts,
		Context:             in.Context,
		Version:             1,
		StartedAt:           s.now(),
	}
	if exec.Context == nil {
		exec.Context = map[string]any{}
	}
	if len(steps) > 0 {
		exec.CurrentStepID = &steps[0].ID
	}

	if err := s.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	s.execsStarted.Add(ctx, 1)
	return exec, nil
}

// GetExecution retrieves an execution by id.
func (s *ExecutionService) GetExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	exec, err := s.store.GetExecution(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(CodeNotFound, executionService, "GetExecution",
				"execution not found", map[string]any{"execution_id": id})
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return exec, nil
}

// GetExecutionByTask retrieves the most recent execution for a task.
func (s *ExecutionService) GetExecutionByTask(ctx context.Context, taskID string) (*models.WorkflowExecution, error) {
	exec, err := s.store.GetExecutionByTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(CodeNotFound, executionService, "GetExecutionByTask",
				"no execution for task", map[string]any{"task_id": taskID})
		}
		return nil, fmt.Errorf("get execution by task: %w", err)
	}
	return exec, nil
}

// UpdateExecution applies a patch to an execution. Completed executions
// are terminal and reject all writes.
func (s *ExecutionService) UpdateExecution(ctx context.Context, id string, patch ExecutionPatch) (*models.WorkflowExecution, error) {
	exec, err := s.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if exec.Terminal() {
		return nil, newError(CodeInvalidInput, executionService, "UpdateExecution",
			"execution is completed and can no longer be modified",
			map[string]any{"execution_id": id})
	}

	if patch.CurrentRoleID != nil {
		exec.CurrentRoleID = *patch.CurrentRoleID
	}
	if patch.ClearCurrentStep {
		exec.CurrentStepID = nil
	} else if patch.CurrentStepID != nil {
		exec.CurrentStepID = patch.CurrentStepID
	}
	if patch.Phase != nil {
		exec.Phase = *patch.Phase
	}
	if patch.Context != nil {
		exec.Context = patch.Context
	}
	if patch.StepsCompleted != nil {
		exec.StepsCompleted = *patch.StepsCompleted
	}
	if patch.TotalSteps != nil {
		exec.TotalSteps = *patch.TotalSteps
	}

	if err := s.writeExecution(ctx, "UpdateExecution", exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// UpdateProgress recomputes the execution's progress percentage from
// the step counters. When totalSteps is zero the stored total and the
// prior percentage both stand; only the completed counter moves.
func (s *ExecutionService) UpdateProgress(ctx context.Context, id string, stepsCompleted, totalSteps int) (*models.WorkflowExecution, error) {
	exec, err := s.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if exec.Terminal() {
		return nil, newError(CodeInvalidInput, executionService, "UpdateProgress",
			"execution is completed and can no longer be modified",
			map[string]any{"execution_id": id})
	}

	exec.StepsCompleted = stepsCompleted
	if totalSteps > 0 {
		exec.TotalSteps = totalSteps
		pct := int(math.Round(float64(stepsCompleted) / float64(totalSteps) * 100))
		exec.ProgressPercentage = clampPercent(pct)
	}
	if exec.Phase == models.PhaseInitialized {
		exec.Phase = models.PhaseInProgress
	}

	if err := s.writeExecution(ctx, "UpdateProgress", exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// CompleteExecution marks an execution terminal at 100%.
func (s *ExecutionService) CompleteExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	exec, err := s.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if exec.Terminal() {
		return nil, newError(CodeInvalidInput, executionService, "CompleteExecution",
			"execution is already completed", map[string]any{"execution_id": id})
	}

	now := s.now()
	exec.CompletedAt = &now
	exec.Phase = models.PhaseCompleted
	exec.ProgressPercentage = 100
	exec.StepsCompleted = exec.TotalSteps

	if err := s.writeExecution(ctx, "CompleteExecution", exec); err != nil {
		return nil, err
	}
	s.execsCompleted.Add(ctx, 1)
	return exec, nil
}

// HandleExecutionError records an execution-level error and reports the
// remaining recovery budget. The engine never retries on its own.
func (s *ExecutionService) HandleExecutionError(ctx context.Context, id string, execErr error) (*RetryDecision, error) {
	exec, err := s.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if exec.Terminal() {
		return nil, newError(CodeInvalidInput, executionService, "HandleExecutionError",
			"execution is completed and can no longer be modified",
			map[string]any{"execution_id": id})
	}

	exec.RecoveryAttempts++
	exec.Phase = models.PhaseFailed
	exec.LastError = &models.ExecutionError{
		Message:    execErr.Error(),
		OccurredAt: s.now(),
	}
	if exec.RecoveryAttempts < exec.MaxRecoveryAttempts {
		exec.LastError.Code = string(CodeRecoverableExecution)
	}

	if err := s.writeExecution(ctx, "HandleExecutionError", exec); err != nil {
		return nil, err
	}
	s.recoveries.Add(ctx, 1)

	return &RetryDecision{
		CanRetry:   exec.RecoveryAttempts < exec.MaxRecoveryAttempts,
		RetryCount: exec.RecoveryAttempts,
		MaxRetries: exec.MaxRecoveryAttempts,
	}, nil
}

// ActiveExecutions returns all executions not yet completed, newest
// first.
func (s *ExecutionService) ActiveExecutions(ctx context.Context) ([]*models.WorkflowExecution, error) {
	return s.store.ListActiveExecutions(ctx)
}

// writeExecution commits a mutated execution through the version CAS.
func (s *ExecutionService) writeExecution(ctx context.Context, op string, exec *models.WorkflowExecution) error {
	err := s.store.UpdateExecution(ctx, exec)
	if errors.Is(err, repository.ErrVersionConflict) {
		return wrapError(CodePreconditionFailed, executionService, op,
			"execution was modified concurrently; re-read and retry", err)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return newError(CodeNotFound, executionService, op,
			"execution not found", map[string]any{"execution_id": exec.ID})
	}
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	return nil
}

func clampPercent(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
