package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"workflow-mcp/internal/repository"
	"workflow-mcp/pkg/models"
)

// StartStepInput identifies the step attempt to open. RoleID and TaskID
// are resolved from the owning execution and step when omitted.
type StartStepInput struct {
	StepID      string
	ExecutionID string
	TaskID      *string
	RoleID      string
}

// ProgressUpdate patches the in-flight attempt's execution data.
type ProgressUpdate struct {
	CompletedActions int
	TotalActions     int
	LastActionResult string
}

// CompleteStepInput closes an attempt successfully.
type CompleteStepInput struct {
	Result        models.StepResult
	ActionResults []models.ActionResult
	DurationMs    int64
}

// FailStepInput closes an attempt with errors.
type FailStepInput struct {
	Errors        []string
	ActionResults []models.ActionResult
}

// RoleProgressSummary aggregates attempts across a role.
type RoleProgressSummary struct {
	RoleID                 string  `json:"role_id"`
	TotalSteps             int     `json:"total_steps"`
	CompletedSteps         int     `json:"completed_steps"`
	FailedSteps            int     `json:"failed_steps"`
	InProgressSteps        int     `json:"in_progress_steps"`
	AverageExecutionTimeMs int64   `json:"average_execution_time_ms"`
	SuccessRate            float64 `json:"success_rate"`
}

// ProgressTracker records the lifecycle of individual step attempts.
// Attempts move NOT_STARTED -> IN_PROGRESS -> {COMPLETED | FAILED};
// SKIPPED is reachable only before an attempt is opened. Historical
// attempts are never mutated; each retry opens a fresh record.
type ProgressTracker struct {
	store repository.Store
	now   func() time.Time
}

// NewProgressTracker creates a new ProgressTracker.
func NewProgressTracker(store repository.Store) *ProgressTracker {
	return &ProgressTracker{store: store, now: time.Now}
}

const trackerService = "progress-tracker"

// StartStep opens a new IN_PROGRESS attempt. Prior attempts are left
// untouched. Opening a second attempt while one is still in flight is a
// contract violation.
func (t *ProgressTracker) StartStep(ctx context.Context, in StartStepInput) (*models.WorkflowStepProgress, error) {
	exec, err := t.store.GetExecution(ctx, in.ExecutionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(CodeNotFound, trackerService, "StartStep",
				"execution not found", map[string]any{"execution_id": in.ExecutionID})
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}

	roleID := in.RoleID
	if roleID == "" {
		step, err := t.store.GetStep(ctx, in.StepID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, newError(CodeNotFound, trackerService, "StartStep",
					"step not found", map[string]any{"step_id": in.StepID})
			}
			return nil, fmt.Errorf("get step: %w", err)
		}
		roleID = step.RoleID
	}

	taskID := in.TaskID
	if taskID == nil {
		taskID = exec.TaskID
	}

	// At most one IN_PROGRESS attempt per (execution, step).
	if latest, err := t.store.LatestStepProgress(ctx, in.ExecutionID, in.StepID); err == nil &&
		latest.Status == models.StepInProgress {
		return nil, newError(CodeInvalidInput, trackerService, "StartStep",
			"step already has an attempt in progress",
			map[string]any{"execution_id": in.ExecutionID, "step_id": in.StepID})
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("latest progress: %w", err)
	}

	now := t.now()
	record := &models.WorkflowStepProgress{
		ID:          uuid.New().String(),
		ExecutionID: in.ExecutionID,
		StepID:      in.StepID,
		RoleID:      roleID,
		TaskID:      taskID,
		Status:      models.StepInProgress,
		StartedAt:   &now,
		ExecutionData: &models.StepExecutionData{
			Phase: models.PhaseInProgress,
		},
	}
	if err := t.store.CreateStepProgress(ctx, record); err != nil {
		return nil, fmt.Errorf("create progress record: %w", err)
	}
	return record, nil
}

// UpdateProgress patches the most recent attempt's execution data in
// place. Status does not change.
func (t *ProgressTracker) UpdateProgress(ctx context.Context, executionID, stepID string, upd ProgressUpdate) (*models.WorkflowStepProgress, error) {
	record, err := t.mustLatest(ctx, "UpdateProgress", executionID, stepID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.StepInProgress {
		return nil, newError(CodeInvalidInput, trackerService, "UpdateProgress",
			fmt.Sprintf("attempt is %s, not IN_PROGRESS", record.Status),
			map[string]any{"execution_id": executionID, "step_id": stepID})
	}

	if record.ExecutionData == nil {
		record.ExecutionData = &models.StepExecutionData{Phase: models.PhaseInProgress}
	}
	record.ExecutionData.CompletedActions = upd.CompletedActions
	record.ExecutionData.TotalActions = upd.TotalActions
	record.ExecutionData.LastActionResult = upd.LastActionResult

	if err := t.store.UpdateStepProgress(ctx, record); err != nil {
		return nil, fmt.Errorf("update progress record: %w", err)
	}
	return record, nil
}

// CompleteStep closes the most recent attempt as COMPLETED.
func (t *ProgressTracker) CompleteStep(ctx context.Context, executionID, stepID string, in CompleteStepInput) (*models.WorkflowStepProgress, error) {
	record, err := t.mustLatest(ctx, "CompleteStep", executionID, stepID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.StepInProgress {
		return nil, newError(CodeInvalidInput, trackerService, "CompleteStep",
			fmt.Sprintf("attempt is %s, not IN_PROGRESS", record.Status),
			map[string]any{"execution_id": executionID, "step_id": stepID})
	}

	now := t.now()
	result := in.Result
	if result == "" {
		result = models.ResultSuccess
	}
	record.Status = models.StepCompleted
	record.Result = &result
	record.CompletedAt = &now
	record.DurationMs = &in.DurationMs
	if record.ExecutionData == nil {
		record.ExecutionData = &models.StepExecutionData{}
	}
	record.ExecutionData.Phase = models.PhaseCompleted
	record.ExecutionData.ActionResults = in.ActionResults
	record.ExecutionData.CompletedActions = len(in.ActionResults)
	record.ExecutionData.TotalActions = len(in.ActionResults)

	if err := t.store.UpdateStepProgress(ctx, record); err != nil {
		return nil, fmt.Errorf("update progress record: %w", err)
	}
	return record, nil
}

// FailStep closes the most recent attempt as FAILED with the error list.
func (t *ProgressTracker) FailStep(ctx context.Context, executionID, stepID string, in FailStepInput) (*models.WorkflowStepProgress, error) {
	record, err := t.mustLatest(ctx, "FailStep", executionID, stepID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.StepInProgress {
		return nil, newError(CodeInvalidInput, trackerService, "FailStep",
			fmt.Sprintf("attempt is %s, not IN_PROGRESS", record.Status),
			map[string]any{"execution_id": executionID, "step_id": stepID})
	}

	now := t.now()
	result := models.ResultFailure
	record.Status = models.StepFailed
	record.Result = &result
	record.FailedAt = &now
	record.ErrorDetails = in.Errors
	if record.ExecutionData == nil {
		record.ExecutionData = &models.StepExecutionData{}
	}
	record.ExecutionData.Phase = models.PhaseFailed
	if in.ActionResults != nil {
		record.ExecutionData.ActionResults = in.ActionResults
	}

	if err := t.store.UpdateStepProgress(ctx, record); err != nil {
		return nil, fmt.Errorf("update progress record: %w", err)
	}
	return record, nil
}

// SkipStep records a SKIPPED attempt for a step that was never started.
func (t *ProgressTracker) SkipStep(ctx context.Context, in StartStepInput, reason string) (*models.WorkflowStepProgress, error) {
	if latest, err := t.store.LatestStepProgress(ctx, in.ExecutionID, in.StepID); err == nil &&
		latest.Status != models.StepNotStarted {
		return nil, newError(CodeInvalidInput, trackerService, "SkipStep",
			fmt.Sprintf("cannot skip a step with a %s attempt", latest.Status),
			map[string]any{"execution_id": in.ExecutionID, "step_id": in.StepID})
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("latest progress: %w", err)
	}

	roleID := in.RoleID
	if roleID == "" {
		step, err := t.store.GetStep(ctx, in.StepID)
		if err != nil {
			return nil, fmt.Errorf("get step: %w", err)
		}
		roleID = step.RoleID
	}

	record := &models.WorkflowStepProgress{
		ID:           uuid.New().String(),
		ExecutionID:  in.ExecutionID,
		StepID:       in.StepID,
		RoleID:       roleID,
		TaskID:       in.TaskID,
		Status:       models.StepSkipped,
		ErrorDetails: nil,
	}
	if reason != "" {
		record.ExecutionData = &models.StepExecutionData{LastActionResult: reason}
	}
	if err := t.store.CreateStepProgress(ctx, record); err != nil {
		return nil, fmt.Errorf("create progress record: %w", err)
	}
	return record, nil
}

// mustLatest loads the most recent attempt or raises the typed
// contract-violation error for steps never started.
func (t *ProgressTracker) mustLatest(ctx context.Context, op, executionID, stepID string) (*models.WorkflowStepProgress, error) {
	record, err := t.store.LatestStepProgress(ctx, executionID, stepID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(CodeNotFound, trackerService, op,
				"no progress record found; step was never started",
				map[string]any{"execution_id": executionID, "step_id": stepID})
		}
		return nil, fmt.Errorf("latest progress: %w", err)
	}
	return record, nil
}

// GetRoleProgressSummary aggregates across every attempt recorded for a
// role. Completed steps are counted per distinct step; failures and
// in-flight counts are per attempt.
func (t *ProgressTracker) GetRoleProgressSummary(ctx context.Context, roleID string) (*RoleProgressSummary, error) {
	steps, err := t.store.ListRoleSteps(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("list role steps: %w", err)
	}
	records, err := t.store.ListRoleProgress(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("list role progress: %w", err)
	}

	summary := &RoleProgressSummary{
		RoleID:     roleID,
		TotalSteps: len(steps),
	}
	completedSteps := make(map[string]bool)
	var totalDuration int64
	var durationSamples int64
	var completedAttempts, failedAttempts int

	for _, r := range records {
		switch r.Status {
		case models.StepCompleted:
			completedSteps[r.StepID] = true
			completedAttempts++
			if r.DurationMs != nil {
				totalDuration += *r.DurationMs
				durationSamples++
			}
		case models.StepFailed:
			failedAttempts++
		case models.StepInProgress:
			summary.InProgressSteps++
		}
	}

	summary.CompletedSteps = len(completedSteps)
	summary.FailedSteps = failedAttempts
	if durationSamples > 0 {
		summary.AverageExecutionTimeMs = totalDuration / durationSamples
	}
	if completedAttempts+failedAttempts > 0 {
		summary.SuccessRate = float64(completedAttempts) / float64(completedAttempts+failedAttempts)
	}
	return summary, nil
}
