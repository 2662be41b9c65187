package services

import (
	"context"
	"fmt"
	"time"

	"workflow-mcp/internal/repository"
	"workflow-mcp/pkg/models"
)

// ExecutionProgress is the derived per-execution view.
type ExecutionProgress struct {
	ExecutionID    string `json:"execution_id"`
	Percentage     int    `json:"percentage"`
	StepsCompleted int    `json:"steps_completed"`
	TotalSteps     int    `json:"total_steps"`
	StepsRemaining int    `json:"steps_remaining"`
	Estimate       string `json:"estimate"`
}

// RoleProgressMetric groups active executions by their current role.
type RoleProgressMetric struct {
	RoleID           string `json:"role_id"`
	ActiveExecutions int    `json:"active_executions"`
	AverageProgress  int    `json:"average_progress"`
}

// QualitySnapshot summarises how cleanly an execution ran.
type QualitySnapshot struct {
	RecoveryAttempts int                  `json:"recovery_attempts"`
	HasErrors        bool                 `json:"has_errors"`
	Mode             models.ExecutionMode `json:"mode"`
}

// CompletionSummary is the derived wrap-up view of an execution.
type CompletionSummary struct {
	ExecutionID    string          `json:"execution_id"`
	TaskID         *string         `json:"task_id,omitempty"`
	Duration       string          `json:"duration"`
	StepsCompleted int             `json:"steps_completed"`
	FinalRoleID    string          `json:"final_role_id"`
	Quality        QualitySnapshot `json:"quality"`
}

// ProgressAggregator derives reporting metrics from engine state. It
// holds no state of its own, and it degrades to documented defaults on
// missing or malformed fields instead of erroring: analytics must never
// block the execution path.
type ProgressAggregator struct {
	store repository.Store
	now   func() time.Time
}

// NewProgressAggregator creates a new ProgressAggregator.
func NewProgressAggregator(store repository.Store) *ProgressAggregator {
	return &ProgressAggregator{store: store, now: time.Now}
}

// CalculateProgress derives the progress view of a single execution.
func (a *ProgressAggregator) CalculateProgress(exec *models.WorkflowExecution) *ExecutionProgress {
	if exec == nil {
		return &ExecutionProgress{Estimate: "unknown"}
	}

	completed := exec.StepsCompleted
	total := exec.TotalSteps
	if completed < 0 {
		completed = 0
	}
	if total < 0 {
		total = 0
	}

	pct := exec.ProgressPercentage
	if total > 0 {
		pct = clampPercent(completed * 100 / total)
	}

	remaining := total - completed
	if remaining < 0 {
		remaining = 0
	}

	estimate := fmt.Sprintf("%d steps remaining", remaining)
	switch {
	case total == 0:
		estimate = "unknown"
	case remaining == 0:
		estimate = "all steps completed"
	case pct >= 90:
		estimate = "near completion"
	case remaining == 1:
		estimate = "1 step remaining"
	}

	return &ExecutionProgress{
		ExecutionID:    exec.ID,
		Percentage:     pct,
		StepsCompleted: completed,
		TotalSteps:     total,
		StepsRemaining: remaining,
		Estimate:       estimate,
	}
}

// RoleMetrics groups the active executions by current role and averages
// their progress.
func (a *ProgressAggregator) RoleMetrics(ctx context.Context) ([]RoleProgressMetric, error) {
	execs, err := a.store.ListActiveExecutions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active executions: %w", err)
	}

	type bucket struct {
		count int
		total int
	}
	buckets := make(map[string]*bucket)
	var order []string
	for _, exec := range execs {
		b, ok := buckets[exec.CurrentRoleID]
		if !ok {
			b = &bucket{}
			buckets[exec.CurrentRoleID] = b
			order = append(order, exec.CurrentRoleID)
		}
		b.count++
		b.total += clampPercent(exec.ProgressPercentage)
	}

	metrics := make([]RoleProgressMetric, 0, len(order))
	for _, roleID := range order {
		b := buckets[roleID]
		metrics = append(metrics, RoleProgressMetric{
			RoleID:           roleID,
			ActiveExecutions: b.count,
			AverageProgress:  b.total / b.count,
		})
	}
	return metrics, nil
}

// GenerateCompletionSummary derives the wrap-up view for an execution.
// A still-running execution is summarised as of now.
func (a *ProgressAggregator) GenerateCompletionSummary(ctx context.Context, executionID string) (*CompletionSummary, error) {
	exec, err := a.store.GetExecution(ctx, executionID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, newError(CodeNotFound, "progress-aggregator", "GenerateCompletionSummary",
				"execution not found", map[string]any{"execution_id": executionID})
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}

	end := a.now()
	if exec.CompletedAt != nil {
		end = *exec.CompletedAt
	}
	elapsed := end.Sub(exec.StartedAt)
	if exec.StartedAt.IsZero() || elapsed < 0 {
		elapsed = 0
	}

	return &CompletionSummary{
		ExecutionID:    exec.ID,
		TaskID:         exec.TaskID,
		Duration:       formatDuration(elapsed),
		StepsCompleted: exec.StepsCompleted,
		FinalRoleID:    exec.CurrentRoleID,
		Quality: QualitySnapshot{
			RecoveryAttempts: exec.RecoveryAttempts,
			HasErrors:        exec.LastError != nil,
			Mode:             exec.Mode,
		},
	}, nil
}

// formatDuration renders an elapsed duration as "Xh Ym".
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
