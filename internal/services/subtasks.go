package services

import (
	"context"
	"errors"
	"fmt"

	"workflow-mcp/internal/repository"
	"workflow-mcp/pkg/models"
)

// BatchStatus is the completion rollup for one logical batch.
type BatchStatus struct {
	BatchID                  string            `json:"batch_id"`
	IsComplete               bool              `json:"is_complete"`
	CompletedSubtasksInBatch int               `json:"completed_subtasks_in_batch"`
	TotalSubtasksInBatch     int               `json:"total_subtasks_in_batch"`
	PendingSubtasks          []*models.Subtask `json:"pending_subtasks,omitempty"`
	// AverageCompletionMs is derived from completed_at - started_at of
	// completed members; nil when no member carries both timestamps.
	AverageCompletionMs *int64 `json:"average_completion_ms,omitempty"`
}

// PlanStatus is the completion rollup for a whole plan.
type PlanStatus struct {
	PlanID            string `json:"plan_id"`
	IsComplete        bool   `json:"is_complete"`
	CompletedSubtasks int    `json:"completed_subtasks"`
	TotalSubtasks     int    `json:"total_subtasks"`
}

// SubtaskService maintains subtask status and the batch/plan completion
// laws: a batch is complete iff every member is completed, a plan is
// complete iff every subtask under it is completed.
type SubtaskService struct {
	store repository.Store
}

// NewSubtaskService creates a new SubtaskService.
func NewSubtaskService(store repository.Store) *SubtaskService {
	return &SubtaskService{store: store}
}

const subtaskService = "subtask-service"

var validSubtaskStatuses = map[models.SubtaskStatus]bool{
	models.SubtaskNotStarted: true,
	models.SubtaskInProgress: true,
	models.SubtaskCompleted:  true,
	models.SubtaskFailed:     true,
}

// UpdateSubtaskStatus updates a single subtask and returns the
// refreshed row.
func (s *SubtaskService) UpdateSubtaskStatus(ctx context.Context, subtaskID string, status models.SubtaskStatus) (*models.Subtask, error) {
	if !validSubtaskStatuses[status] {
		return nil, newError(CodeInvalidInput, subtaskService, "UpdateSubtaskStatus",
			fmt.Sprintf("invalid subtask status %q", status), map[string]any{"subtask_id": subtaskID})
	}
	if err := s.store.UpdateSubtaskStatus(ctx, subtaskID, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(CodeNotFound, subtaskService, "UpdateSubtaskStatus",
				"subtask not found", map[string]any{"subtask_id": subtaskID})
		}
		return nil, fmt.Errorf("update subtask status: %w", err)
	}
	st, err := s.store.GetSubtask(ctx, subtaskID)
	if err != nil {
		return nil, fmt.Errorf("reload subtask: %w", err)
	}
	return st, nil
}

// BatchUpdateSubtaskStatus applies one status to a set of subtasks
// inside a single transaction: either every update lands or none do,
// so a partially updated batch is never visible. Every subtask must
// belong to planID.
func (s *SubtaskService) BatchUpdateSubtaskStatus(ctx context.Context, planID string, subtaskIDs []string, status models.SubtaskStatus) ([]*models.Subtask, error) {
	if len(subtaskIDs) == 0 {
		return nil, newError(CodeInvalidInput, subtaskService, "BatchUpdateSubtaskStatus",
			"subtask id list is empty", map[string]any{"plan_id": planID})
	}
	if !validSubtaskStatuses[status] {
		return nil, newError(CodeInvalidInput, subtaskService, "BatchUpdateSubtaskStatus",
			fmt.Sprintf("invalid subtask status %q", status), map[string]any{"plan_id": planID})
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		for _, id := range subtaskIDs {
			st, err := tx.GetSubtask(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return newError(CodeNotFound, subtaskService, "BatchUpdateSubtaskStatus",
						"subtask not found", map[string]any{"subtask_id": id})
				}
				return fmt.Errorf("get subtask: %w", err)
			}
			if st.PlanID != planID {
				return newError(CodeDataIntegrity, subtaskService, "BatchUpdateSubtaskStatus",
					"subtask does not belong to plan",
					map[string]any{"subtask_id": id, "plan_id": planID, "actual_plan_id": st.PlanID})
			}
			if err := tx.UpdateSubtaskStatus(ctx, id, status); err != nil {
				return fmt.Errorf("update subtask %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated := make([]*models.Subtask, 0, len(subtaskIDs))
	for _, id := range subtaskIDs {
		st, err := s.store.GetSubtask(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reload subtask: %w", err)
		}
		updated = append(updated, st)
	}
	return updated, nil
}

// CheckBatchStatus rolls up completion for the subtasks sharing a batch
// id. A batch with no members does not exist; absence is NotFound, not
// a degenerate complete batch.
func (s *SubtaskService) CheckBatchStatus(ctx context.Context, planID, batchID string) (*BatchStatus, error) {
	subtasks, err := s.store.ListBatchSubtasks(ctx, planID, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch subtasks: %w", err)
	}
	if len(subtasks) == 0 {
		return nil, newError(CodeNotFound, subtaskService, "CheckBatchStatus",
			"batch has no subtasks", map[string]any{"plan_id": planID, "batch_id": batchID})
	}

	status := &BatchStatus{
		BatchID:              batchID,
		TotalSubtasksInBatch: len(subtasks),
	}
	var totalCompletionMs int64
	var completionSamples int64
	for _, st := range subtasks {
		if st.Status == models.SubtaskCompleted {
			status.CompletedSubtasksInBatch++
			if st.StartedAt != nil && st.CompletedAt != nil {
				if ms := st.CompletedAt.Sub(*st.StartedAt).Milliseconds(); ms >= 0 {
					totalCompletionMs += ms
					completionSamples++
				}
			}
		} else {
			status.PendingSubtasks = append(status.PendingSubtasks, st)
		}
	}
	status.IsComplete = status.CompletedSubtasksInBatch == status.TotalSubtasksInBatch
	if completionSamples > 0 {
		avg := totalCompletionMs / completionSamples
		status.AverageCompletionMs = &avg
	}
	return status, nil
}

// CheckPlanStatus rolls up completion across every subtask of a plan.
func (s *SubtaskService) CheckPlanStatus(ctx context.Context, planID string) (*PlanStatus, error) {
	if _, err := s.store.GetPlan(ctx, planID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(CodeNotFound, subtaskService, "CheckPlanStatus",
				"plan not found", map[string]any{"plan_id": planID})
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	subtasks, err := s.store.ListPlanSubtasks(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("list plan subtasks: %w", err)
	}

	status := &PlanStatus{PlanID: planID, TotalSubtasks: len(subtasks)}
	for _, st := range subtasks {
		if st.Status == models.SubtaskCompleted {
			status.CompletedSubtasks++
		}
	}
	status.IsComplete = status.TotalSubtasks > 0 && status.CompletedSubtasks == status.TotalSubtasks
	return status, nil
}
