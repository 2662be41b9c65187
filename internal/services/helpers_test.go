package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"workflow-mcp/pkg/models"
)

func seedRole(store *memStore, name models.RoleName, stepNames ...string) (*models.WorkflowRole, []*models.WorkflowStep) {
	role := &models.WorkflowRole{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	store.roles[role.ID] = role

	steps := make([]*models.WorkflowStep, 0, len(stepNames))
	for i, stepName := range stepNames {
		step := &models.WorkflowStep{
			ID:             uuid.New().String(),
			RoleID:         role.ID,
			Name:           stepName,
			SequenceNumber: i + 1,
			StepType:       models.StepTypeAction,
			CreatedAt:      time.Now(),
		}
		store.steps[step.ID] = step
		steps = append(steps, step)
	}
	return role, steps
}

func seedTask(store *memStore, status models.TaskStatus) *models.Task {
	task := &models.Task{
		ID:       uuid.New().String(),
		Slug:     "TSK-" + uuid.New().String()[:8],
		Name:     "test task",
		Status:   status,
		Priority: models.TaskPriorityMedium,
	}
	store.tasks[task.ID] = task
	return task
}

func markStepCompleted(store *memStore, taskID, roleID, stepID, executionID string) {
	now := time.Now()
	result := models.ResultSuccess
	store.progress = append(store.progress, &models.WorkflowStepProgress{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		StepID:      stepID,
		RoleID:      roleID,
		TaskID:      &taskID,
		Status:      models.StepCompleted,
		Result:      &result,
		StartedAt:   &now,
		CompletedAt: &now,
	})
}

func testContext() context.Context {
	return context.Background()
}
