package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-mcp/pkg/models"
)

func TestNextAvailableStepInSequenceOrder(t *testing.T) {
	store := newMemStore()
	role, steps := seedRole(store, models.RoleArchitect, "analyze-requirements", "draft-design")
	task := seedTask(store, models.TaskStatusInProgress)
	executionID := uuid.New().String()

	seq := NewStepSequencer(store)
	ctx := testContext()

	next, err := seq.NextAvailableStep(ctx, task.ID, role.ID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, steps[0].ID, next.ID)

	markStepCompleted(store, task.ID, role.ID, steps[0].ID, executionID)

	next, err = seq.NextAvailableStep(ctx, task.ID, role.ID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, steps[1].ID, next.ID)

	markStepCompleted(store, task.ID, role.ID, steps[1].ID, executionID)

	next, err = seq.NextAvailableStep(ctx, task.ID, role.ID)
	require.NoError(t, err)
	assert.Nil(t, next, "all steps completed should signal role finished, not error")
}

func TestNextAvailableStepStrictlyIncreasing(t *testing.T) {
	store := newMemStore()
	role, steps := seedRole(store, models.RoleSeniorDeveloper,
		"load-plan", "implement-batch", "run-tests", "update-status", "commit")
	task := seedTask(store, models.TaskStatusInProgress)
	executionID := uuid.New().String()

	seq := NewStepSequencer(store)
	ctx := testContext()

	lastSequence := 0
	for range steps {
		next, err := seq.NextAvailableStep(ctx, task.ID, role.ID)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Greater(t, next.SequenceNumber, lastSequence)
		lastSequence = next.SequenceNumber
		markStepCompleted(store, task.ID, role.ID, next.ID, executionID)
	}

	next, err := seq.NextAvailableStep(ctx, task.ID, role.ID)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNextAvailableStepIgnoresFailedAttempts(t *testing.T) {
	store := newMemStore()
	role, steps := seedRole(store, models.RoleResearcher, "gather-context")
	task := seedTask(store, models.TaskStatusInProgress)

	failed := models.StepFailed
	taskID := task.ID
	store.progress = append(store.progress, &models.WorkflowStepProgress{
		ID:          uuid.New().String(),
		ExecutionID: uuid.New().String(),
		StepID:      steps[0].ID,
		RoleID:      role.ID,
		TaskID:      &taskID,
		Status:      failed,
	})

	seq := NewStepSequencer(store)
	next, err := seq.NextAvailableStep(testContext(), task.ID, role.ID)
	require.NoError(t, err)
	require.NotNil(t, next, "a failed attempt must not consume the step")
	assert.Equal(t, steps[0].ID, next.ID)
}
