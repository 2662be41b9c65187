package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"workflow-mcp/pkg/models"
)

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, Schema); err != nil {
		t.Fatal(err)
	}

	store := NewPostgresStore(pool)

	task := &models.Task{
		ID:        uuid.New().String(),
		Slug:      "auth-feature",
		Name:      "Add authentication",
		Status:    models.TaskStatusNotStarted,
		Priority:  models.TaskPriorityHigh,
		OwnerRole: "boomerang",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	role := &models.WorkflowRole{
		ID:        uuid.New().String(),
		Name:      models.RoleArchitect,
		Priority:  3,
		CreatedAt: time.Now(),
	}

	t.Run("task round trip", func(t *testing.T) {
		require.NoError(t, store.CreateTask(ctx, task))

		got, err := store.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task.Slug, got.Slug)
		assert.Equal(t, models.TaskStatusNotStarted, got.Status)

		bySlug, err := store.GetTaskBySlug(ctx, "auth-feature")
		require.NoError(t, err)
		assert.Equal(t, task.ID, bySlug.ID)

		require.NoError(t, store.UpdateTaskStatus(ctx, task.ID, models.TaskStatusInProgress))
		got, err = store.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusInProgress, got.Status)

		_, err = store.GetTask(ctx, uuid.New().String())
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.UpdateTaskStatus(ctx, uuid.New().String(), models.TaskStatusPaused), ErrNotFound)
	})

	var steps []*models.WorkflowStep

	t.Run("steps keep sequence order and details", func(t *testing.T) {
		require.NoError(t, store.CreateRole(ctx, role))

		names := []string{"analyze-requirements", "draft-design", "handoff"}
		// Insert out of order on purpose.
		for _, i := range []int{2, 0, 1} {
			step := &models.WorkflowStep{
				ID:             uuid.New().String(),
				RoleID:         role.ID,
				Name:           names[i],
				SequenceNumber: i + 1,
				StepType:       models.StepTypeValidation,
				CreatedAt:      time.Now(),
			}
			if i == 0 {
				step.Conditions = []models.StepCondition{{
					ID:       uuid.New().String(),
					StepID:   step.ID,
					Name:     "task must be active",
					Type:     models.ConditionTaskStatus,
					Required: true,
					Logic: models.ConditionLogic{
						TaskStatus: &models.TaskStatusLogic{RequiredStatus: models.TaskStatusInProgress},
					},
				}}
				step.Actions = []models.StepAction{{
					ID:            uuid.New().String(),
					StepID:        step.ID,
					Name:          "record findings",
					ActionType:    "update_context",
					SequenceOrder: 1,
				}}
			}
			require.NoError(t, store.CreateStep(ctx, step))
		}

		var err error
		steps, err = store.ListRoleSteps(ctx, role.ID)
		require.NoError(t, err)
		require.Len(t, steps, 3)
		for i, step := range steps {
			assert.Equal(t, i+1, step.SequenceNumber)
			assert.Equal(t, names[i], step.Name)
		}

		require.Len(t, steps[0].Conditions, 1)
		cond := steps[0].Conditions[0]
		assert.Equal(t, models.ConditionTaskStatus, cond.Type)
		require.NotNil(t, cond.Logic.TaskStatus)
		assert.Equal(t, models.TaskStatusInProgress, cond.Logic.TaskStatus.RequiredStatus)
		require.Len(t, steps[0].Actions, 1)

		byName, err := store.FindStepByName(ctx, role.ID, "draft-design")
		require.NoError(t, err)
		assert.Equal(t, steps[1].ID, byName.ID)
	})

	exec := &models.WorkflowExecution{
		ID:            uuid.New().String(),
		TaskID:        &task.ID,
		CurrentRoleID: role.ID,
		Mode:          models.ModeGuided,
		Phase:         models.PhaseInitialized,
		TotalSteps:    3,
		Context:       map[string]any{"origin": "test"},
		Version:       1,
		StartedAt:     time.Now(),
	}

	t.Run("execution version compare and swap", func(t *testing.T) {
		exec.CurrentStepID = &steps[0].ID
		require.NoError(t, store.CreateExecution(ctx, exec))

		got, err := store.GetExecution(ctx, exec.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Version)
		assert.Equal(t, "test", got.Context["origin"])
		require.NotNil(t, got.TaskID)
		assert.Equal(t, task.ID, *got.TaskID)

		got.StepsCompleted = 1
		got.Phase = models.PhaseInProgress
		require.NoError(t, store.UpdateExecution(ctx, got))
		assert.Equal(t, 2, got.Version, "version bumped in place on success")

		// A writer holding the old version loses.
		stale := *exec
		stale.StepsCompleted = 99
		assert.ErrorIs(t, store.UpdateExecution(ctx, &stale), ErrVersionConflict)

		missing := *got
		missing.ID = uuid.New().String()
		assert.ErrorIs(t, store.UpdateExecution(ctx, &missing), ErrNotFound)

		byTask, err := store.GetExecutionByTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, exec.ID, byTask.ID)
		assert.Equal(t, 1, byTask.StepsCompleted)

		active, err := store.ListActiveExecutions(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, exec.ID, active[0].ID)
	})

	t.Run("step progress latest attempt wins", func(t *testing.T) {
		first := time.Now().Add(-time.Minute)
		failed := models.StepFailed
		failure := models.ResultFailure
		require.NoError(t, store.CreateStepProgress(ctx, &models.WorkflowStepProgress{
			ID:           uuid.New().String(),
			ExecutionID:  exec.ID,
			StepID:       steps[0].ID,
			RoleID:       role.ID,
			TaskID:       &task.ID,
			Status:       failed,
			Result:       &failure,
			ErrorDetails: []string{"boom"},
			StartedAt:    &first,
		}))

		second := time.Now()
		current := &models.WorkflowStepProgress{
			ID:          uuid.New().String(),
			ExecutionID: exec.ID,
			StepID:      steps[0].ID,
			RoleID:      role.ID,
			TaskID:      &task.ID,
			Status:      models.StepInProgress,
			ExecutionData: &models.StepExecutionData{
				Phase:            "executing",
				CompletedActions: 1,
				TotalActions:     2,
			},
			StartedAt: &second,
		}
		require.NoError(t, store.CreateStepProgress(ctx, current))

		latest, err := store.LatestStepProgress(ctx, exec.ID, steps[0].ID)
		require.NoError(t, err)
		assert.Equal(t, current.ID, latest.ID)
		require.NotNil(t, latest.ExecutionData)
		assert.Equal(t, 1, latest.ExecutionData.CompletedActions)

		// Completing the attempt makes the step count for the task+role.
		completed := models.StepCompleted
		success := models.ResultSuccess
		durationMs := int64(61000)
		now := time.Now()
		current.Status = completed
		current.Result = &success
		current.DurationMs = &durationMs
		current.CompletedAt = &now
		require.NoError(t, store.UpdateStepProgress(ctx, current))

		done, err := store.CompletedStepIDs(ctx, task.ID, role.ID)
		require.NoError(t, err)
		assert.True(t, done[steps[0].ID])
		assert.Len(t, done, 1)

		all, err := store.ListExecutionProgress(ctx, exec.ID)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("subtask batch update is transactional", func(t *testing.T) {
		plan := &models.ImplementationPlan{
			ID:        uuid.New().String(),
			TaskID:    task.ID,
			Overview:  "three batches",
			CreatedBy: "architect",
			CreatedAt: time.Now(),
		}
		require.NoError(t, store.CreatePlan(ctx, plan))

		batch := "B001"
		var ids []string
		for i := 1; i <= 3; i++ {
			st := &models.Subtask{
				ID:             uuid.New().String(),
				PlanID:         plan.ID,
				Name:           "subtask",
				Status:         models.SubtaskNotStarted,
				BatchID:        &batch,
				SequenceNumber: i,
			}
			require.NoError(t, store.CreateSubtask(ctx, st))
			ids = append(ids, st.ID)
		}

		// A failing callback rolls back every write it made.
		boom := assert.AnError
		err := store.WithTx(ctx, func(tx Store) error {
			for _, id := range ids[:2] {
				if err := tx.UpdateSubtaskStatus(ctx, id, models.SubtaskCompleted); err != nil {
					return err
				}
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		subtasks, err := store.ListBatchSubtasks(ctx, plan.ID, batch)
		require.NoError(t, err)
		require.Len(t, subtasks, 3)
		for _, st := range subtasks {
			assert.Equal(t, models.SubtaskNotStarted, st.Status)
		}

		// A successful transaction lands atomically and stamps timestamps.
		err = store.WithTx(ctx, func(tx Store) error {
			for _, id := range ids {
				if err := tx.UpdateSubtaskStatus(ctx, id, models.SubtaskInProgress); err != nil {
					return err
				}
				if err := tx.UpdateSubtaskStatus(ctx, id, models.SubtaskCompleted); err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)

		subtasks, err = store.ListBatchSubtasks(ctx, plan.ID, batch)
		require.NoError(t, err)
		for _, st := range subtasks {
			assert.Equal(t, models.SubtaskCompleted, st.Status)
			assert.NotNil(t, st.StartedAt)
			assert.NotNil(t, st.CompletedAt)
		}
	})

	t.Run("raw query rows", func(t *testing.T) {
		rows, err := store.Query(ctx, `SELECT slug, status FROM tasks WHERE id = $1`, task.ID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "auth-feature", rows[0]["slug"])
	})
}
