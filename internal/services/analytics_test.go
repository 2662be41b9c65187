package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-mcp/pkg/models"
)

func TestCalculateProgressEstimates(t *testing.T) {
	agg := NewProgressAggregator(newMemStore())

	tests := []struct {
		name       string
		completed  int
		total      int
		percentage int
		estimate   string
	}{
		{"mid-flight", 3, 10, 30, "7 steps remaining"},
		{"one left", 7, 8, 87, "1 step remaining"},
		{"near completion", 9, 10, 90, "near completion"},
		{"done", 10, 10, 100, "all steps completed"},
		{"no total known", 0, 0, 0, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			progress := agg.CalculateProgress(&models.WorkflowExecution{
				ID:             uuid.New().String(),
				StepsCompleted: tt.completed,
				TotalSteps:     tt.total,
			})
			assert.Equal(t, tt.percentage, progress.Percentage)
			assert.Equal(t, tt.estimate, progress.Estimate)
		})
	}
}

func TestCalculateProgressDefensiveDefaults(t *testing.T) {
	agg := NewProgressAggregator(newMemStore())

	progress := agg.CalculateProgress(nil)
	assert.Equal(t, 0, progress.Percentage)
	assert.Equal(t, "unknown", progress.Estimate)

	// Malformed counters never produce negative or >100 output.
	progress = agg.CalculateProgress(&models.WorkflowExecution{
		StepsCompleted: -4,
		TotalSteps:     -1,
	})
	assert.Equal(t, 0, progress.Percentage)
	assert.Equal(t, 0, progress.StepsRemaining)

	progress = agg.CalculateProgress(&models.WorkflowExecution{
		StepsCompleted: 12,
		TotalSteps:     10,
	})
	assert.Equal(t, 100, progress.Percentage)
	assert.Equal(t, 0, progress.StepsRemaining)
}

func TestRoleMetricsGroupsActiveExecutions(t *testing.T) {
	store := newMemStore()
	roleA, _ := seedRole(store, models.RoleArchitect, "a")
	roleB, _ := seedRole(store, models.RoleSeniorDeveloper, "b")

	add := func(roleID string, pct int, completed *time.Time) {
		id := uuid.New().String()
		store.execs[id] = &models.WorkflowExecution{
			ID:                 id,
			CurrentRoleID:      roleID,
			ProgressPercentage: pct,
			Version:            1,
			StartedAt:          time.Now(),
			CompletedAt:        completed,
		}
	}
	now := time.Now()
	add(roleA.ID, 20, nil)
	add(roleA.ID, 60, nil)
	add(roleB.ID, 50, nil)
	add(roleB.ID, 100, &now) // completed, excluded

	metrics, err := NewProgressAggregator(store).RoleMetrics(testContext())
	require.NoError(t, err)

	byRole := map[string]RoleProgressMetric{}
	for _, m := range metrics {
		byRole[m.RoleID] = m
	}
	require.Len(t, byRole, 2)
	assert.Equal(t, 2, byRole[roleA.ID].ActiveExecutions)
	assert.Equal(t, 40, byRole[roleA.ID].AverageProgress)
	assert.Equal(t, 1, byRole[roleB.ID].ActiveExecutions)
	assert.Equal(t, 50, byRole[roleB.ID].AverageProgress)
}

func TestGenerateCompletionSummary(t *testing.T) {
	store := newMemStore()
	role, _ := seedRole(store, models.RoleIntegrationEngineer, "merge")

	started := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	completed := started.Add(2*time.Hour + 35*time.Minute)
	exec := &models.WorkflowExecution{
		ID:               uuid.New().String(),
		CurrentRoleID:    role.ID,
		Mode:             models.ModeHybrid,
		StepsCompleted:   12,
		TotalSteps:       12,
		RecoveryAttempts: 1,
		LastError:        &models.ExecutionError{Message: "flaky network", OccurredAt: started},
		Version:          1,
		StartedAt:        started,
		CompletedAt:      &completed,
	}
	store.execs[exec.ID] = exec

	summary, err := NewProgressAggregator(store).GenerateCompletionSummary(testContext(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, "2h 35m", summary.Duration)
	assert.Equal(t, 12, summary.StepsCompleted)
	assert.Equal(t, role.ID, summary.FinalRoleID)
	assert.Equal(t, models.ModeHybrid, summary.Quality.Mode)
	assert.Equal(t, 1, summary.Quality.RecoveryAttempts)
	assert.True(t, summary.Quality.HasErrors)
}

func TestGenerateCompletionSummaryDefaults(t *testing.T) {
	store := newMemStore()
	agg := NewProgressAggregator(store)

	// Unknown execution is the one summary error.
	_, err := agg.GenerateCompletionSummary(testContext(), "missing")
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, CodeOf(err))

	// Clock skew (completion before start) degrades to "0h 0m".
	started := time.Now()
	before := started.Add(-time.Hour)
	exec := &models.WorkflowExecution{
		ID:        uuid.New().String(),
		Version:   1,
		StartedAt: started, CompletedAt: &before,
	}
	store.execs[exec.ID] = exec

	summary, err := agg.GenerateCompletionSummary(testContext(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, "0h 0m", summary.Duration)
	assert.False(t, summary.Quality.HasErrors)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0h 0m", formatDuration(0))
	assert.Equal(t, "0h 59m", formatDuration(59*time.Minute+59*time.Second))
	assert.Equal(t, "26h 5m", formatDuration(26*time.Hour+5*time.Minute))
	assert.Equal(t, "0h 0m", formatDuration(-time.Minute))
}
