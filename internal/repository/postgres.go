package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"workflow-mcp/pkg/models"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a PostgreSQL implementation of the Store interface.
type PostgresStore struct {
	db   querier
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool, pool: pool}
}

// WithTx runs fn inside a single transaction. When the store is already
// transaction-bound, fn joins the existing transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresStore{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Query runs a raw statement and returns generic rows keyed by column name.
func (s *PostgresStore) Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// --- Tasks ---

// CreateTask inserts a task.
func (s *PostgresStore) CreateTask(ctx context.Context, task *models.Task) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tasks (id, slug, name, status, priority, owner_role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		task.ID, task.Slug, task.Name, task.Status, task.Priority, task.OwnerRole, task.CreatedAt, task.UpdatedAt)
	return err
}

// GetTask retrieves a task by id.
func (s *PostgresStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return s.scanTask(s.db.QueryRow(ctx,
		`SELECT id, slug, name, status, priority, owner_role, created_at, updated_at
		 FROM tasks WHERE id = $1`, id))
}

// GetTaskBySlug retrieves a task by its human-readable slug.
func (s *PostgresStore) GetTaskBySlug(ctx context.Context, slug string) (*models.Task, error) {
	return s.scanTask(s.db.QueryRow(ctx,
		`SELECT id, slug, name, status, priority, owner_role, created_at, updated_at
		 FROM tasks WHERE slug = $1`, slug))
}

func (s *PostgresStore) scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Status, &t.Priority, &t.OwnerRole, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTaskStatus updates a task's status and bumps updated_at.
func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tasks SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Roles and steps ---

// CreateRole inserts a workflow role.
func (s *PostgresStore) CreateRole(ctx context.Context, role *models.WorkflowRole) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflow_roles (id, name, description, priority, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		role.ID, role.Name, role.Description, role.Priority, role.CreatedAt)
	return err
}

// GetRole retrieves a role by id.
func (s *PostgresStore) GetRole(ctx context.Context, id string) (*models.WorkflowRole, error) {
	return s.scanRole(s.db.QueryRow(ctx,
		`SELECT id, name, description, priority, created_at FROM workflow_roles WHERE id = $1`, id))
}

// GetRoleByName retrieves a role by its pipeline name.
func (s *PostgresStore) GetRoleByName(ctx context.Context, name models.RoleName) (*models.WorkflowRole, error) {
	return s.scanRole(s.db.QueryRow(ctx,
		`SELECT id, name, description, priority, created_at FROM workflow_roles WHERE name = $1`, name))
}

func (s *PostgresStore) scanRole(row pgx.Row) (*models.WorkflowRole, error) {
	var r models.WorkflowRole
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Priority, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRoles returns all roles ordered by pipeline priority.
func (s *PostgresStore) ListRoles(ctx context.Context) ([]*models.WorkflowRole, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, description, priority, created_at FROM workflow_roles ORDER BY priority`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*models.WorkflowRole
	for rows.Next() {
		var r models.WorkflowRole
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.Priority, &r.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, &r)
	}
	return roles, rows.Err()
}

// CreateStep inserts a step along with its conditions and actions.
func (s *PostgresStore) CreateStep(ctx context.Context, step *models.WorkflowStep) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflow_steps (id, role_id, name, description, sequence_number, step_type, behavioral_guidance, approach_guidance, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		step.ID, step.RoleID, step.Name, step.Description, step.SequenceNumber,
		step.StepType, step.BehavioralGuidance, step.ApproachGuidance, step.CreatedAt)
	if err != nil {
		return err
	}
	for _, c := range step.Conditions {
		_, err := s.db.Exec(ctx,
			`INSERT INTO step_conditions (id, step_id, name, type, required, logic)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, step.ID, c.Name, c.Type, c.Required, c.Logic)
		if err != nil {
			return err
		}
	}
	for _, a := range step.Actions {
		_, err := s.db.Exec(ctx,
			`INSERT INTO step_actions (id, step_id, name, action_type, action_data, sequence_order)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			a.ID, step.ID, a.Name, a.ActionType, a.ActionData, a.SequenceOrder)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetStep retrieves a step with its conditions and actions.
func (s *PostgresStore) GetStep(ctx context.Context, id string) (*models.WorkflowStep, error) {
	step, err := s.scanStep(s.db.QueryRow(ctx,
		`SELECT id, role_id, name, description, sequence_number, step_type, behavioral_guidance, approach_guidance, created_at
		 FROM workflow_steps WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := s.attachStepDetails(ctx, []*models.WorkflowStep{step}); err != nil {
		return nil, err
	}
	return step, nil
}

// FindStepByName retrieves a role's step by name.
func (s *PostgresStore) FindStepByName(ctx context.Context, roleID, name string) (*models.WorkflowStep, error) {
	step, err := s.scanStep(s.db.QueryRow(ctx,
		`SELECT id, role_id, name, description, sequence_number, step_type, behavioral_guidance, approach_guidance, created_at
		 FROM workflow_steps WHERE role_id = $1 AND name = $2`, roleID, name))
	if err != nil {
		return nil, err
	}
	if err := s.attachStepDetails(ctx, []*models.WorkflowStep{step}); err != nil {
		return nil, err
	}
	return step, nil
}

func (s *PostgresStore) scanStep(row pgx.Row) (*models.WorkflowStep, error) {
	var st models.WorkflowStep
	err := row.Scan(&st.ID, &st.RoleID, &st.Name, &st.Description, &st.SequenceNumber,
		&st.StepType, &st.BehavioralGuidance, &st.ApproachGuidance, &st.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListRoleSteps returns a role's steps in sequence order, with
// conditions and actions attached.
func (s *PostgresStore) ListRoleSteps(ctx context.Context, roleID string) ([]*models.WorkflowStep, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, role_id, name, description, sequence_number, step_type, behavioral_guidance, approach_guidance, created_at
		 FROM workflow_steps WHERE role_id = $1 ORDER BY sequence_number`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*models.WorkflowStep
	for rows.Next() {
		var st models.WorkflowStep
		if err := rows.Scan(&st.ID, &st.RoleID, &st.Name, &st.Description, &st.SequenceNumber,
			&st.StepType, &st.BehavioralGuidance, &st.ApproachGuidance, &st.CreatedAt); err != nil {
			return nil, err
		}
		steps = append(steps, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachStepDetails(ctx, steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// attachStepDetails loads conditions and actions for the given steps in
// two batched queries.
func (s *PostgresStore) attachStepDetails(ctx context.Context, steps []*models.WorkflowStep) error {
	if len(steps) == 0 {
		return nil
	}
	ids := make([]string, len(steps))
	byID := make(map[string]*models.WorkflowStep, len(steps))
	for i, st := range steps {
		ids[i] = st.ID
		byID[st.ID] = st
	}

	condRows, err := s.db.Query(ctx,
		`SELECT id, step_id, name, type, required, logic
		 FROM step_conditions WHERE step_id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	defer condRows.Close()
	for condRows.Next() {
		var c models.StepCondition
		if err := condRows.Scan(&c.ID, &c.StepID, &c.Name, &c.Type, &c.Required, &c.Logic); err != nil {
			return err
		}
		byID[c.StepID].Conditions = append(byID[c.StepID].Conditions, c)
	}
	if err := condRows.Err(); err != nil {
		return err
	}

	actRows, err := s.db.Query(ctx,
		`SELECT id, step_id, name, action_type, action_data, sequence_order
		 FROM step_actions WHERE step_id = ANY($1) ORDER BY sequence_order`, ids)
	if err != nil {
		return err
	}
	defer actRows.Close()
	for actRows.Next() {
		var a models.StepAction
		if err := actRows.Scan(&a.ID, &a.StepID, &a.Name, &a.ActionType, &a.ActionData, &a.SequenceOrder); err != nil {
			return err
		}
		byID[a.StepID].Actions = append(byID[a.StepID].Actions, a)
	}
	return actRows.Err()
}

// --- Executions ---

const executionColumns = `id, task_id, current_role_id, current_step_id, mode, phase,
	steps_completed, total_steps, progress_percentage, recovery_attempts, max_recovery_attempts,
	last_error, context, version, started_at, completed_at`

// CreateExecution inserts a new execution row.
func (s *PostgresStore) CreateExecution(ctx context.Context, exec *models.WorkflowExecution) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflow_executions (`+executionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		exec.ID, exec.TaskID, exec.CurrentRoleID, exec.CurrentStepID, exec.Mode, exec.Phase,
		exec.StepsCompleted, exec.TotalSteps, exec.ProgressPercentage, exec.RecoveryAttempts,
		exec.MaxRecoveryAttempts, exec.LastError, exec.Context, exec.Version, exec.StartedAt, exec.CompletedAt)
	return err
}

// GetExecution retrieves an execution by id.
func (s *PostgresStore) GetExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	return s.scanExecution(s.db.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions WHERE id = $1`, id))
}

// GetExecutionByTask retrieves the most recent execution for a task.
func (s *PostgresStore) GetExecutionByTask(ctx context.Context, taskID string) (*models.WorkflowExecution, error) {
	return s.scanExecution(s.db.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions
		 WHERE task_id = $1 ORDER BY started_at DESC LIMIT 1`, taskID))
}

func (s *PostgresStore) scanExecution(row pgx.Row) (*models.WorkflowExecution, error) {
	var e models.WorkflowExecution
	err := row.Scan(&e.ID, &e.TaskID, &e.CurrentRoleID, &e.CurrentStepID, &e.Mode, &e.Phase,
		&e.StepsCompleted, &e.TotalSteps, &e.ProgressPercentage, &e.RecoveryAttempts,
		&e.MaxRecoveryAttempts, &e.LastError, &e.Context, &e.Version, &e.StartedAt, &e.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateExecution rewrites the full execution row with a version
// compare-and-swap. exec.Version must be the version the caller read;
// it is incremented in place on success.
func (s *PostgresStore) UpdateExecution(ctx context.Context, exec *models.WorkflowExecution) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE workflow_executions SET
			task_id = $2, current_role_id = $3, current_step_id = $4, mode = $5, phase = $6,
			steps_completed = $7, total_steps = $8, progress_percentage = $9,
			recovery_attempts = $10, max_recovery_attempts = $11, last_error = $12,
			context = $13, version = version + 1, completed_at = $14
		 WHERE id = $1 AND version = $15`,
		exec.ID, exec.TaskID, exec.CurrentRoleID, exec.CurrentStepID, exec.Mode, exec.Phase,
		exec.StepsCompleted, exec.TotalSteps, exec.ProgressPercentage,
		exec.RecoveryAttempts, exec.MaxRecoveryAttempts, exec.LastError,
		exec.Context, exec.CompletedAt, exec.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Row either missing or moved on under us; disambiguate.
		if _, getErr := s.GetExecution(ctx, exec.ID); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	exec.Version++
	return nil
}

// ListActiveExecutions returns executions with no completed_at,
// newest first.
func (s *PostgresStore) ListActiveExecutions(ctx context.Context) ([]*models.WorkflowExecution, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions
		 WHERE completed_at IS NULL ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*models.WorkflowExecution
	for rows.Next() {
		var e models.WorkflowExecution
		if err := rows.Scan(&e.ID, &e.TaskID, &e.CurrentRoleID, &e.CurrentStepID, &e.Mode, &e.Phase,
			&e.StepsCompleted, &e.TotalSteps, &e.ProgressPercentage, &e.RecoveryAttempts,
			&e.MaxRecoveryAttempts, &e.LastError, &e.Context, &e.Version, &e.StartedAt, &e.CompletedAt); err != nil {
			return nil, err
		}
		execs = append(execs, &e)
	}
	return execs, rows.Err()
}

// --- Step progress ---

const progressColumns = `id, execution_id, step_id, role_id, task_id, status, result,
	execution_data, error_details, duration_ms, started_at, completed_at, failed_at`

// CreateStepProgress inserts a progress record.
func (s *PostgresStore) CreateStepProgress(ctx context.Context, p *models.WorkflowStepProgress) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflow_step_progress (`+progressColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.ExecutionID, p.StepID, p.RoleID, p.TaskID, p.Status, p.Result,
		p.ExecutionData, p.ErrorDetails, p.DurationMs, p.StartedAt, p.CompletedAt, p.FailedAt)
	return err
}

// UpdateStepProgress rewrites a progress record.
func (s *PostgresStore) UpdateStepProgress(ctx context.Context, p *models.WorkflowStepProgress) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE workflow_step_progress SET
			status = $2, result = $3, execution_data = $4, error_details = $5,
			duration_ms = $6, completed_at = $7, failed_at = $8
		 WHERE id = $1`,
		p.ID, p.Status, p.Result, p.ExecutionData, p.ErrorDetails,
		p.DurationMs, p.CompletedAt, p.FailedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestStepProgress returns the most recent attempt for the pair.
func (s *PostgresStore) LatestStepProgress(ctx context.Context, executionID, stepID string) (*models.WorkflowStepProgress, error) {
	return s.scanProgress(s.db.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM workflow_step_progress
		 WHERE execution_id = $1 AND step_id = $2
		 ORDER BY started_at DESC NULLS LAST LIMIT 1`, executionID, stepID))
}

func (s *PostgresStore) scanProgress(row pgx.Row) (*models.WorkflowStepProgress, error) {
	var p models.WorkflowStepProgress
	err := row.Scan(&p.ID, &p.ExecutionID, &p.StepID, &p.RoleID, &p.TaskID, &p.Status, &p.Result,
		&p.ExecutionData, &p.ErrorDetails, &p.DurationMs, &p.StartedAt, &p.CompletedAt, &p.FailedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) listProgress(ctx context.Context, sql string, args ...any) ([]*models.WorkflowStepProgress, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.WorkflowStepProgress
	for rows.Next() {
		var p models.WorkflowStepProgress
		if err := rows.Scan(&p.ID, &p.ExecutionID, &p.StepID, &p.RoleID, &p.TaskID, &p.Status, &p.Result,
			&p.ExecutionData, &p.ErrorDetails, &p.DurationMs, &p.StartedAt, &p.CompletedAt, &p.FailedAt); err != nil {
			return nil, err
		}
		records = append(records, &p)
	}
	return records, rows.Err()
}

// ListExecutionProgress returns all attempts for an execution,
// most recent first.
func (s *PostgresStore) ListExecutionProgress(ctx context.Context, executionID string) ([]*models.WorkflowStepProgress, error) {
	return s.listProgress(ctx,
		`SELECT `+progressColumns+` FROM workflow_step_progress
		 WHERE execution_id = $1 ORDER BY started_at DESC NULLS LAST`, executionID)
}

// ListRoleProgress returns all attempts recorded for a role.
func (s *PostgresStore) ListRoleProgress(ctx context.Context, roleID string) ([]*models.WorkflowStepProgress, error) {
	return s.listProgress(ctx,
		`SELECT `+progressColumns+` FROM workflow_step_progress
		 WHERE role_id = $1 ORDER BY started_at DESC NULLS LAST`, roleID)
}

// CompletedStepIDs returns step ids with a COMPLETED attempt for the
// given task and role.
func (s *PostgresStore) CompletedStepIDs(ctx context.Context, taskID, roleID string) (map[string]bool, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT step_id FROM workflow_step_progress
		 WHERE task_id = $1 AND role_id = $2 AND status = $3`,
		taskID, roleID, models.StepCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	completed := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		completed[id] = true
	}
	return completed, rows.Err()
}

// --- Plans and subtasks ---

// CreatePlan inserts an implementation plan.
func (s *PostgresStore) CreatePlan(ctx context.Context, plan *models.ImplementationPlan) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO implementation_plans (id, task_id, overview, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		plan.ID, plan.TaskID, plan.Overview, plan.CreatedBy, plan.CreatedAt)
	return err
}

// GetPlan retrieves a plan by id.
func (s *PostgresStore) GetPlan(ctx context.Context, id string) (*models.ImplementationPlan, error) {
	var p models.ImplementationPlan
	err := s.db.QueryRow(ctx,
		`SELECT id, task_id, overview, created_by, created_at FROM implementation_plans WHERE id = $1`, id).
		Scan(&p.ID, &p.TaskID, &p.Overview, &p.CreatedBy, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const subtaskColumns = `id, plan_id, name, description, status, batch_id, batch_title,
	sequence_number, started_at, completed_at`

// CreateSubtask inserts a subtask.
func (s *PostgresStore) CreateSubtask(ctx context.Context, st *models.Subtask) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO subtasks (`+subtaskColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		st.ID, st.PlanID, st.Name, st.Description, st.Status, st.BatchID, st.BatchTitle,
		st.SequenceNumber, st.StartedAt, st.CompletedAt)
	return err
}

// GetSubtask retrieves a subtask by id.
func (s *PostgresStore) GetSubtask(ctx context.Context, id string) (*models.Subtask, error) {
	return s.scanSubtask(s.db.QueryRow(ctx,
		`SELECT `+subtaskColumns+` FROM subtasks WHERE id = $1`, id))
}

func (s *PostgresStore) scanSubtask(row pgx.Row) (*models.Subtask, error) {
	var st models.Subtask
	err := row.Scan(&st.ID, &st.PlanID, &st.Name, &st.Description, &st.Status, &st.BatchID,
		&st.BatchTitle, &st.SequenceNumber, &st.StartedAt, &st.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *PostgresStore) listSubtasks(ctx context.Context, sql string, args ...any) ([]*models.Subtask, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subtasks []*models.Subtask
	for rows.Next() {
		var st models.Subtask
		if err := rows.Scan(&st.ID, &st.PlanID, &st.Name, &st.Description, &st.Status, &st.BatchID,
			&st.BatchTitle, &st.SequenceNumber, &st.StartedAt, &st.CompletedAt); err != nil {
			return nil, err
		}
		subtasks = append(subtasks, &st)
	}
	return subtasks, rows.Err()
}

// ListPlanSubtasks returns all subtasks of a plan in sequence order.
func (s *PostgresStore) ListPlanSubtasks(ctx context.Context, planID string) ([]*models.Subtask, error) {
	return s.listSubtasks(ctx,
		`SELECT `+subtaskColumns+` FROM subtasks WHERE plan_id = $1 ORDER BY sequence_number`, planID)
}

// ListBatchSubtasks returns the subtasks sharing a batch id.
func (s *PostgresStore) ListBatchSubtasks(ctx context.Context, planID, batchID string) ([]*models.Subtask, error) {
	return s.listSubtasks(ctx,
		`SELECT `+subtaskColumns+` FROM subtasks
		 WHERE plan_id = $1 AND batch_id = $2 ORDER BY sequence_number`, planID, batchID)
}

// UpdateSubtaskStatus updates a subtask's status, stamping started_at on
// the transition into in-progress and completed_at on completion.
func (s *PostgresStore) UpdateSubtaskStatus(ctx context.Context, id string, status models.SubtaskStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE subtasks SET status = $1,
			started_at = CASE WHEN $1 = 'in-progress' AND started_at IS NULL THEN now() ELSE started_at END,
			completed_at = CASE WHEN $1 = 'completed' THEN now() ELSE completed_at END
		 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
