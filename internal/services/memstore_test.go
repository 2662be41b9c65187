package services

import (
	"context"
	"sort"

	"workflow-mcp/internal/repository"
	"workflow-mcp/pkg/models"
)

// memStore is an in-memory Store for engine tests.
type memStore struct {
	tasks    map[string]*models.Task
	roles    map[string]*models.WorkflowRole
	steps    map[string]*models.WorkflowStep
	execs    map[string]*models.WorkflowExecution
	progress []*models.WorkflowStepProgress
	plans    map[string]*models.ImplementationPlan
	subtasks map[string]*models.Subtask

	// queryFn backs the raw Query primitive.
	queryFn func(sql string, args ...any) ([]map[string]any, error)
	// failNextUpdate simulates a mid-transaction failure.
	failNextUpdate error
}

func newMemStore() *memStore {
	return &memStore{
		tasks:    map[string]*models.Task{},
		roles:    map[string]*models.WorkflowRole{},
		steps:    map[string]*models.WorkflowStep{},
		execs:    map[string]*models.WorkflowExecution{},
		plans:    map[string]*models.ImplementationPlan{},
		subtasks: map[string]*models.Subtask{},
	}
}

func (m *memStore) CreateTask(_ context.Context, task *models.Task) error {
	m.tasks[task.ID] = task
	return nil
}

func (m *memStore) GetTask(_ context.Context, id string) (*models.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (m *memStore) GetTaskBySlug(_ context.Context, slug string) (*models.Task, error) {
	for _, t := range m.tasks {
		if t.Slug == slug {
			return t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) UpdateTaskStatus(_ context.Context, id string, status models.TaskStatus) error {
	t, ok := m.tasks[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.Status = status
	return nil
}

func (m *memStore) CreateRole(_ context.Context, role *models.WorkflowRole) error {
	m.roles[role.ID] = role
	return nil
}

func (m *memStore) GetRole(_ context.Context, id string) (*models.WorkflowRole, error) {
	r, ok := m.roles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r, nil
}

func (m *memStore) GetRoleByName(_ context.Context, name models.RoleName) (*models.WorkflowRole, error) {
	for _, r := range m.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) ListRoles(_ context.Context) ([]*models.WorkflowRole, error) {
	var roles []*models.WorkflowRole
	for _, r := range m.roles {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Priority < roles[j].Priority })
	return roles, nil
}

func (m *memStore) CreateStep(_ context.Context, step *models.WorkflowStep) error {
	m.steps[step.ID] = step
	return nil
}

func (m *memStore) GetStep(_ context.Context, id string) (*models.WorkflowStep, error) {
	s, ok := m.steps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}

func (m *memStore) FindStepByName(_ context.Context, roleID, name string) (*models.WorkflowStep, error) {
	for _, s := range m.steps {
		if s.RoleID == roleID && s.Name == name {
			return s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) ListRoleSteps(_ context.Context, roleID string) ([]*models.WorkflowStep, error) {
	var steps []*models.WorkflowStep
	for _, s := range m.steps {
		if s.RoleID == roleID {
			steps = append(steps, s)
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].SequenceNumber < steps[j].SequenceNumber })
	return steps, nil
}

func (m *memStore) CreateExecution(_ context.Context, exec *models.WorkflowExecution) error {
	copied := *exec
	m.execs[exec.ID] = &copied
	return nil
}

func (m *memStore) GetExecution(_ context.Context, id string) (*models.WorkflowExecution, error) {
	e, ok := m.execs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (m *memStore) GetExecutionByTask(_ context.Context, taskID string) (*models.WorkflowExecution, error) {
	var latest *models.WorkflowExecution
	for _, e := range m.execs {
		if e.TaskID != nil && *e.TaskID == taskID {
			if latest == nil || e.StartedAt.After(latest.StartedAt) {
				latest = e
			}
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (m *memStore) UpdateExecution(_ context.Context, exec *models.WorkflowExecution) error {
	stored, ok := m.execs[exec.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != exec.Version {
		return repository.ErrVersionConflict
	}
	exec.Version++
	copied := *exec
	m.execs[exec.ID] = &copied
	return nil
}

func (m *memStore) ListActiveExecutions(_ context.Context) ([]*models.WorkflowExecution, error) {
	var execs []*models.WorkflowExecution
	for _, e := range m.execs {
		if e.CompletedAt == nil {
			copied := *e
			execs = append(execs, &copied)
		}
	}
	sort.Slice(execs, func(i, j int) bool { return execs[i].StartedAt.After(execs[j].StartedAt) })
	return execs, nil
}

func (m *memStore) CreateStepProgress(_ context.Context, p *models.WorkflowStepProgress) error {
	copied := *p
	m.progress = append(m.progress, &copied)
	return nil
}

func (m *memStore) UpdateStepProgress(_ context.Context, p *models.WorkflowStepProgress) error {
	for i, existing := range m.progress {
		if existing.ID == p.ID {
			copied := *p
			m.progress[i] = &copied
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memStore) LatestStepProgress(_ context.Context, executionID, stepID string) (*models.WorkflowStepProgress, error) {
	// Records append in chronological order; scan backwards.
	for i := len(m.progress) - 1; i >= 0; i-- {
		p := m.progress[i]
		if p.ExecutionID == executionID && p.StepID == stepID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) ListExecutionProgress(_ context.Context, executionID string) ([]*models.WorkflowStepProgress, error) {
	var records []*models.WorkflowStepProgress
	for i := len(m.progress) - 1; i >= 0; i-- {
		if m.progress[i].ExecutionID == executionID {
			copied := *m.progress[i]
			records = append(records, &copied)
		}
	}
	return records, nil
}

func (m *memStore) ListRoleProgress(_ context.Context, roleID string) ([]*models.WorkflowStepProgress, error) {
	var records []*models.WorkflowStepProgress
	for i := len(m.progress) - 1; i >= 0; i-- {
		if m.progress[i].RoleID == roleID {
			copied := *m.progress[i]
			records = append(records, &copied)
		}
	}
	return records, nil
}

func (m *memStore) CompletedStepIDs(_ context.Context, taskID, roleID string) (map[string]bool, error) {
	completed := make(map[string]bool)
	for _, p := range m.progress {
		if p.RoleID == roleID && p.Status == models.StepCompleted &&
			p.TaskID != nil && *p.TaskID == taskID {
			completed[p.StepID] = true
		}
	}
	return completed, nil
}

func (m *memStore) CreatePlan(_ context.Context, plan *models.ImplementationPlan) error {
	m.plans[plan.ID] = plan
	return nil
}

func (m *memStore) GetPlan(_ context.Context, id string) (*models.ImplementationPlan, error) {
	p, ok := m.plans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (m *memStore) CreateSubtask(_ context.Context, st *models.Subtask) error {
	copied := *st
	m.subtasks[st.ID] = &copied
	return nil
}

func (m *memStore) GetSubtask(_ context.Context, id string) (*models.Subtask, error) {
	st, ok := m.subtasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *st
	return &copied, nil
}

func (m *memStore) ListPlanSubtasks(_ context.Context, planID string) ([]*models.Subtask, error) {
	var subtasks []*models.Subtask
	for _, st := range m.subtasks {
		if st.PlanID == planID {
			copied := *st
			subtasks = append(subtasks, &copied)
		}
	}
	sort.Slice(subtasks, func(i, j int) bool { return subtasks[i].SequenceNumber < subtasks[j].SequenceNumber })
	return subtasks, nil
}

func (m *memStore) ListBatchSubtasks(_ context.Context, planID, batchID string) ([]*models.Subtask, error) {
	var subtasks []*models.Subtask
	for _, st := range m.subtasks {
		if st.PlanID == planID && st.BatchID != nil && *st.BatchID == batchID {
			copied := *st
			subtasks = append(subtasks, &copied)
		}
	}
	sort.Slice(subtasks, func(i, j int) bool { return subtasks[i].SequenceNumber < subtasks[j].SequenceNumber })
	return subtasks, nil
}

func (m *memStore) UpdateSubtaskStatus(_ context.Context, id string, status models.SubtaskStatus) error {
	if m.failNextUpdate != nil {
		err := m.failNextUpdate
		m.failNextUpdate = nil
		return err
	}
	st, ok := m.subtasks[id]
	if !ok {
		return repository.ErrNotFound
	}
	st.Status = status
	return nil
}

// WithTx snapshots subtask state and restores it when fn fails,
// approximating the all-or-nothing transaction of the real store.
func (m *memStore) WithTx(_ context.Context, fn func(repository.Store) error) error {
	snapshot := make(map[string]*models.Subtask, len(m.subtasks))
	for id, st := range m.subtasks {
		copied := *st
		snapshot[id] = &copied
	}
	if err := fn(m); err != nil {
		m.subtasks = snapshot
		return err
	}
	return nil
}

func (m *memStore) Query(_ context.Context, sql string, args ...any) ([]map[string]any, error) {
	if m.queryFn != nil {
		return m.queryFn(sql, args...)
	}
	return nil, nil
}
