package repository

// Schema is the DDL for the workflow store. It is applied by the seed
// command and by the integration tests; production deployments run it
// as a migration.
const Schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id UUID PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	priority TEXT NOT NULL,
	owner_role TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflow_roles (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	priority INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflow_steps (
	id UUID PRIMARY KEY,
	role_id UUID NOT NULL REFERENCES workflow_roles(id),
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	sequence_number INT NOT NULL,
	step_type TEXT NOT NULL,
	behavioral_guidance TEXT NOT NULL DEFAULT '',
	approach_guidance TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (role_id, sequence_number)
);

CREATE TABLE IF NOT EXISTS step_conditions (
	id UUID PRIMARY KEY,
	step_id UUID NOT NULL REFERENCES workflow_steps(id),
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	required BOOLEAN NOT NULL DEFAULT false,
	logic JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS step_actions (
	id UUID PRIMARY KEY,
	step_id UUID NOT NULL REFERENCES workflow_steps(id),
	name TEXT NOT NULL,
	action_type TEXT NOT NULL,
	action_data JSONB,
	sequence_order INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS workflow_executions (
	id UUID PRIMARY KEY,
	task_id UUID REFERENCES tasks(id),
	current_role_id UUID NOT NULL REFERENCES workflow_roles(id),
	current_step_id UUID REFERENCES workflow_steps(id),
	mode TEXT NOT NULL,
	phase TEXT NOT NULL,
	steps_completed INT NOT NULL DEFAULT 0,
	total_steps INT NOT NULL DEFAULT 0,
	progress_percentage INT NOT NULL DEFAULT 0,
	recovery_attempts INT NOT NULL DEFAULT 0,
	max_recovery_attempts INT NOT NULL DEFAULT 3,
	last_error JSONB,
	context JSONB NOT NULL DEFAULT '{}',
	version INT NOT NULL DEFAULT 1,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_executions_task ON workflow_executions(task_id);

CREATE TABLE IF NOT EXISTS workflow_step_progress (
	id UUID PRIMARY KEY,
	execution_id UUID NOT NULL REFERENCES workflow_executions(id),
	step_id UUID NOT NULL REFERENCES workflow_steps(id),
	role_id UUID NOT NULL REFERENCES workflow_roles(id),
	task_id UUID REFERENCES tasks(id),
	status TEXT NOT NULL,
	result TEXT,
	execution_data JSONB,
	error_details JSONB,
	duration_ms BIGINT,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	failed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_progress_execution ON workflow_step_progress(execution_id);
CREATE INDEX IF NOT EXISTS idx_progress_role ON workflow_step_progress(role_id);
CREATE INDEX IF NOT EXISTS idx_progress_task_role ON workflow_step_progress(task_id, role_id);

CREATE TABLE IF NOT EXISTS implementation_plans (
	id UUID PRIMARY KEY,
	task_id UUID NOT NULL REFERENCES tasks(id),
	overview TEXT NOT NULL DEFAULT '',
	created_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subtasks (
	id UUID PRIMARY KEY,
	plan_id UUID NOT NULL REFERENCES implementation_plans(id),
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	batch_id TEXT,
	batch_title TEXT,
	sequence_number INT NOT NULL DEFAULT 0,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_subtasks_plan ON subtasks(plan_id);
CREATE INDEX IF NOT EXISTS idx_subtasks_batch ON subtasks(plan_id, batch_id);
`
