package models

import "time"

// SubtaskStatus is the lifecycle status of an implementation subtask.
type SubtaskStatus string

const (
	SubtaskNotStarted SubtaskStatus = "not-started"
	SubtaskInProgress SubtaskStatus = "in-progress"
	SubtaskCompleted  SubtaskStatus = "completed"
	SubtaskFailed     SubtaskStatus = "failed"
)

// ImplementationPlan groups the subtasks produced for a task.
type ImplementationPlan struct {
	ID        string    `json:"id" db:"id"`
	TaskID    string    `json:"task_id" db:"task_id"`
	Overview  string    `json:"overview,omitempty" db:"overview"`
	CreatedBy string    `json:"created_by,omitempty" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Subtask belongs to a plan and optionally to a logical batch. A batch
// is not a table of its own; it is identified by the BatchID string
// carried on each member subtask.
type Subtask struct {
	ID             string        `json:"id" db:"id"`
	PlanID         string        `json:"plan_id" db:"plan_id"`
	Name           string        `json:"name" db:"name"`
	Description    string        `json:"description,omitempty" db:"description"`
	Status         SubtaskStatus `json:"status" db:"status"`
	BatchID        *string       `json:"batch_id,omitempty" db:"batch_id"`
	BatchTitle     *string       `json:"batch_title,omitempty" db:"batch_title"`
	SequenceNumber int           `json:"sequence_number" db:"sequence_number"`
	StartedAt      *time.Time    `json:"started_at,omitempty" db:"started_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
}
