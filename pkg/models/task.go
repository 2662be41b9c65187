// Package models defines the domain models for the workflow service
package models

import "time"

// TaskStatus represents the lifecycle status of a task
type TaskStatus string

const (
	TaskStatusNotStarted   TaskStatus = "not-started"
	TaskStatusInProgress   TaskStatus = "in-progress"
	TaskStatusNeedsReview  TaskStatus = "needs-review"
	TaskStatusNeedsChanges TaskStatus = "needs-changes"
	TaskStatusCompleted    TaskStatus = "completed"
	TaskStatusPaused       TaskStatus = "paused"
	TaskStatusCancelled    TaskStatus = "cancelled"
)

// TaskPriority represents how urgent a task is
type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "low"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityCritical TaskPriority = "critical"
)

// Task is the unit of work driven through the role pipeline.
// Tasks are created at bootstrap and mutated by workflow transitions;
// the engine never deletes them.
type Task struct {
	ID        string       `json:"id" db:"id"`
	Slug      string       `json:"slug" db:"slug"`
	Name      string       `json:"name" db:"name"`
	Status    TaskStatus   `json:"status" db:"status"`
	Priority  TaskPriority `json:"priority" db:"priority"`
	OwnerRole string       `json:"owner_role,omitempty" db:"owner_role"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}
