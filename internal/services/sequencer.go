package services

import (
	"context"
	"fmt"

	"workflow-mcp/internal/repository"
	"workflow-mcp/pkg/models"
)

// StepSequencer resolves the next executable step of a role.
type StepSequencer struct {
	store repository.Store
}

// NewStepSequencer creates a new StepSequencer.
func NewStepSequencer(store repository.Store) *StepSequencer {
	return &StepSequencer{store: store}
}

// NextAvailableStep returns the lowest-sequence step of the role that
// has no COMPLETED progress record for the task. A nil step with a nil
// error means every step is completed; that is a valid terminal state
// signalling the caller should consider a role transition, not an error.
func (s *StepSequencer) NextAvailableStep(ctx context.Context, taskID, roleID string) (*models.WorkflowStep, error) {
	steps, err := s.store.ListRoleSteps(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("list role steps: %w", err)
	}
	completed, err := s.store.CompletedStepIDs(ctx, taskID, roleID)
	if err != nil {
		return nil, fmt.Errorf("list completed steps: %w", err)
	}

	// Steps come back ordered by sequence number.
	for _, step := range steps {
		if !completed[step.ID] {
			return step, nil
		}
	}
	return nil, nil
}
