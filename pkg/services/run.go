package services

import (
	"context"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// Run exposes run history.
type Run struct {
	persistence persistence.Persistence
}

func NewRun(persistence persistence.Persistence) *Run {
	return &Run{persistence: persistence}
}

// List returns the runs of a workflow, newest first.
func (r *Run) List(ctx context.Context, workflowID string) ([]*models.Run, error) {
	if _, err := r.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return nil, err
	}

	return r.persistence.RunRepository().ListRuns(ctx, workflowID)
}

func (r *Run) Get(ctx context.Context, runID string) (*models.Run, error) {
	return r.persistence.RunRepository().GetRun(ctx, runID)
}

// Logs returns the audit trail of a run in append order.
func (r *Run) Logs(ctx context.Context, runID string) ([]*models.RunLog, error) {
	if _, err := r.persistence.RunRepository().GetRun(ctx, runID); err != nil {
		return nil, err
	}

	return r.persistence.RunRepository().ListLogs(ctx, runID)
}
