package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/validation"
)

// Publish validates the latest version against the publish rules and makes
// it the version triggers execute. The workflow becomes ACTIVE.
func (w *Workflow) Publish(ctx context.Context, workflowID string) (*models.Workflow, *validation.Result, error) {
	repo := w.persistence.WorkflowRepository()

	workflow, err := repo.GetByID(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return nil, nil, &ServiceError{
			Op:      "Publish",
			Code:    "INVALID_STATUS",
			Message: "archived workflows cannot be published",
			Err:     ErrInvalidStatus,
		}
	}

	version, err := repo.LatestVersion(ctx, workflowID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get latest version: %w", err)
	}

	result := w.validator.ValidateForPublish(version.Steps)
	if !result.Valid {
		return nil, result, &InvalidWorkflowError{Op: "Publish", Result: result}
	}

	now := time.Now().UTC()

	if version.PublishedAt == nil {
		version.PublishedAt = &now

		if err := repo.SaveVersion(ctx, version); err != nil {
			return nil, result, fmt.Errorf("failed to mark version published: %w", err)
		}
	}

	workflow.CurrentVersionID = version.ID
	workflow.Status = models.WorkflowStatusActive
	workflow.UpdatedAt = now

	if err := repo.Save(ctx, workflow); err != nil {
		return nil, result, fmt.Errorf("failed to publish workflow: %w", err)
	}

	return workflow, result, nil
}

// Pause stops triggers from starting new runs. Runs already in flight are
// not affected.
func (w *Workflow) Pause(ctx context.Context, workflowID string) (*models.Workflow, error) {
	repo := w.persistence.WorkflowRepository()

	workflow, err := repo.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !workflow.IsActive() {
		return nil, &ServiceError{
			Op:      "Pause",
			Code:    "WORKFLOW_NOT_ACTIVE",
			Message: fmt.Sprintf("workflow is %s", workflow.Status),
			Err:     ErrWorkflowNotActive,
		}
	}

	workflow.Status = models.WorkflowStatusPaused
	workflow.UpdatedAt = time.Now().UTC()

	if err := repo.Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to pause workflow: %w", err)
	}

	return workflow, nil
}
