package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/validation"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

// versionSaveAttempts bounds retries when two writers race for the same
// version number.
const versionSaveAttempts = 3

type Workflow struct {
	persistence persistence.Persistence
	validator   *validation.Validator
}

// NewWorkflow creates a new workflow service. A nil validator skips step
// config schema checks.
func NewWorkflow(persistence persistence.Persistence, validator *validation.Validator) *Workflow {
	if validator == nil {
		validator = validation.NewValidator(nil)
	}

	return &Workflow{
		persistence: persistence,
		validator:   validator,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Get retrieves a workflow by its ID.
func (w *Workflow) Get(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// List returns the workflows of a workspace, or every workflow when
// workspaceID is empty.
func (w *Workflow) List(ctx context.Context, workspaceID string) ([]*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().List(ctx, strings.TrimSpace(workspaceID))
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// Create adds a new workflow to the repository.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if strings.TrimSpace(workflow.Name) == "" {
		return nil, ErrWorkflowNameRequired
	}

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	if workflow.Status != models.WorkflowStatusDraft {
		return nil, NewValidationError(
			"Create",
			"INVALID_STATUS",
			fmt.Sprintf("new workflows start as %s, got '%s'", models.WorkflowStatusDraft, workflow.Status),
			ErrInvalidStatus,
		)
	}

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.CurrentVersionID = ""
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// UpdateWorkflowRequest carries the mutable workflow fields. Nil fields are
// left unchanged.
type UpdateWorkflowRequest struct {
	Name        *string
	Description *string
	Status      *models.WorkflowStatus
}

// Update modifies an existing workflow by its ID.
func (w *Workflow) Update(ctx context.Context, workflowID string, req UpdateWorkflowRequest) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, ErrWorkflowNameRequired
		}

		workflow.Name = *req.Name
	}

	if req.Description != nil {
		workflow.Description = *req.Description
	}

	if req.Status != nil {
		if !req.Status.IsValid() {
			return nil, NewValidationError(
				"Update",
				"INVALID_STATUS",
				fmt.Sprintf("invalid status '%s'", *req.Status),
				ErrInvalidStatus,
			)
		}

		if *req.Status == models.WorkflowStatusActive && workflow.CurrentVersionID == "" {
			return nil, &ServiceError{Op: "Update", Code: "NO_CURRENT_VERSION", Err: ErrNoCurrentVersion}
		}

		workflow.Status = *req.Status
	}

	workflow.UpdatedAt = time.Now().UTC()

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow by its ID together with its schedules and
// webhooks. Versions go with the workflow.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if _, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return err
	}

	schedules, err := w.persistence.ScheduleRepository().ListByWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to list schedules: %w", err)
	}

	for _, schedule := range schedules {
		if err := w.persistence.ScheduleRepository().Delete(ctx, schedule.ID); err != nil && !persistence.IsNotFound(err) {
			return fmt.Errorf("failed to delete schedule %s: %w", schedule.ID, err)
		}
	}

	webhooks, err := w.persistence.WebhookRepository().ListByWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to list webhooks: %w", err)
	}

	for _, webhook := range webhooks {
		if err := w.persistence.WebhookRepository().Delete(ctx, webhook.ID); err != nil && !persistence.IsNotFound(err) {
			return fmt.Errorf("failed to delete webhook %s: %w", webhook.ID, err)
		}
	}

	if err := w.persistence.WorkflowRepository().Delete(ctx, workflowID); err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// Validate checks a step graph without saving it.
func (w *Workflow) Validate(steps []*models.Step) *validation.Result {
	return w.validator.Validate(steps)
}

// ValidateForPublish checks a step graph against the publish rules.
func (w *Workflow) ValidateForPublish(steps []*models.Step) *validation.Result {
	return w.validator.ValidateForPublish(steps)
}

// SaveVersion stores steps as the next version of the workflow. Graphs with
// validation errors are rejected with an InvalidWorkflowError; warnings are
// returned alongside the saved version.
func (w *Workflow) SaveVersion(
	ctx context.Context,
	workflowID string,
	steps []*models.Step,
) (*models.WorkflowVersion, *validation.Result, error) {
	repo := w.persistence.WorkflowRepository()

	if _, err := repo.GetByID(ctx, workflowID); err != nil {
		return nil, nil, err
	}

	result := w.validator.Validate(steps)
	if !result.Valid {
		return nil, result, &InvalidWorkflowError{Op: "SaveVersion", Result: result}
	}

	for range versionSaveAttempts {
		next := 1

		latest, err := repo.LatestVersion(ctx, workflowID)
		switch {
		case err == nil:
			next = latest.Version + 1
		case !errors.Is(err, persistence.ErrVersionNotFound):
			return nil, result, fmt.Errorf("failed to load latest version: %w", err)
		}

		version := &models.WorkflowVersion{
			ID:         uuid.New().String(),
			WorkflowID: workflowID,
			Version:    next,
			Steps:      steps,
			CreatedAt:  time.Now().UTC(),
		}

		err = repo.SaveVersion(ctx, version)
		if errors.Is(err, persistence.ErrVersionConflict) {
			continue
		}

		if err != nil {
			return nil, result, fmt.Errorf("failed to save version: %w", err)
		}

		return version, result, nil
	}

	return nil, result, fmt.Errorf("failed to save version: %w", persistence.ErrVersionConflict)
}

// GetVersion returns a version, making sure it belongs to the workflow.
func (w *Workflow) GetVersion(ctx context.Context, workflowID, versionID string) (*models.WorkflowVersion, error) {
	version, err := w.persistence.WorkflowRepository().GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	if version.WorkflowID != workflowID {
		return nil, persistence.NewWorkflowError("GetVersion", workflowID, persistence.ErrVersionNotFound)
	}

	return version, nil
}

// ListVersions returns the versions of a workflow, oldest first.
func (w *Workflow) ListVersions(ctx context.Context, workflowID string) ([]*models.WorkflowVersion, error) {
	if _, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return nil, err
	}

	return w.persistence.WorkflowRepository().ListVersions(ctx, workflowID)
}
