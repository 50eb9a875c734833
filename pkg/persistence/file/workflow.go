package file

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// WorkflowRepository handles workflow and version file operations.
type WorkflowRepository struct {
	store *store
}

// Save saves a workflow to the file system, stamping its timestamps.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if err := wr.store.write(workflowsDir, workflow.ID, workflow); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	var workflow models.Workflow

	found, err := wr.store.read(workflowsDir, id, &workflow)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}

// List returns the workflows of a workspace ordered by creation time. An
// empty workspace id lists every workflow.
func (wr *WorkflowRepository) List(_ context.Context, workspaceID string) ([]*models.Workflow, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	workflows, err := readAll(wr.store, workflowsDir, func(w *models.Workflow) bool {
		return workspaceID == "" || w.WorkspaceID == workspaceID
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(workflows, func(a, b *models.Workflow) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return workflows, nil
}

// Delete removes a workflow together with its versions.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	found, err := wr.store.remove(workflowsDir, id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if !found {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	versions, err := wr.versionsOf(id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	for _, version := range versions {
		if _, err := wr.store.remove(versionsDir, version.ID); err != nil {
			return persistence.NewWorkflowError("Delete", id, err)
		}
	}

	return nil
}

// SaveVersion stores a version. Saving an existing version id overwrites it;
// reusing a version number under a different id is a conflict.
func (wr *WorkflowRepository) SaveVersion(_ context.Context, version *models.WorkflowVersion) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	versions, err := wr.versionsOf(version.WorkflowID)
	if err != nil {
		return persistence.NewWorkflowError("SaveVersion", version.WorkflowID, err)
	}

	for _, existing := range versions {
		if existing.Version == version.Version && existing.ID != version.ID {
			return persistence.NewWorkflowError("SaveVersion", version.WorkflowID, persistence.ErrVersionConflict)
		}
	}

	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	if err := wr.store.write(versionsDir, version.ID, version); err != nil {
		return persistence.NewWorkflowError("SaveVersion", version.WorkflowID, err)
	}

	return nil
}

func (wr *WorkflowRepository) GetVersion(_ context.Context, versionID string) (*models.WorkflowVersion, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	var version models.WorkflowVersion

	found, err := wr.store.read(versionsDir, versionID, &version)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrVersionNotFound
	}

	return &version, nil
}

// LatestVersion returns the version with the highest number.
func (wr *WorkflowRepository) LatestVersion(_ context.Context, workflowID string) (*models.WorkflowVersion, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	versions, err := wr.versionsOf(workflowID)
	if err != nil {
		return nil, persistence.NewWorkflowError("LatestVersion", workflowID, err)
	}

	if len(versions) == 0 {
		return nil, persistence.NewWorkflowError("LatestVersion", workflowID, persistence.ErrVersionNotFound)
	}

	return versions[len(versions)-1], nil
}

// ListVersions returns a workflow's versions in ascending version order.
func (wr *WorkflowRepository) ListVersions(_ context.Context, workflowID string) ([]*models.WorkflowVersion, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	return wr.versionsOf(workflowID)
}

// versionsOf must be called with the store lock held.
func (wr *WorkflowRepository) versionsOf(workflowID string) ([]*models.WorkflowVersion, error) {
	versions, err := readAll(wr.store, versionsDir, func(v *models.WorkflowVersion) bool {
		return v.WorkflowID == workflowID
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(versions, func(a, b *models.WorkflowVersion) int {
		return cmp.Compare(a.Version, b.Version)
	})

	return versions, nil
}
