package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// WorkflowRepository handles workflow and version database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , workspace_id
  , name
  , description
  , status
  , COALESCE(current_version_id, '')
  , created_at
  , updated_at
`

func scanWorkflow(row scanner) (*models.Workflow, error) {
	var workflow models.Workflow

	err := row.Scan(
		&workflow.ID,
		&workflow.WorkspaceID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Status,
		&workflow.CurrentVersionID,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.CreatedAt = workflow.CreatedAt.UTC()
	workflow.UpdatedAt = workflow.UpdatedAt.UTC()

	return &workflow, nil
}

// Save saves a workflow to the database.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	query := `
		INSERT INTO workflows (id, workspace_id, name, description, status, current_version_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			workspace_id = EXCLUDED.workspace_id
		  , name = EXCLUDED.name
		  , description = EXCLUDED.description
		  , status = EXCLUDED.status
		  , current_version_id = EXCLUDED.current_version_id
		  , updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.WorkspaceID,
		workflow.Name,
		workflow.Description,
		workflow.Status,
		workflow.CurrentVersionID,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)

	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return workflow, nil
}

// List returns the workflows of a workspace ordered by creation time. An
// empty workspace id lists every workflow.
func (r *WorkflowRepository) List(ctx context.Context, workspaceID string) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE $1 = '' OR workspace_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	return collect(ctx, r.logger, rows, scanWorkflow)
}

// Delete removes a workflow; versions, runs, schedules and webhooks cascade.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

const versionColumns = `
	id
  , workflow_id
  , version
  , steps
  , created_at
  , published_at
`

func scanVersion(row scanner) (*models.WorkflowVersion, error) {
	var (
		version     models.WorkflowVersion
		steps       []byte
		publishedAt sql.NullTime
	)

	err := row.Scan(
		&version.ID,
		&version.WorkflowID,
		&version.Version,
		&steps,
		&version.CreatedAt,
		&publishedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := fromJSON(steps, &version.Steps); err != nil {
		return nil, err
	}

	version.CreatedAt = version.CreatedAt.UTC()
	version.PublishedAt = timePtr(publishedAt)

	return &version, nil
}

// SaveVersion inserts a version or updates its publication timestamp. Steps
// of an existing version are never rewritten.
func (r *WorkflowRepository) SaveVersion(ctx context.Context, version *models.WorkflowVersion) error {
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	steps, err := toJSON(version.Steps)
	if err != nil {
		return persistence.NewWorkflowError("SaveVersion", version.WorkflowID, err)
	}

	query := `
		INSERT INTO workflow_versions (id, workflow_id, version, steps, created_at, published_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET published_at = EXCLUDED.published_at
	`

	_, err = r.db.ExecContext(ctx, query,
		version.ID,
		version.WorkflowID,
		version.Version,
		steps,
		version.CreatedAt,
		nullTime(version.PublishedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewWorkflowError("SaveVersion", version.WorkflowID, persistence.ErrVersionConflict)
		}

		return persistence.NewWorkflowError("SaveVersion", version.WorkflowID, err)
	}

	return nil
}

func (r *WorkflowRepository) GetVersion(ctx context.Context, versionID string) (*models.WorkflowVersion, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM workflow_versions WHERE id = $1`, versionID)

	version, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrVersionNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow version %s: %w", versionID, err)
	}

	return version, nil
}

func (r *WorkflowRepository) LatestVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error) {
	query := `SELECT ` + versionColumns + `
		FROM workflow_versions
		WHERE workflow_id = $1
		ORDER BY version DESC
		LIMIT 1
	`

	version, err := scanVersion(r.db.QueryRowContext(ctx, query, workflowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("LatestVersion", workflowID, persistence.ErrVersionNotFound)
		}

		return nil, persistence.NewWorkflowError("LatestVersion", workflowID, err)
	}

	return version, nil
}

func (r *WorkflowRepository) ListVersions(ctx context.Context, workflowID string) ([]*models.WorkflowVersion, error) {
	query := `SELECT ` + versionColumns + `
		FROM workflow_versions
		WHERE workflow_id = $1
		ORDER BY version
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow versions: %w", err)
	}

	return collect(ctx, r.logger, rows, scanVersion)
}
