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

// WebhookRepository handles webhook database operations.
type WebhookRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewWebhookRepository(db *sql.DB, logger *slog.Logger) *WebhookRepository {
	return &WebhookRepository{db: db, logger: logger}
}

const webhookColumns = `
	id
  , workflow_id
  , workspace_id
  , token
  , secret_hash
  , is_active
  , last_triggered_at
  , created_at
`

func scanWebhook(row scanner) (*models.Webhook, error) {
	var (
		webhook         models.Webhook
		lastTriggeredAt sql.NullTime
	)

	err := row.Scan(
		&webhook.ID,
		&webhook.WorkflowID,
		&webhook.WorkspaceID,
		&webhook.Token,
		&webhook.SecretHash,
		&webhook.IsActive,
		&lastTriggeredAt,
		&webhook.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	webhook.LastTriggeredAt = timePtr(lastTriggeredAt)
	webhook.CreatedAt = webhook.CreatedAt.UTC()

	return &webhook, nil
}

func (r *WebhookRepository) Save(ctx context.Context, webhook *models.Webhook) error {
	if webhook.CreatedAt.IsZero() {
		webhook.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO workflow_webhooks (
			id, workflow_id, workspace_id, token, secret_hash, is_active, last_triggered_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			secret_hash = EXCLUDED.secret_hash
		  , is_active = EXCLUDED.is_active
		  , last_triggered_at = EXCLUDED.last_triggered_at
	`

	_, err := r.db.ExecContext(ctx, query,
		webhook.ID,
		webhook.WorkflowID,
		webhook.WorkspaceID,
		webhook.Token,
		webhook.SecretHash,
		webhook.IsActive,
		nullTime(webhook.LastTriggeredAt),
		webhook.CreatedAt,
	)
	if err != nil {
		return &persistence.WebhookError{Op: "Save", WebhookID: webhook.ID, Err: err}
	}

	return nil
}

func (r *WebhookRepository) GetByID(ctx context.Context, id string) (*models.Webhook, error) {
	return r.getOne(ctx, "GetByID", id, `SELECT `+webhookColumns+` FROM workflow_webhooks WHERE id = $1`, id)
}

func (r *WebhookRepository) GetByToken(ctx context.Context, token string) (*models.Webhook, error) {
	return r.getOne(ctx, "GetByToken", "", `SELECT `+webhookColumns+` FROM workflow_webhooks WHERE token = $1`, token)
}

func (r *WebhookRepository) getOne(ctx context.Context, op, id, query string, arg any) (*models.Webhook, error) {
	webhook, err := scanWebhook(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.WebhookError{Op: op, WebhookID: id, Err: persistence.ErrWebhookNotFound}
		}

		return nil, &persistence.WebhookError{Op: op, WebhookID: id, Err: err}
	}

	return webhook, nil
}

func (r *WebhookRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + `
		FROM workflow_webhooks
		WHERE workflow_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhooks: %w", err)
	}

	return collect(ctx, r.logger, rows, scanWebhook)
}

func (r *WebhookRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflow_webhooks WHERE id = $1`, id)
	if err != nil {
		return &persistence.WebhookError{Op: "Delete", WebhookID: id, Err: err}
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		return &persistence.WebhookError{Op: "Delete", WebhookID: id, Err: persistence.ErrWebhookNotFound}
	}

	return nil
}

func (r *WebhookRepository) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflow_webhooks SET last_triggered_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return &persistence.WebhookError{Op: "MarkTriggered", WebhookID: id, Err: err}
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		return &persistence.WebhookError{Op: "MarkTriggered", WebhookID: id, Err: persistence.ErrWebhookNotFound}
	}

	return nil
}
