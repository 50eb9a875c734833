package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/signature"
)

// tokenBytes gives a 64 character hex token.
const tokenBytes = 32

// WebhookPath is where the API receives webhook calls.
const WebhookPath = "/api/workflows/webhook/"

// Webhook manages inbound webhooks of workflows.
type Webhook struct {
	persistence persistence.Persistence
	baseURL     string
}

// NewWebhook creates a new webhook service. baseURL prefixes the URLs
// returned to callers.
func NewWebhook(persistence persistence.Persistence, baseURL string) *Webhook {
	return &Webhook{
		persistence: persistence,
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

// CreateWebhookRequest describes a new webhook. An empty Secret disables
// signature checks. IsActive defaults to true.
type CreateWebhookRequest struct {
	Secret   string
	IsActive *bool
}

// CreatedWebhook is returned once on creation.
type CreatedWebhook struct {
	*models.Webhook

	URL string `json:"url"`
}

// Create issues a random token and stores the hash of the secret.
func (w *Webhook) Create(ctx context.Context, workflowID string, req CreateWebhookRequest) (*CreatedWebhook, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate webhook token: %w", err)
	}

	webhook := &models.Webhook{
		ID:          uuid.New().String(),
		WorkflowID:  workflow.ID,
		WorkspaceID: workflow.WorkspaceID,
		Token:       token,
		SecretHash:  signature.HashSecret(req.Secret),
		IsActive:    req.IsActive == nil || *req.IsActive,
		CreatedAt:   time.Now().UTC(),
	}

	if err := w.persistence.WebhookRepository().Save(ctx, webhook); err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}

	return &CreatedWebhook{Webhook: webhook, URL: w.URL(token)}, nil
}

// URL returns the public address of the webhook with the given token.
func (w *Webhook) URL(token string) string {
	return w.baseURL + WebhookPath + token
}

// List returns the webhooks of a workflow.
func (w *Webhook) List(ctx context.Context, workflowID string) ([]*models.Webhook, error) {
	if _, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return nil, err
	}

	return w.persistence.WebhookRepository().ListByWorkflow(ctx, workflowID)
}

// Delete removes a webhook.
func (w *Webhook) Delete(ctx context.Context, id string) error {
	return w.persistence.WebhookRepository().Delete(ctx, id)
}

// Authenticate checks a request body against the webhook's secret. Webhooks
// without a secret accept any signature. rawSecret is the plain secret,
// supplied out-of-band since only its hash is stored.
func (w *Webhook) Authenticate(webhook *models.Webhook, body []byte, sig, rawSecret string) error {
	if !webhook.HasSecret() {
		return nil
	}

	if rawSecret == "" || !signature.MatchesHash(rawSecret, webhook.SecretHash) {
		return &ServiceError{
			Op:      "Authenticate",
			Code:    "INVALID_SIGNATURE",
			Message: "no usable secret is configured for this webhook",
			Err:     ErrInvalidSignature,
		}
	}

	if err := signature.Verify(rawSecret, body, sig); err != nil {
		return &ServiceError{Op: "Authenticate", Code: "INVALID_SIGNATURE", Message: err.Error(), Err: ErrInvalidSignature}
	}

	return nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}
