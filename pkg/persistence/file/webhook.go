package file

import (
	"context"
	"slices"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// WebhookRepository handles webhook file operations. Lookups by token scan
// the webhook directory.
type WebhookRepository struct {
	store *store
}

func (wr *WebhookRepository) Save(_ context.Context, webhook *models.Webhook) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	if webhook.CreatedAt.IsZero() {
		webhook.CreatedAt = time.Now().UTC()
	}

	if err := wr.store.write(webhooksDir, webhook.ID, webhook); err != nil {
		return &persistence.WebhookError{Op: "Save", WebhookID: webhook.ID, Err: err}
	}

	return nil
}

func (wr *WebhookRepository) GetByID(_ context.Context, id string) (*models.Webhook, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	webhook, err := wr.load(id)
	if err != nil {
		return nil, &persistence.WebhookError{Op: "GetByID", WebhookID: id, Err: err}
	}

	return webhook, nil
}

func (wr *WebhookRepository) GetByToken(_ context.Context, token string) (*models.Webhook, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	matches, err := readAll(wr.store, webhooksDir, func(w *models.Webhook) bool {
		return token != "" && w.Token == token
	})
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, persistence.ErrWebhookNotFound
	}

	return matches[0], nil
}

func (wr *WebhookRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.Webhook, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	webhooks, err := readAll(wr.store, webhooksDir, func(w *models.Webhook) bool {
		return w.WorkflowID == workflowID
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(webhooks, func(a, b *models.Webhook) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return webhooks, nil
}

func (wr *WebhookRepository) Delete(_ context.Context, id string) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	found, err := wr.store.remove(webhooksDir, id)
	if err != nil {
		return &persistence.WebhookError{Op: "Delete", WebhookID: id, Err: err}
	}

	if !found {
		return &persistence.WebhookError{Op: "Delete", WebhookID: id, Err: persistence.ErrWebhookNotFound}
	}

	return nil
}

func (wr *WebhookRepository) MarkTriggered(_ context.Context, id string, at time.Time) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	webhook, err := wr.load(id)
	if err != nil {
		return &persistence.WebhookError{Op: "MarkTriggered", WebhookID: id, Err: err}
	}

	webhook.LastTriggeredAt = &at

	if err := wr.store.write(webhooksDir, id, webhook); err != nil {
		return &persistence.WebhookError{Op: "MarkTriggered", WebhookID: id, Err: err}
	}

	return nil
}

// load must be called with the store lock held.
func (wr *WebhookRepository) load(id string) (*models.Webhook, error) {
	var webhook models.Webhook

	found, err := wr.store.read(webhooksDir, id, &webhook)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrWebhookNotFound
	}

	return &webhook, nil
}
