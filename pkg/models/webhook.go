package models

import "time"

// Webhook is an inbound endpoint that triggers a workflow. Only the hash of
// the signing secret is persisted; an empty SecretHash means no secret.
type Webhook struct {
	ID              string     `json:"id"`
	WorkflowID      string     `json:"workflow_id"`
	WorkspaceID     string     `json:"workspace_id"`
	Token           string     `json:"token"`
	SecretHash      string     `json:"secret_hash,omitempty"`
	IsActive        bool       `json:"is_active"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// HasSecret reports whether requests must carry a valid signature.
func (w *Webhook) HasSecret() bool {
	return w.SecretHash != ""
}
