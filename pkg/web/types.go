// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/validation"
)

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	WorkspaceID string `json:"workspace_id" validate:"required"`
	Name        string `json:"name"         validate:"required,min=3"`
	Description string `json:"description"`
}

// UpdateWorkflowRequest represents the request body for updating an existing workflow.
// All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string                `json:"description,omitempty"`
	Status      *models.WorkflowStatus `json:"status,omitempty"      validate:"omitempty,oneof=DRAFT ACTIVE PAUSED ARCHIVED"`
}

// StepsRequest carries a step graph to validate or save as a new version.
type StepsRequest struct {
	Steps []*models.Step `json:"steps" validate:"required,dive,required"`
}

// ValidateResponse is returned by the validate endpoint.
type ValidateResponse struct {
	Result *validation.Result `json:"result"`
	Plan   []string           `json:"plan,omitempty"`
}

// VersionResponse pairs a saved version with its warnings.
type VersionResponse struct {
	Version    *models.WorkflowVersion `json:"version"`
	Validation *validation.Result      `json:"validation"`
}

// TriggerRunRequest starts a manual run.
type TriggerRunRequest struct {
	TriggerData map[string]any `json:"trigger_data"`
}

type CreateScheduleRequest struct {
	CronExpression string `json:"cron_expression" validate:"required"`
	Timezone       string `json:"timezone"`
	IsActive       *bool  `json:"is_active,omitempty"`
}

type UpdateScheduleRequest struct {
	CronExpression *string `json:"cron_expression,omitempty" validate:"omitempty,min=1"`
	Timezone       *string `json:"timezone,omitempty"`
	IsActive       *bool   `json:"is_active,omitempty"`
}

type CreateWebhookRequest struct {
	Secret   string `json:"secret,omitempty"`
	IsActive *bool  `json:"is_active,omitempty"`
}

// WebhookResponse exposes a webhook without its secret hash.
type WebhookResponse struct {
	ID              string     `json:"id"`
	WorkflowID      string     `json:"workflow_id"`
	Token           string     `json:"token"`
	URL             string     `json:"url"`
	HasSecret       bool       `json:"has_secret"`
	IsActive        bool       `json:"is_active"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
