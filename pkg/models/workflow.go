// Package models defines the core domain models for workspace-scoped workflow automation
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "DRAFT"    // Editable, not triggerable
	WorkflowStatusActive   WorkflowStatus = "ACTIVE"   // Published, triggerable
	WorkflowStatusPaused   WorkflowStatus = "PAUSED"   // Published, triggers ignored
	WorkflowStatusArchived WorkflowStatus = "ARCHIVED" // Historical, read only
)

// IsValid reports whether the status is one of the known values.
func (s WorkflowStatus) IsValid() bool {
	switch s {
	case WorkflowStatusDraft, WorkflowStatusActive, WorkflowStatusPaused, WorkflowStatusArchived:
		return true
	default:
		return false
	}
}

// Workflow is a workspace-scoped automation whose behaviour lives in versions.
type Workflow struct {
	ID               string         `json:"id"`
	WorkspaceID      string         `json:"workspace_id"             validate:"required"`
	Name             string         `json:"name"                     validate:"required,min=3"`
	Description      string         `json:"description"`
	Status           WorkflowStatus `json:"status"                   validate:"required"`
	CurrentVersionID string         `json:"current_version_id,omitempty"` // Version executed by triggers
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// IsActive reports whether triggers may start runs of this workflow.
func (w *Workflow) IsActive() bool {
	return w.Status == WorkflowStatusActive
}

// WorkflowVersion is an immutable snapshot of a workflow's step graph.
type WorkflowVersion struct {
	ID          string     `json:"id"`
	WorkflowID  string     `json:"workflow_id"`
	Version     int        `json:"version"`
	Steps       []*Step    `json:"steps"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// FlatSteps returns the version's steps with nested branches flattened.
func (v *WorkflowVersion) FlatSteps() []*Step {
	return FlattenSteps(v.Steps)
}
