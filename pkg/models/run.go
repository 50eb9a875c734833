package models

import "time"

// RunStatus is the state of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// IsTerminal reports whether the run has finished.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// StepStatus is the state of one step within a run.
type StepStatus string

const (
	StepStatusPending   StepStatus = "PENDING"
	StepStatusRunning   StepStatus = "RUNNING"
	StepStatusCompleted StepStatus = "COMPLETED"
	StepStatusFailed    StepStatus = "FAILED"
	StepStatusSkipped   StepStatus = "SKIPPED"
)

// TriggerSource names what started a run.
type TriggerSource string

const (
	TriggerSourceManual   TriggerSource = "MANUAL"
	TriggerSourceSchedule TriggerSource = "SCHEDULE"
	TriggerSourceWebhook  TriggerSource = "WEBHOOK"
)

// StepExecution is the per-run state of a single step.
type StepExecution struct {
	Status     StepStatus     `json:"status"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Run is one execution instance of a workflow version.
type Run struct {
	ID                string                    `json:"id"`
	WorkflowID        string                    `json:"workflow_id"`
	WorkflowVersionID string                    `json:"workflow_version_id"`
	WorkspaceID       string                    `json:"workspace_id"`
	Status            RunStatus                 `json:"status"`
	TriggerSource     TriggerSource             `json:"trigger_source"`
	TriggerData       map[string]any            `json:"trigger_data,omitempty"`
	StepExecutions    map[string]*StepExecution `json:"step_executions"`
	StartedAt         time.Time                 `json:"started_at"`
	EndedAt           *time.Time                `json:"ended_at,omitempty"`
	Error             string                    `json:"error,omitempty"`
}

// StepStatus returns the status recorded for a step; steps never reached by
// the run report PENDING.
func (r *Run) StepStatus(stepID string) StepStatus {
	exec, ok := r.StepExecutions[stepID]
	if !ok || exec == nil {
		return StepStatusPending
	}

	return exec.Status
}

// RunLog is one append-only audit entry of a run.
type RunLog struct {
	ID         string         `json:"id"`
	RunID      string         `json:"run_id"`
	StepID     string         `json:"step_id,omitempty"`
	StepStatus StepStatus     `json:"step_status,omitempty"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
