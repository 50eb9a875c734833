// Package events defines event types and structures for workflow run lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/dukex/stepflow/pkg/models"
)

type EventType string

// Topic carries every stepflow event; consumers filter on the type metadata.
const Topic = "stepflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// WorkflowTriggeredEvent asks a worker to start a run.
	WorkflowTriggeredEvent EventType = "workflow.triggered"

	// Run lifecycle events.
	RunStartedEvent   EventType = "run.started"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"
	StepFinishedEvent EventType = "step.finished"
)

type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	WorkflowID  string    `json:"workflow_id"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
}

// NewBaseEvent creates the common part of an event.
func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// WorkflowTriggered requests a run of the workflow's current version.
type WorkflowTriggered struct {
	BaseEvent

	TriggerSource models.TriggerSource `json:"trigger_source"`
	TriggerID     string               `json:"trigger_id,omitempty"` // schedule or webhook id
	TriggerData   map[string]any       `json:"trigger_data,omitempty"`
}

func (e WorkflowTriggered) GetType() EventType {
	return WorkflowTriggeredEvent
}

type RunStarted struct {
	BaseEvent

	RunID         string               `json:"run_id"`
	VersionID     string               `json:"version_id"`
	TriggerSource models.TriggerSource `json:"trigger_source"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunCompleted struct {
	BaseEvent

	RunID    string        `json:"run_id"`
	Duration time.Duration `json:"duration"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	RunID        string        `json:"run_id"`
	FailedStepID string        `json:"failed_step_id,omitempty"`
	Error        string        `json:"error"`
	Duration     time.Duration `json:"duration"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

type StepFinished struct {
	BaseEvent

	RunID      string            `json:"run_id"`
	StepID     string            `json:"step_id"`
	Status     models.StepStatus `json:"status"`
	DurationMs int64             `json:"duration_ms"`
	Error      string            `json:"error,omitempty"`
}

func (e StepFinished) GetType() EventType {
	return StepFinishedEvent
}
