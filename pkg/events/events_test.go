package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/stepflow/pkg/models"
)

func TestEventTypes(t *testing.T) {
	assert.Equal(t, WorkflowTriggeredEvent, WorkflowTriggered{}.GetType())
	assert.Equal(t, RunStartedEvent, RunStarted{}.GetType())
	assert.Equal(t, RunCompletedEvent, RunCompleted{}.GetType())
	assert.Equal(t, RunFailedEvent, RunFailed{}.GetType())
	assert.Equal(t, StepFinishedEvent, StepFinished{}.GetType())
}

func TestWorkflowTriggered_JSON(t *testing.T) {
	event := WorkflowTriggered{
		BaseEvent:     NewBaseEvent(WorkflowTriggeredEvent, "wf-1"),
		TriggerSource: models.TriggerSourceSchedule,
		TriggerID:     "sched-1",
		TriggerData:   map[string]any{"scheduleId": "sched-1"},
	}

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Equal(t, "workflow.triggered", decoded["type"])
	assert.Equal(t, "wf-1", decoded["workflow_id"])
	assert.Equal(t, "SCHEDULE", decoded["trigger_source"])
	assert.NotEmpty(t, decoded["id"])
}
