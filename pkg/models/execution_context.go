package models

// StepContext is what a step handler sees of the run it belongs to.
type StepContext struct {
	WorkflowID      string                    `json:"workflow_id"`
	RunID           string                    `json:"run_id"`
	PreviousOutputs map[string]map[string]any `json:"previous_outputs"`
	TriggerData     map[string]any            `json:"trigger_data,omitempty"`
}
