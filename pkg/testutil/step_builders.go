// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/dukex/stepflow/pkg/models"
)

// CreateTestStep creates an ACTION step with a log config that can be overridden.
func CreateTestStep(id string, overrides ...func(*models.Step)) *models.Step {
	step := &models.Step{
		ID:     id,
		Name:   "Step " + id,
		Type:   models.StepTypeAction,
		Config: map[string]any{models.ActionTypeKey: "log", "message": "test"},
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// Trigger creates a TRIGGER step.
func Trigger(id string, overrides ...func(*models.Step)) *models.Step {
	return CreateTestStep(id, append([]func(*models.Step){AsTrigger()}, overrides...)...)
}

// Action creates an ACTION step running the log handler.
func Action(id string, overrides ...func(*models.Step)) *models.Step {
	return CreateTestStep(id, overrides...)
}

// Condition creates a CONDITION step.
func Condition(id string, overrides ...func(*models.Step)) *models.Step {
	return CreateTestStep(id, append([]func(*models.Step){AsCondition()}, overrides...)...)
}

// AsTrigger configures the step as a trigger.
func AsTrigger() func(*models.Step) {
	return func(s *models.Step) {
		s.Type = models.StepTypeTrigger
		s.Config = map[string]any{}
	}
}

// AsCondition configures the step as a condition with no operator.
func AsCondition() func(*models.Step) {
	return func(s *models.Step) {
		s.Type = models.StepTypeCondition
		s.Config = map[string]any{}
	}
}

// WithDependencies sets the step dependencies.
func WithDependencies(ids ...string) func(*models.Step) {
	return func(s *models.Step) {
		s.Dependencies = ids
	}
}

// WithBranch attaches the step to a condition parent.
func WithBranch(parentID string, branch models.BranchType) func(*models.Step) {
	return func(s *models.Step) {
		s.ParentStepID = parentID
		s.BranchType = branch
	}
}

// WithSequence sets the step sequence.
func WithSequence(sequence int) func(*models.Step) {
	return func(s *models.Step) {
		s.Sequence = sequence
	}
}

// WithConfig sets the step configuration.
func WithConfig(config map[string]any) func(*models.Step) {
	return func(s *models.Step) {
		s.Config = config
	}
}

// WithName sets the step name.
func WithName(name string) func(*models.Step) {
	return func(s *models.Step) {
		s.Name = name
	}
}

// WithType sets the step type.
func WithType(stepType models.StepType) func(*models.Step) {
	return func(s *models.Step) {
		s.Type = stepType
	}
}

// WithChildren nests branch steps under the step.
func WithChildren(children ...*models.Step) func(*models.Step) {
	return func(s *models.Step) {
		s.ChildSteps = children
	}
}

// CreateTestWorkflow creates an ACTIVE workflow.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	now := time.Now().UTC()
	workflow := &models.Workflow{
		ID:          uuid.New().String(),
		WorkspaceID: "workspace-1",
		Name:        "Test Workflow",
		Description: "Test workflow description",
		Status:      models.WorkflowStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithWorkflowID sets the workflow id.
func WithWorkflowID(id string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.ID = id
	}
}

// WithStatus sets the workflow status.
func WithStatus(status models.WorkflowStatus) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Status = status
	}
}

// CreateTestVersion creates version 1 of a workflow holding steps.
func CreateTestVersion(workflowID string, steps ...*models.Step) *models.WorkflowVersion {
	return &models.WorkflowVersion{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Version:    1,
		Steps:      steps,
		CreatedAt:  time.Now().UTC(),
	}
}

// LinearSteps returns trigger -> a -> b.
func LinearSteps() []*models.Step {
	return []*models.Step{
		Trigger("trigger"),
		Action("a", WithDependencies("trigger"), WithSequence(1)),
		Action("b", WithDependencies("a"), WithSequence(2)),
	}
}
