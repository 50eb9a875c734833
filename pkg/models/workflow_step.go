package models

import "strings"

// StepType is the kind of node a step represents in the workflow graph.
type StepType string

const (
	StepTypeTrigger   StepType = "TRIGGER"
	StepTypeAction    StepType = "ACTION"
	StepTypeCondition StepType = "CONDITION"
)

// IsValid reports whether the step type is one of the three legal values.
func (t StepType) IsValid() bool {
	switch t {
	case StepTypeTrigger, StepTypeAction, StepTypeCondition:
		return true
	default:
		return false
	}
}

// BranchType tags a child of a CONDITION step with the outcome it runs on.
type BranchType string

const (
	BranchTypeIfTrue  BranchType = "IF_TRUE"
	BranchTypeIfFalse BranchType = "IF_FALSE"
	BranchTypeDefault BranchType = "DEFAULT"
)

// ActionTypeKey is the config key selecting the step handler.
const ActionTypeKey = "actionType"

// Step is a node of a workflow version's graph.
//
// Steps may arrive nested through ChildSteps; FlattenSteps turns them into a
// flat list linked by ParentStepID before planning or execution.
type Step struct {
	ID              string         `json:"id"                          validate:"required"`
	Name            string         `json:"name"`
	Type            StepType       `json:"type"`
	Sequence        int            `json:"sequence"`
	Config          map[string]any `json:"config,omitempty"`
	Dependencies    []string       `json:"dependencies,omitempty"`
	ParentStepID    string         `json:"parent_step_id,omitempty"`
	BranchType      BranchType     `json:"branch_type,omitempty"`
	BranchCondition map[string]any `json:"branch_condition,omitempty"`
	ChildSteps      []*Step        `json:"child_steps,omitempty"`
}

// ActionType returns the registry key used to dispatch the step: the
// config's actionType when set, otherwise the lower-cased step type.
func (s *Step) ActionType() string {
	if s.Config != nil {
		if actionType, ok := s.Config[ActionTypeKey].(string); ok && actionType != "" {
			return actionType
		}
	}

	return strings.ToLower(string(s.Type))
}

// HasParent reports whether the step is a branch of a CONDITION step.
func (s *Step) HasParent() bool {
	return s.ParentStepID != ""
}

// FlattenSteps walks nested ChildSteps depth-first and returns a single list in
// which every child carries its parent's id. The input is not modified.
func FlattenSteps(steps []*Step) []*Step {
	flat := make([]*Step, 0, len(steps))

	var walk func(parentID string, list []*Step)

	walk = func(parentID string, list []*Step) {
		for _, step := range list {
			if step == nil {
				continue
			}

			clone := *step
			clone.ChildSteps = nil

			if parentID != "" && clone.ParentStepID == "" {
				clone.ParentStepID = parentID
			}

			flat = append(flat, &clone)

			walk(clone.ID, step.ChildSteps)
		}
	}

	walk("", steps)

	return flat
}
