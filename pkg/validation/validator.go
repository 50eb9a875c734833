// Package validation checks a workflow step graph before it is saved,
// published or executed.
package validation

import (
	"fmt"
	"strings"

	"github.com/dukex/stepflow/pkg/models"
)

// Error codes block publishing and, where checked, execution.
const (
	CodeMissingName         = "MISSING_NAME"
	CodeInvalidType         = "INVALID_TYPE"
	CodeInvalidSequence     = "INVALID_SEQUENCE"
	CodeInvalidConfig       = "INVALID_CONFIG"
	CodeDuplicateStepID     = "DUPLICATE_STEP_ID"
	CodeBranchWithoutParent = "BRANCH_WITHOUT_PARENT"
	CodeCycleDetected       = "CYCLE_DETECTED"
	CodeMissingDependency   = "MISSING_DEPENDENCY"
	CodeMissingParent       = "MISSING_PARENT"
	CodeEmptyWorkflow       = "EMPTY_WORKFLOW"
	CodeNoTriggerForPublish = "NO_TRIGGER_FOR_PUBLISH"
	CodeNoActionForPublish  = "NO_ACTION_FOR_PUBLISH"
)

// Warning codes never block save or run.
const (
	CodeConditionNoBranches = "CONDITION_NO_BRANCHES"
	CodeOrphanStep          = "ORPHAN_STEP"
	CodeNoTrigger           = "NO_TRIGGER"
)

// Issue is a single coded finding, tied to a step when applicable.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	StepID  string `json:"step_id,omitempty"`
}

// Result is the outcome of a validation pass. Valid is true when Errors is
// empty.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// HasError reports whether an error with the given code was recorded.
func (r *Result) HasError(code string) bool {
	return hasCode(r.Errors, code)
}

// HasWarning reports whether a warning with the given code was recorded.
func (r *Result) HasWarning(code string) bool {
	return hasCode(r.Warnings, code)
}

// Error renders the errors as a single message.
func (r *Result) Error() string {
	messages := make([]string, 0, len(r.Errors))
	for _, issue := range r.Errors {
		messages = append(messages, issue.Code+": "+issue.Message)
	}

	return strings.Join(messages, "; ")
}

func hasCode(issues []Issue, code string) bool {
	for _, issue := range issues {
		if issue.Code == code {
			return true
		}
	}

	return false
}

// ConfigValidator checks a step config against the schema of the handler
// registered for its action type. It returns nil when no schema is known.
type ConfigValidator interface {
	ValidateConfig(actionType string, config map[string]any) error
}

// Validator validates step graphs. The zero value skips config schema checks.
type Validator struct {
	configs ConfigValidator
}

// NewValidator creates a validator that also checks step configs against
// handler schemas when configs is non-nil.
func NewValidator(configs ConfigValidator) *Validator {
	return &Validator{configs: configs}
}

// Validate runs all structural checks over steps. Nested child steps are
// flattened first. It never fails; all findings are returned as data.
func Validate(steps []*models.Step) *Result {
	return (&Validator{}).Validate(steps)
}

// ValidateForPublish runs Validate plus the publish-only rules.
func ValidateForPublish(steps []*models.Step) *Result {
	return (&Validator{}).ValidateForPublish(steps)
}

// Validate runs all structural checks over steps.
func (v *Validator) Validate(steps []*models.Step) *Result {
	g := newGraph(models.FlattenSteps(steps))
	result := &Result{Errors: []Issue{}, Warnings: []Issue{}}

	v.checkFields(g, result)
	g.checkReferences(result)
	g.checkCycles(result)
	g.checkReachability(result)

	result.Valid = len(result.Errors) == 0

	return result
}

// ValidateForPublish additionally requires a non-empty graph with at least
// one trigger and one action, and turns orphan warnings into errors.
func (v *Validator) ValidateForPublish(steps []*models.Step) *Result {
	result := v.Validate(steps)
	flat := models.FlattenSteps(steps)

	if len(flat) == 0 {
		result.Errors = append(result.Errors, Issue{
			Code:    CodeEmptyWorkflow,
			Message: "workflow has no steps",
		})
	} else {
		var triggers, actions int

		for _, step := range flat {
			switch step.Type {
			case models.StepTypeTrigger:
				triggers++
			case models.StepTypeAction:
				actions++
			}
		}

		if triggers == 0 {
			result.Errors = append(result.Errors, Issue{
				Code:    CodeNoTriggerForPublish,
				Message: "a published workflow needs at least one trigger step",
			})
		}

		if actions == 0 {
			result.Errors = append(result.Errors, Issue{
				Code:    CodeNoActionForPublish,
				Message: "a published workflow needs at least one action step",
			})
		}
	}

	warnings := result.Warnings[:0]

	for _, warning := range result.Warnings {
		if warning.Code == CodeOrphanStep {
			result.Errors = append(result.Errors, warning)

			continue
		}

		warnings = append(warnings, warning)
	}

	result.Warnings = warnings
	result.Valid = len(result.Errors) == 0

	return result
}

func (v *Validator) checkFields(g *graph, result *Result) {
	seen := make(map[string]bool, len(g.steps))

	for _, step := range g.steps {
		if seen[step.ID] {
			result.Errors = append(result.Errors, Issue{
				Code:    CodeDuplicateStepID,
				Message: fmt.Sprintf("step id %q is used more than once", step.ID),
				StepID:  step.ID,
			})
		}

		seen[step.ID] = true

		if strings.TrimSpace(step.Name) == "" {
			result.Errors = append(result.Errors, Issue{
				Code:    CodeMissingName,
				Message: "step name is required",
				StepID:  step.ID,
			})
		}

		if !step.Type.IsValid() {
			result.Errors = append(result.Errors, Issue{
				Code:    CodeInvalidType,
				Message: fmt.Sprintf("step type %q is not one of TRIGGER, ACTION, CONDITION", step.Type),
				StepID:  step.ID,
			})
		}

		if step.Sequence < 0 {
			result.Errors = append(result.Errors, Issue{
				Code:    CodeInvalidSequence,
				Message: fmt.Sprintf("sequence must be non-negative, got %d", step.Sequence),
				StepID:  step.ID,
			})
		}

		if step.BranchType != "" && step.ParentStepID == "" {
			result.Errors = append(result.Errors, Issue{
				Code:    CodeBranchWithoutParent,
				Message: fmt.Sprintf("branch type %s set without a parent step", step.BranchType),
				StepID:  step.ID,
			})
		}

		if step.Type == models.StepTypeCondition && len(g.children[step.ID]) == 0 {
			result.Warnings = append(result.Warnings, Issue{
				Code:    CodeConditionNoBranches,
				Message: "condition step has no branches",
				StepID:  step.ID,
			})
		}

		if v.configs != nil && step.Type.IsValid() {
			if err := v.configs.ValidateConfig(step.ActionType(), step.Config); err != nil {
				result.Errors = append(result.Errors, Issue{
					Code:    CodeInvalidConfig,
					Message: err.Error(),
					StepID:  step.ID,
				})
			}
		}
	}
}
