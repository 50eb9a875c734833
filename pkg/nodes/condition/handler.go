// Package condition provides the handler for CONDITION steps.
package condition

import (
	"context"
	"fmt"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/template"
)

const (
	ConfigLeftOperand  = "leftOperand"
	ConfigRightOperand = "rightOperand"
	ConfigOperator     = "operator"
	// ConfigCondition is the legacy form: either a map holding the three keys
	// above or a single value whose truthiness decides the branch.
	ConfigCondition = "condition"
)

// Handler compares two operands, resolving {{stepId.path}} references
// against earlier outputs, and reports the boolean result the executor uses
// to pick branches.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// Execute evaluates the step's condition. An unknown operator fails the step.
func (h *Handler) Execute(_ context.Context, step *models.Step, sc models.StepContext) (map[string]any, error) {
	config := conditionConfig(step.Config)

	operatorName, _ := config[ConfigOperator].(string)

	operator, err := ParseOperator(operatorName)
	if err != nil {
		return nil, err
	}

	scope := template.Scope(sc.PreviousOutputs, sc.TriggerData)
	left := template.Resolve(config[ConfigLeftOperand], scope)
	right := template.Resolve(config[ConfigRightOperand], scope)

	return map[string]any{
		"result": operator.Evaluate(left, right),
		"evaluated": map[string]any{
			"left":     left,
			"right":    right,
			"operator": operator.String(),
		},
	}, nil
}

func conditionConfig(config map[string]any) map[string]any {
	if config == nil {
		return map[string]any{}
	}

	if _, modern := config[ConfigLeftOperand]; modern {
		return config
	}

	legacy, ok := config[ConfigCondition]
	if !ok {
		return config
	}

	if nested, ok := legacy.(map[string]any); ok {
		return nested
	}

	return map[string]any{ConfigLeftOperand: legacy}
}

// Result extracts the boolean decision from a condition step's output.
func Result(output map[string]any) (bool, error) {
	result, ok := output["result"].(bool)
	if !ok {
		return false, fmt.Errorf("condition output has no boolean result: %v", output["result"])
	}

	return result, nil
}

func (h *Handler) ID() string {
	return "condition"
}

func (h *Handler) Name() string {
	return "Condition"
}

func (h *Handler) Description() string {
	return "Compares two operands and selects the IF_TRUE, IF_FALSE or DEFAULT branches of the step."
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			ConfigLeftOperand: map[string]any{
				"description": "Value or {{stepId.field}} reference on the left side",
				"examples":    []string{"{{fetch.status_code}}", "{{trigger_data.action}}"},
			},
			ConfigRightOperand: map[string]any{
				"description": "Value or {{stepId.field}} reference on the right side",
			},
			ConfigOperator: map[string]any{
				"type":        "string",
				"description": "Comparison to apply. Without an operator the left operand's truthiness is used.",
				"enum":        append([]string{""}, OperatorNames()...),
			},
			ConfigCondition: map[string]any{
				"description": "Legacy form of the condition",
			},
		},
	}
}
