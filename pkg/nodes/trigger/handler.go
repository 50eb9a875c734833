// Package trigger provides the pass-through handler for TRIGGER steps.
package trigger

import (
	"context"

	"github.com/dukex/stepflow/pkg/models"
)

// Handler marks the entry point of a run. The trigger payload reaches
// later steps through StepContext.TriggerData, so the step itself outputs
// nothing.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Execute(_ context.Context, _ *models.Step, _ models.StepContext) (map[string]any, error) {
	return map[string]any{}, nil
}

func (h *Handler) ID() string {
	return "trigger"
}

func (h *Handler) Name() string {
	return "Trigger"
}

func (h *Handler) Description() string {
	return "Entry point of a workflow. Produces no output."
}

func (h *Handler) Schema() map[string]any {
	return nil
}
