// Package protocol defines the interfaces and contracts for pluggable step handlers.
package protocol

import (
	"context"

	"github.com/dukex/stepflow/pkg/models"
)

// StepHandler executes one step of a run. A returned error fails the step;
// the output map is fed to later steps through previousOutputs.
type StepHandler interface {
	Execute(ctx context.Context, step *models.Step, sc models.StepContext) (map[string]any, error)
}

// HandlerFunc adapts an ordinary function to StepHandler.
type HandlerFunc func(ctx context.Context, step *models.Step, sc models.StepContext) (map[string]any, error)

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, step *models.Step, sc models.StepContext) (map[string]any, error) {
	return f(ctx, step, sc)
}

// Descriptor is implemented by handlers that describe themselves.
type Descriptor interface {
	// ID returns the action type the handler is registered under
	ID() string

	// Name returns the human-readable name for this handler
	Name() string

	// Description returns a description of what this handler does
	Description() string

	// Schema returns the JSON schema for the step config, or nil
	Schema() map[string]any
}

// DescribedHandler is a StepHandler that carries its own metadata.
type DescribedHandler interface {
	StepHandler
	Descriptor
}
