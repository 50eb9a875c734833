// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/stepflow/pkg/registry"
)

// NewRegistry returns a registry holding the built-in step handlers.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg, err := registry.NewDefaultRegistry(logger)
	if err != nil {
		panic(err)
	}

	logger.Info("Registered step handlers", "action_types", reg.ActionTypes())

	return reg
}
