package registry

import (
	"log/slog"

	"github.com/dukex/stepflow/pkg/nodes/condition"
	"github.com/dukex/stepflow/pkg/nodes/delay"
	"github.com/dukex/stepflow/pkg/nodes/httprequest"
	lognode "github.com/dukex/stepflow/pkg/nodes/log"
	"github.com/dukex/stepflow/pkg/nodes/trigger"
	"github.com/dukex/stepflow/pkg/protocol"
)

// RegisterDefaults registers all built-in step handlers with the registry.
func (r *Registry) RegisterDefaults() error {
	handlers := []protocol.DescribedHandler{
		trigger.NewHandler(),
		condition.NewHandler(),
		lognode.NewHandler(r.logger),
		delay.NewHandler(),
		httprequest.NewHandler(nil),
	}

	for _, handler := range handlers {
		if err := r.RegisterHandler(handler); err != nil {
			return err
		}
	}

	return nil
}

// NewDefaultRegistry returns a registry holding the built-in handlers.
func NewDefaultRegistry(logger *slog.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	if err := r.RegisterDefaults(); err != nil {
		return nil, err
	}

	return r, nil
}
