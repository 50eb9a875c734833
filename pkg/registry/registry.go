// Package registry maps action types to the step handlers that execute them.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dukex/stepflow/pkg/protocol"
)

var (
	ErrEmptyActionType = errors.New("action type is required")
	ErrNilHandler      = errors.New("handler is nil")
	ErrInvalidSchema   = errors.New("invalid handler config schema")
)

// HandlerInfo describes a registered handler for listings.
type HandlerInfo struct {
	ActionType  string         `json:"action_type"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
}

type entry struct {
	handler protocol.StepHandler
	info    HandlerInfo
	schema  *gojsonschema.Schema
}

// Registry is safe for concurrent use. It is normally filled once at start
// up and only read while runs execute.
type Registry struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:  log.With("module", "registry"),
		entries: make(map[string]entry),
	}
}

// Register adds or replaces the handler for actionType. When the handler
// implements protocol.Descriptor its config schema is compiled here.
func (r *Registry) Register(actionType string, handler protocol.StepHandler) error {
	if actionType == "" {
		return ErrEmptyActionType
	}

	if handler == nil {
		return ErrNilHandler
	}

	e := entry{handler: handler, info: HandlerInfo{ActionType: actionType}}

	if descriptor, ok := handler.(protocol.Descriptor); ok {
		e.info.Name = descriptor.Name()
		e.info.Description = descriptor.Description()
		e.info.Schema = descriptor.Schema()

		if e.info.Schema != nil {
			schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(e.info.Schema))
			if err != nil {
				return fmt.Errorf("%w for %s: %w", ErrInvalidSchema, actionType, err)
			}

			e.schema = schema
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[actionType]; exists {
		r.logger.Warn("Replacing registered handler", "action_type", actionType)
	}

	r.entries[actionType] = e

	return nil
}

// RegisterHandler registers a self-describing handler under its own ID.
func (r *Registry) RegisterHandler(handler protocol.DescribedHandler) error {
	return r.Register(handler.ID(), handler)
}

// Get returns the handler registered for actionType.
func (r *Registry) Get(actionType string) (protocol.StepHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[actionType]

	return e.handler, ok
}

// ActionTypes returns the registered action types, sorted.
func (r *Registry) ActionTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.entries))
	for actionType := range r.entries {
		types = append(types, actionType)
	}

	slices.Sort(types)

	return types
}

// Handlers returns metadata of every registered handler, sorted by action type.
func (r *Registry) Handlers() []HandlerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]HandlerInfo, 0, len(r.entries))
	for _, e := range r.entries {
		infos = append(infos, e.info)
	}

	slices.SortFunc(infos, func(a, b HandlerInfo) int {
		return strings.Compare(a.ActionType, b.ActionType)
	})

	return infos
}

// ValidateConfig checks config against the schema of the handler registered
// for actionType. Unknown action types and handlers without a schema pass.
func (r *Registry) ValidateConfig(actionType string, config map[string]any) error {
	r.mu.RLock()
	e, ok := r.entries[actionType]
	r.mu.RUnlock()

	if !ok || e.schema == nil {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := e.schema.Validate(gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("config validation for %s: %w", actionType, err)
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}

		return fmt.Errorf("invalid %s config: %s", actionType, strings.Join(errs, "; "))
	}

	return nil
}

// HealthCheck reports whether any handler is registered.
func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	count := len(r.entries)
	r.mu.RUnlock()

	if count == 0 {
		return "No step handlers registered", false
	}

	return fmt.Sprintf("%d step handlers registered", count), true
}
