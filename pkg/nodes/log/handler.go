// Package log provides the diagnostic logging handler.
package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/template"
)

var ErrMissingMessage = errors.New("missing required field 'message'")

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Handler writes the step's message, with {{stepId.field}} references
// interpolated, to the process log and echoes it as output.
type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{logger: logger.With("module", "log_step")}
}

func (h *Handler) Execute(ctx context.Context, step *models.Step, sc models.StepContext) (map[string]any, error) {
	raw, ok := step.Config["message"]
	if !ok || raw == nil {
		return nil, ErrMissingMessage
	}

	levelName := "info"
	if lvl, ok := step.Config["level"].(string); ok && lvl != "" {
		levelName = lvl
	}

	level, ok := levels[levelName]
	if !ok {
		return nil, fmt.Errorf("invalid log level '%s' (must be debug, info, warn, or error)", levelName)
	}

	message := template.Interpolate(fmt.Sprint(raw), template.Scope(sc.PreviousOutputs, sc.TriggerData))

	h.logger.Log(ctx, level, message,
		"workflow_id", sc.WorkflowID,
		"run_id", sc.RunID,
		"step_id", step.ID)

	return map[string]any{
		"message": message,
		"level":   levelName,
	}, nil
}

func (h *Handler) ID() string {
	return "log"
}

func (h *Handler) Name() string {
	return "Log"
}

func (h *Handler) Description() string {
	return "Logs a message at the given level with {{stepId.field}} references interpolated"
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports {{stepId.field.path}} references.",
				"examples": []string{
					"Processing user: {{fetch_user.body.name}}",
					"Webhook action {{trigger_data.action}} received",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"enum":        []string{"debug", "info", "warn", "error"},
				"default":     "info",
			},
		},
		"required": []string{"message"},
	}
}
