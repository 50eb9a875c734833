// Package delay provides a handler that pauses a run for a bounded time.
package delay

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dukex/stepflow/pkg/models"
)

// MaxDuration caps every delay so a misconfigured step cannot stall a run.
const MaxDuration = 30 * time.Second

// Handler sleeps for config.durationMs, capped at MaxDuration. The sleep
// ends early with an error when ctx is cancelled.
type Handler struct {
	after func(time.Duration) <-chan time.Time
}

func NewHandler() *Handler {
	return &Handler{after: time.After}
}

func (h *Handler) Execute(ctx context.Context, step *models.Step, _ models.StepContext) (map[string]any, error) {
	requested, err := durationMs(step.Config["durationMs"])
	if err != nil {
		return nil, err
	}

	wait := MaxDuration
	if requested < float64(MaxDuration.Milliseconds()) {
		wait = time.Duration(requested) * time.Millisecond
	}

	if wait > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("delay interrupted: %w", ctx.Err())
		case <-h.after(wait):
		}
	}

	return map[string]any{
		"requestedMs": saturate(requested),
		"delayedMs":   wait.Milliseconds(),
	}, nil
}

func durationMs(v any) (float64, error) {
	var ms float64

	switch value := v.(type) {
	case nil:
		return 0, nil
	case float64:
		ms = value
	case int:
		ms = float64(value)
	case int64:
		ms = float64(value)
	case string:
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("durationMs must be a number, got %q", value)
		}

		ms = parsed
	default:
		return 0, fmt.Errorf("durationMs must be a number, got %T", v)
	}

	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return 0, fmt.Errorf("durationMs must be finite, got %v", ms)
	}

	if ms < 0 {
		return 0, fmt.Errorf("durationMs must not be negative, got %v", ms)
	}

	return ms, nil
}

// saturate converts ms to int64, pinning values past the int64 range.
func saturate(ms float64) int64 {
	if ms >= math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(ms)
}

func (h *Handler) ID() string {
	return "delay"
}

func (h *Handler) Name() string {
	return "Delay"
}

func (h *Handler) Description() string {
	return "Pauses the run for durationMs milliseconds, at most 30 seconds"
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"durationMs": map[string]any{
				"type":        "number",
				"description": "Milliseconds to wait. Values above 30000 are capped.",
				"minimum":     0,
			},
		},
		"required": []string{"durationMs"},
	}
}
