package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/otelhelper"
)

// stepGraph indexes the flattened steps of a version by the two edges that
// propagate a skip: parent to branch child and dependency to dependent.
type stepGraph struct {
	children   map[string][]*models.Step
	dependents map[string][]string
}

func newStepGraph(steps []*models.Step) *stepGraph {
	g := &stepGraph{
		children:   map[string][]*models.Step{},
		dependents: map[string][]string{},
	}

	for _, step := range steps {
		if step.ParentStepID != "" {
			g.children[step.ParentStepID] = append(g.children[step.ParentStepID], step)
		}

		for _, dep := range step.Dependencies {
			g.dependents[dep] = append(g.dependents[dep], step.ID)
		}
	}

	return g
}

// walk is the mutable state of one run while its plan executes.
type walk struct {
	executor *Executor
	run      *models.Run
	plan     []*models.Step
	graph    *stepGraph
	skipped  map[string]bool
	outputs  map[string]map[string]any
	logger   *slog.Logger
}

// execute walks the plan and finalizes the run. It returns the id of the
// step that failed the run, if any. A returned error means persistence
// failed and the run has not been finalized.
func (w *walk) execute(ctx context.Context) (string, error) {
	e := w.executor

	if err := e.runs.AppendLog(ctx, e.newLog(w.run.ID, "", "",
		fmt.Sprintf("Run started by %s trigger", w.run.TriggerSource),
		map[string]any{"triggerSource": string(w.run.TriggerSource), "versionId": w.run.WorkflowVersionID},
	)); err != nil {
		return "", err
	}

	for _, step := range w.plan {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if w.skipped[step.ID] {
			if err := w.skip(ctx, step); err != nil {
				return "", err
			}

			continue
		}

		exec, err := w.runStep(ctx, step)
		if err != nil {
			return "", err
		}

		if exec.Status == models.StepStatusFailed {
			return step.ID, w.finish(ctx, models.RunStatusFailed, fmt.Sprintf("step %s failed: %s", step.ID, exec.Error))
		}

		if step.Type == models.StepTypeCondition && exec.Output != nil {
			result, _ := exec.Output["result"].(bool)
			w.pruneBranches(step, result)
		}
	}

	return "", w.finish(ctx, models.RunStatusCompleted, "")
}

// runStep dispatches one step to its handler and records the outcome. Handler
// errors and panics fail the step; only persistence errors are returned.
func (w *walk) runStep(ctx context.Context, step *models.Step) (*models.StepExecution, error) {
	e := w.executor
	actionType := step.ActionType()

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.step",
		attribute.String(otelhelper.RunIDKey, w.run.ID),
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepNameKey, step.Name),
		attribute.String(otelhelper.ActionTypeKey, actionType),
	)
	defer span.End()

	logger := w.logger.With("step_id", step.ID, "action_type", actionType)

	startedAt := e.now()
	exec := &models.StepExecution{Status: models.StepStatusRunning, StartedAt: &startedAt}

	if err := w.record(ctx, step.ID, exec, "Step started"); err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "Executing step")

	output, stepErr := w.invoke(ctx, step, actionType)

	endedAt := e.now()
	finished := &models.StepExecution{
		StartedAt:  &startedAt,
		EndedAt:    &endedAt,
		DurationMs: endedAt.Sub(startedAt).Milliseconds(),
	}

	var message string
	if stepErr != nil {
		finished.Status = models.StepStatusFailed
		finished.Error = stepErr.Error()
		message = "Step failed: " + stepErr.Error()

		otelhelper.SetError(span, stepErr)
		logger.WarnContext(ctx, "Step failed", "error", stepErr)
	} else {
		finished.Status = models.StepStatusCompleted
		finished.Output = output
		message = "Step completed"

		if output != nil {
			w.outputs[step.ID] = output
		}

		logger.DebugContext(ctx, "Step completed", "duration_ms", finished.DurationMs)
	}

	span.SetAttributes(attribute.String(otelhelper.StepStatusKey, string(finished.Status)))

	if err := w.record(ctx, step.ID, finished, message); err != nil {
		return nil, err
	}

	e.publish(ctx, logger, w.run.WorkflowID, events.StepFinished{
		BaseEvent:  e.baseEvent(events.StepFinishedEvent, w.run),
		RunID:      w.run.ID,
		StepID:     step.ID,
		Status:     finished.Status,
		DurationMs: finished.DurationMs,
		Error:      finished.Error,
	})

	return finished, nil
}

func (w *walk) invoke(ctx context.Context, step *models.Step, actionType string) (output map[string]any, err error) {
	handler, ok := w.executor.registry.Get(actionType)
	if !ok {
		return nil, fmt.Errorf("%w for action type %q", ErrNoHandler, actionType)
	}

	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return handler.Execute(ctx, step, models.StepContext{
		WorkflowID:      w.run.WorkflowID,
		RunID:           w.run.ID,
		PreviousOutputs: maps.Clone(w.outputs),
		TriggerData:     w.run.TriggerData,
	})
}

func (w *walk) skip(ctx context.Context, step *models.Step) error {
	now := w.executor.now()
	exec := &models.StepExecution{
		Status:    models.StepStatusSkipped,
		StartedAt: &now,
		EndedAt:   &now,
	}

	return w.record(ctx, step.ID, exec, "Step skipped")
}

// record persists a step execution and its log entry, then mirrors it on the
// in-memory run.
func (w *walk) record(ctx context.Context, stepID string, exec *models.StepExecution, message string) error {
	e := w.executor

	if err := e.runs.UpdateStepExecution(ctx, w.run.ID, stepID, exec); err != nil {
		return err
	}

	w.run.StepExecutions[stepID] = exec

	return e.runs.AppendLog(ctx, e.newLog(w.run.ID, stepID, exec.Status, message, nil))
}

func (w *walk) finish(ctx context.Context, status models.RunStatus, runErr string) error {
	e := w.executor
	endedAt := e.now()

	message := "Run completed"
	if status == models.RunStatusFailed {
		message = "Run failed: " + runErr
	}

	if err := e.runs.AppendLog(ctx, e.newLog(w.run.ID, "", "", message, nil)); err != nil {
		return err
	}

	if err := e.runs.FinishRun(ctx, w.run.ID, status, endedAt, runErr); err != nil {
		return err
	}

	w.run.Status = status
	w.run.EndedAt = &endedAt
	w.run.Error = runErr

	return nil
}

// pruneBranches marks the branch children of a condition that do not match
// its result as skipped, together with everything beneath or after them.
func (w *walk) pruneBranches(condition *models.Step, result bool) {
	for _, child := range w.graph.children[condition.ID] {
		if !branchSelected(child.BranchType, result) {
			w.markSkipped(child.ID)
		}
	}
}

func branchSelected(branch models.BranchType, result bool) bool {
	switch branch {
	case models.BranchTypeIfTrue:
		return result
	case models.BranchTypeIfFalse:
		return !result
	case models.BranchTypeDefault:
		return true
	default:
		return false
	}
}

func (w *walk) markSkipped(stepID string) {
	if w.skipped[stepID] {
		return
	}

	w.skipped[stepID] = true

	for _, child := range w.graph.children[stepID] {
		w.markSkipped(child.ID)
	}

	for _, dependent := range w.graph.dependents[stepID] {
		w.markSkipped(dependent)
	}
}
