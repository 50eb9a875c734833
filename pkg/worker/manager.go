// Package worker consumes workflow.triggered events and runs them.
package worker

import (
	"context"
	"log/slog"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/services"
)

// Executor runs a triggered event. *services.Trigger satisfies it.
type Executor interface {
	Execute(ctx context.Context, event *events.WorkflowTriggered) (*models.Run, error)
}

type Manager struct {
	id       string
	logger   *slog.Logger
	executor Executor
	eventBus eventbus.EventSubscriber
}

func NewManager(id string, executor Executor, eventBus eventbus.EventSubscriber, logger *slog.Logger) *Manager {
	return &Manager{
		id:       id,
		logger:   logger.With("module", "stepflow-worker", "worker_id", id),
		executor: executor,
		eventBus: eventBus,
	}
}

// Start subscribes to the bus and returns; events are handled in the
// background until ctx ends.
func (w *Manager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.WorkflowTriggeredEvent, w.HandleWorkflowTriggered)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	return nil
}

// HandleWorkflowTriggered runs the event. Triggers that can never succeed
// (unknown or inactive workflow) are dropped; other failures are returned
// so the message is redelivered.
func (w *Manager) HandleWorkflowTriggered(ctx context.Context, event any) error {
	triggeredEvent, ok := event.(*events.WorkflowTriggered)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for WorkflowTriggered")

		return nil
	}

	logger := w.logger.With(
		"workflow_id", triggeredEvent.WorkflowID,
		"trigger_id", triggeredEvent.TriggerID,
		"event_id", triggeredEvent.ID,
	)
	logger.InfoContext(ctx, "Processing workflow triggered event")

	run, err := w.executor.Execute(ctx, triggeredEvent)
	if err != nil {
		if services.IsConflictError(err) || persistence.IsNotFound(err) {
			logger.WarnContext(ctx, "Dropping trigger", "reason", err)

			return nil
		}

		logger.ErrorContext(ctx, "Failed to execute workflow", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Workflow run finished", "run_id", run.ID, "status", run.Status)

	return nil
}
