package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/otelhelper"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/protocol"
)

var (
	ErrNoVersion         = errors.New("workflow has no version to execute")
	ErrNoHandler         = errors.New("no handler registered")
	ErrVersionMismatched = errors.New("version does not belong to workflow")
)

// HandlerRegistry resolves an action type to its handler.
type HandlerRegistry interface {
	Get(actionType string) (protocol.StepHandler, bool)
}

// Request describes one run to start.
type Request struct {
	WorkflowID string
	// VersionID pins the version; when empty the workflow's current version
	// is used, falling back to the latest one.
	VersionID     string
	TriggerSource models.TriggerSource
	TriggerData   map[string]any
}

// Executor runs workflow versions step by step. Steps of one run execute
// sequentially; separate runs may execute concurrently.
type Executor struct {
	workflows persistence.WorkflowRepository
	runs      persistence.RunRepository
	registry  HandlerRegistry
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Executor)

// WithPublisher publishes run lifecycle events. Publish failures are logged
// and never affect the run.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Executor) {
		e.publisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

func NewExecutor(
	workflows persistence.WorkflowRepository,
	runs persistence.RunRepository,
	registry HandlerRegistry,
	logger *slog.Logger,
	opts ...Option,
) *Executor {
	e := &Executor{
		workflows: workflows,
		runs:      runs,
		registry:  registry,
		tracer:    otelhelper.Tracer("stepflow/workflow"),
		logger:    logger.With("module", "workflow_executor"),
		now:       func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute loads the requested version, creates its Run and walks the plan.
// An error is returned only when no Run could be created; every failure
// after that is recorded on the returned Run, which always ends COMPLETED or
// FAILED.
func (e *Executor) Execute(ctx context.Context, req Request) (*models.Run, error) {
	workflow, err := e.workflows.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	version, err := e.resolveVersion(ctx, workflow, req.VersionID)
	if err != nil {
		return nil, err
	}

	return e.ExecuteVersion(ctx, workflow, version, req.TriggerSource, req.TriggerData)
}

func (e *Executor) resolveVersion(ctx context.Context, workflow *models.Workflow, versionID string) (*models.WorkflowVersion, error) {
	if versionID == "" {
		versionID = workflow.CurrentVersionID
	}

	if versionID == "" {
		version, err := e.workflows.LatestVersion(ctx, workflow.ID)
		if err != nil {
			if errors.Is(err, persistence.ErrVersionNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrNoVersion, workflow.ID)
			}

			return nil, err
		}

		return version, nil
	}

	version, err := e.workflows.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	if version.WorkflowID != workflow.ID {
		return nil, fmt.Errorf("%w: version %s, workflow %s", ErrVersionMismatched, version.ID, workflow.ID)
	}

	return version, nil
}

// ExecuteVersion runs an already loaded version.
func (e *Executor) ExecuteVersion(
	ctx context.Context,
	workflow *models.Workflow,
	version *models.WorkflowVersion,
	source models.TriggerSource,
	triggerData map[string]any,
) (*models.Run, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.run",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.String(otelhelper.VersionIDKey, version.ID),
		attribute.String(otelhelper.TriggerSourceKey, string(source)),
	)
	defer span.End()

	if triggerData == nil {
		triggerData = map[string]any{}
	}

	plan := Plan(version.Steps)

	run := &models.Run{
		ID:                uuid.New().String(),
		WorkflowID:        workflow.ID,
		WorkflowVersionID: version.ID,
		WorkspaceID:       workflow.WorkspaceID,
		Status:            models.RunStatusRunning,
		TriggerSource:     source,
		TriggerData:       triggerData,
		StepExecutions:    map[string]*models.StepExecution{},
		StartedAt:         e.now(),
	}

	if err := e.runs.CreateRun(ctx, run); err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.RunIDKey, run.ID))

	logger := e.logger.With("workflow_id", workflow.ID, "run_id", run.ID)
	logger.InfoContext(ctx, "Starting run", "trigger_source", source, "steps", len(plan))

	e.publish(ctx, logger, workflow.ID, events.RunStarted{
		BaseEvent:     e.baseEvent(events.RunStartedEvent, run),
		RunID:         run.ID,
		VersionID:     version.ID,
		TriggerSource: source,
	})

	w := &walk{
		executor: e,
		run:      run,
		plan:     plan,
		graph:    newStepGraph(models.FlattenSteps(version.Steps)),
		skipped:  map[string]bool{},
		outputs:  map[string]map[string]any{},
		logger:   logger,
	}

	failedStep, err := w.execute(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Run aborted by infrastructure error", "error", err)
		otelhelper.SetError(span, err)
		e.abort(ctx, logger, run, err)
		e.publishFinished(ctx, logger, run, failedStep)

		return run, nil
	}

	e.publishFinished(ctx, logger, run, failedStep)
	span.SetAttributes(attribute.String(otelhelper.RunStatusKey, string(run.Status)))

	if run.Status == models.RunStatusFailed {
		span.SetAttributes(attribute.String(otelhelper.StepIDKey, failedStep))
		logger.WarnContext(ctx, "Run failed", "step_id", failedStep, "error", run.Error)
	} else {
		logger.InfoContext(ctx, "Run completed", "duration", e.now().Sub(run.StartedAt))
	}

	return run, nil
}

// abort marks the run FAILED after an infrastructure error. Persisting that
// state is best effort since storage may be what failed.
func (e *Executor) abort(ctx context.Context, logger *slog.Logger, run *models.Run, cause error) {
	ctx = context.WithoutCancel(ctx)
	endedAt := e.now()
	run.Status = models.RunStatusFailed
	run.EndedAt = &endedAt
	run.Error = cause.Error()

	if err := e.runs.AppendLog(ctx, e.newLog(run.ID, "", "", "Run failed: "+cause.Error(), nil)); err != nil {
		logger.ErrorContext(ctx, "Failed to append failure log", "error", err)
	}

	if err := e.runs.FinishRun(ctx, run.ID, run.Status, endedAt, run.Error); err != nil {
		logger.ErrorContext(ctx, "Failed to persist failed run", "error", err)
	}
}

func (e *Executor) newLog(runID, stepID string, status models.StepStatus, message string, metadata map[string]any) *models.RunLog {
	return &models.RunLog{
		ID:         uuid.New().String(),
		RunID:      runID,
		StepID:     stepID,
		StepStatus: status,
		Message:    message,
		Metadata:   metadata,
		Timestamp:  e.now(),
	}
}

func (e *Executor) baseEvent(eventType events.EventType, run *models.Run) events.BaseEvent {
	base := events.NewBaseEvent(eventType, run.WorkflowID)
	base.WorkspaceID = run.WorkspaceID

	return base
}

func (e *Executor) publish(ctx context.Context, logger *slog.Logger, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func (e *Executor) publishFinished(ctx context.Context, logger *slog.Logger, run *models.Run, failedStep string) {
	var duration time.Duration
	if run.EndedAt != nil {
		duration = run.EndedAt.Sub(run.StartedAt)
	}

	if run.Status == models.RunStatusCompleted {
		e.publish(ctx, logger, run.WorkflowID, events.RunCompleted{
			BaseEvent: e.baseEvent(events.RunCompletedEvent, run),
			RunID:     run.ID,
			Duration:  duration,
		})

		return
	}

	e.publish(ctx, logger, run.WorkflowID, events.RunFailed{
		BaseEvent:    e.baseEvent(events.RunFailedEvent, run),
		RunID:        run.ID,
		FailedStepID: failedStep,
		Error:        run.Error,
		Duration:     duration,
	})
}
