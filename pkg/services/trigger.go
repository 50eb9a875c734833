package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/workflow"
)

// Runner starts runs. *workflow.Executor satisfies it.
type Runner interface {
	Execute(ctx context.Context, req workflow.Request) (*models.Run, error)
}

// Trigger gates manual, scheduled and webhook triggers and starts runs of
// the workflow's current version.
type Trigger struct {
	persistence persistence.Persistence
	runner      Runner
	webhooks    *Webhook
	logger      *slog.Logger
	now         func() time.Time
}

// NewTrigger creates a new trigger service.
func NewTrigger(persistence persistence.Persistence, runner Runner, webhooks *Webhook, logger *slog.Logger) *Trigger {
	return &Trigger{
		persistence: persistence,
		runner:      runner,
		webhooks:    webhooks,
		logger:      logger.With("module", "trigger_service"),
		now:         time.Now,
	}
}

// TriggerManual runs an ACTIVE workflow with caller supplied trigger data.
func (t *Trigger) TriggerManual(ctx context.Context, workflowID string, data map[string]any) (*models.Run, error) {
	wf, err := t.triggerable(ctx, "TriggerManual", workflowID)
	if err != nil {
		return nil, err
	}

	return t.run(ctx, wf, models.TriggerSourceManual, data)
}

// TriggerSchedule runs the workflow of a schedule that has been claimed.
func (t *Trigger) TriggerSchedule(ctx context.Context, schedule *models.Schedule, firedAt time.Time) (*models.Run, error) {
	if !schedule.IsActive {
		return nil, &ServiceError{Op: "TriggerSchedule", Code: "SCHEDULE_INACTIVE", Err: ErrScheduleInactive}
	}

	wf, err := t.triggerable(ctx, "TriggerSchedule", schedule.WorkflowID)
	if err != nil {
		return nil, err
	}

	return t.run(ctx, wf, models.TriggerSourceSchedule, ScheduleTriggerData(schedule, firedAt))
}

// ScheduleTriggerData is the trigger data of a scheduled run.
func ScheduleTriggerData(schedule *models.Schedule, firedAt time.Time) map[string]any {
	return map[string]any{
		"scheduleId":     schedule.ID,
		"cronExpression": schedule.CronExpression,
		"timezone":       schedule.Timezone,
		"firedAt":        firedAt.UTC().Format(time.RFC3339),
	}
}

// TriggerWebhook authenticates a webhook call and runs its workflow with
// the decoded body as trigger data.
func (t *Trigger) TriggerWebhook(
	ctx context.Context,
	token string,
	body []byte,
	sig string,
	secrets SecretResolver,
) (*models.Run, error) {
	webhook, err := t.persistence.WebhookRepository().GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if !webhook.IsActive {
		return nil, &ServiceError{Op: "TriggerWebhook", Code: "WEBHOOK_INACTIVE", Err: ErrWebhookInactive}
	}

	rawSecret := ""
	if secrets != nil {
		rawSecret = secrets.Secret(webhook.ID)
	}

	if err := t.webhooks.Authenticate(webhook, body, sig, rawSecret); err != nil {
		t.logger.WarnContext(ctx, "Rejected webhook call", "webhook_id", webhook.ID, "error", err)

		return nil, err
	}

	wf, err := t.triggerable(ctx, "TriggerWebhook", webhook.WorkflowID)
	if err != nil {
		return nil, err
	}

	if err := t.persistence.WebhookRepository().MarkTriggered(ctx, webhook.ID, t.now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to record webhook trigger: %w", err)
	}

	return t.run(ctx, wf, models.TriggerSourceWebhook, WebhookTriggerData(body))
}

// WebhookTriggerData decodes a JSON object body. Any other body is wrapped
// as {"body": ...}.
func WebhookTriggerData(body []byte) map[string]any {
	if len(body) == 0 {
		return map[string]any{}
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return map[string]any{"body": string(body)}
	}

	if object, ok := decoded.(map[string]any); ok {
		return object
	}

	return map[string]any{"body": decoded}
}

// Execute runs a WorkflowTriggered event taken off the bus. The workflow is
// checked again since it may have been paused while the event was queued.
func (t *Trigger) Execute(ctx context.Context, event *events.WorkflowTriggered) (*models.Run, error) {
	wf, err := t.triggerable(ctx, "Execute", event.WorkflowID)
	if err != nil {
		return nil, err
	}

	return t.run(ctx, wf, event.TriggerSource, event.TriggerData)
}

func (t *Trigger) triggerable(ctx context.Context, op, workflowID string) (*models.Workflow, error) {
	wf, err := t.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !wf.IsActive() {
		return nil, &ServiceError{
			Op:      op,
			Code:    "WORKFLOW_NOT_ACTIVE",
			Message: fmt.Sprintf("workflow %s is %s", wf.ID, wf.Status),
			Err:     ErrWorkflowNotActive,
		}
	}

	if wf.CurrentVersionID == "" {
		return nil, &ServiceError{Op: op, Code: "NO_CURRENT_VERSION", Err: ErrNoCurrentVersion}
	}

	return wf, nil
}

func (t *Trigger) run(
	ctx context.Context,
	wf *models.Workflow,
	source models.TriggerSource,
	data map[string]any,
) (*models.Run, error) {
	if data == nil {
		data = map[string]any{}
	}

	run, err := t.runner.Execute(ctx, workflow.Request{
		WorkflowID:    wf.ID,
		VersionID:     wf.CurrentVersionID,
		TriggerSource: source,
		TriggerData:   data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	t.logger.InfoContext(ctx, "Run finished",
		"workflow_id", wf.ID,
		"run_id", run.ID,
		"trigger_source", source,
		"status", run.Status)

	return run, nil
}
