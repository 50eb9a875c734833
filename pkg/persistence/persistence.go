// Package persistence provides data storage abstraction layer for workflows, runs, schedules and webhooks.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/stepflow/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	RunRepository() RunRepository
	ScheduleRepository() ScheduleRepository
	WebhookRepository() WebhookRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflows and their immutable versions.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context, workspaceID string) ([]*models.Workflow, error)
	Delete(ctx context.Context, id string) error

	SaveVersion(ctx context.Context, version *models.WorkflowVersion) error
	GetVersion(ctx context.Context, versionID string) (*models.WorkflowVersion, error)
	LatestVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error)
	ListVersions(ctx context.Context, workflowID string) ([]*models.WorkflowVersion, error)
}

// RunRepository stores runs, their per-step state and their audit log.
type RunRepository interface {
	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, runID string) (*models.Run, error)
	ListRuns(ctx context.Context, workflowID string) ([]*models.Run, error)
	// UpdateStepExecution replaces a single key of the run's step executions
	// without rewriting the others.
	UpdateStepExecution(ctx context.Context, runID, stepID string, execution *models.StepExecution) error
	FinishRun(ctx context.Context, runID string, status models.RunStatus, endedAt time.Time, runErr string) error

	AppendLog(ctx context.Context, entry *models.RunLog) error
	ListLogs(ctx context.Context, runID string) ([]*models.RunLog, error)
}

// ScheduleRepository stores cron schedules.
type ScheduleRepository interface {
	Save(ctx context.Context, schedule *models.Schedule) error
	GetByID(ctx context.Context, id string) (*models.Schedule, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Schedule, error)
	Delete(ctx context.Context, id string) error
	// DueSchedules returns active schedules with NextRunAt at or before the given time.
	DueSchedules(ctx context.Context, before time.Time) ([]*models.Schedule, error)
	// ClaimSchedule moves NextRunAt forward only while the stored value still
	// equals expectedNextRunAt. It reports whether this caller won the claim.
	ClaimSchedule(ctx context.Context, id string, expectedNextRunAt, lastRunAt time.Time, nextRunAt *time.Time) (bool, error)
}

// WebhookRepository stores inbound webhooks.
type WebhookRepository interface {
	Save(ctx context.Context, webhook *models.Webhook) error
	GetByID(ctx context.Context, id string) (*models.Webhook, error)
	GetByToken(ctx context.Context, token string) (*models.Webhook, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Webhook, error)
	Delete(ctx context.Context, id string) error
	MarkTriggered(ctx context.Context, id string, at time.Time) error
}
