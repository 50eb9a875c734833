package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/stepflow/pkg/cron"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// Schedule manages cron schedules and decides when they fire.
type Schedule struct {
	persistence persistence.Persistence
	logger      *slog.Logger
	now         func() time.Time
}

// NewSchedule creates a new schedule service.
func NewSchedule(persistence persistence.Persistence, logger *slog.Logger) *Schedule {
	return &Schedule{
		persistence: persistence,
		logger:      logger.With("module", "schedule_service"),
		now:         time.Now,
	}
}

// CreateScheduleRequest describes a new schedule. IsActive defaults to true.
type CreateScheduleRequest struct {
	CronExpression string
	Timezone       string
	IsActive       *bool
}

// UpdateScheduleRequest carries the mutable schedule fields. Nil fields are
// left unchanged.
type UpdateScheduleRequest struct {
	CronExpression *string
	Timezone       *string
	IsActive       *bool
}

// Create validates the expression and timezone, precomputes the next run
// and stores the schedule.
func (s *Schedule) Create(ctx context.Context, workflowID string, req CreateScheduleRequest) (*models.Schedule, error) {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	schedule := &models.Schedule{
		ID:             uuid.New().String(),
		WorkflowID:     workflow.ID,
		WorkspaceID:    workflow.WorkspaceID,
		CronExpression: strings.TrimSpace(req.CronExpression),
		Timezone:       strings.TrimSpace(req.Timezone),
		IsActive:       req.IsActive == nil || *req.IsActive,
	}

	if schedule.Timezone == "" {
		schedule.Timezone = models.DefaultTimezone
	}

	if err := schedule.Validate(); err != nil {
		return nil, NewValidationError("Create", "INVALID_SCHEDULE", err.Error(), ErrInvalidRequest)
	}

	next, err := s.nextRun(schedule.CronExpression, schedule.Timezone, s.now())
	if err != nil {
		return nil, err
	}

	schedule.NextRunAt = next

	if err := s.persistence.ScheduleRepository().Save(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}

	return schedule, nil
}

// Update edits a schedule. NextRunAt is recomputed from now whenever the
// expression or timezone changes, or the schedule is switched back on.
func (s *Schedule) Update(ctx context.Context, id string, req UpdateScheduleRequest) (*models.Schedule, error) {
	schedule, err := s.persistence.ScheduleRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	recompute := false

	if req.CronExpression != nil {
		expression := strings.TrimSpace(*req.CronExpression)
		recompute = recompute || expression != schedule.CronExpression
		schedule.CronExpression = expression
	}

	if req.Timezone != nil {
		timezone := strings.TrimSpace(*req.Timezone)
		if timezone == "" {
			timezone = models.DefaultTimezone
		}

		recompute = recompute || timezone != schedule.Timezone
		schedule.Timezone = timezone
	}

	if req.IsActive != nil {
		recompute = recompute || (*req.IsActive && !schedule.IsActive)
		schedule.IsActive = *req.IsActive
	}

	if err := schedule.Validate(); err != nil {
		return nil, NewValidationError("Update", "INVALID_SCHEDULE", err.Error(), ErrInvalidRequest)
	}

	if recompute {
		next, err := s.nextRun(schedule.CronExpression, schedule.Timezone, s.now())
		if err != nil {
			return nil, err
		}

		schedule.NextRunAt = next
	}

	if err := s.persistence.ScheduleRepository().Save(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to update schedule: %w", err)
	}

	return schedule, nil
}

// Get returns a schedule by id.
func (s *Schedule) Get(ctx context.Context, id string) (*models.Schedule, error) {
	return s.persistence.ScheduleRepository().GetByID(ctx, id)
}

// List returns the schedules of a workflow.
func (s *Schedule) List(ctx context.Context, workflowID string) ([]*models.Schedule, error) {
	if _, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return nil, err
	}

	return s.persistence.ScheduleRepository().ListByWorkflow(ctx, workflowID)
}

// Delete removes a schedule.
func (s *Schedule) Delete(ctx context.Context, id string) error {
	return s.persistence.ScheduleRepository().Delete(ctx, id)
}

// Due returns active schedules whose next run is at or before now and whose
// workflow is ACTIVE.
func (s *Schedule) Due(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	candidates, err := s.persistence.ScheduleRepository().DueSchedules(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due schedules: %w", err)
	}

	active := make(map[string]bool)
	due := make([]*models.Schedule, 0, len(candidates))

	for _, schedule := range candidates {
		ok, seen := active[schedule.WorkflowID]
		if !seen {
			workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, schedule.WorkflowID)
			switch {
			case err == nil:
				ok = workflow.IsActive()
			case persistence.IsWorkflowNotFound(err):
				s.logger.WarnContext(ctx, "Schedule points to a missing workflow",
					"schedule_id", schedule.ID, "workflow_id", schedule.WorkflowID)
			default:
				return nil, fmt.Errorf("failed to load workflow %s: %w", schedule.WorkflowID, err)
			}

			active[schedule.WorkflowID] = ok
		}

		if ok && schedule.IsDue(now) {
			due = append(due, schedule)
		}
	}

	return due, nil
}

// Fire claims a due schedule: LastRunAt becomes now and NextRunAt is
// recomputed from now. It reports false when another poller claimed the
// same occurrence first, in which case the caller must not dispatch.
func (s *Schedule) Fire(ctx context.Context, schedule *models.Schedule, now time.Time) (bool, error) {
	if !schedule.IsActive {
		return false, &ServiceError{Op: "Fire", Code: "SCHEDULE_INACTIVE", Err: ErrScheduleInactive}
	}

	if schedule.NextRunAt == nil {
		return false, nil
	}

	next, err := s.nextRun(schedule.CronExpression, schedule.Timezone, now)
	if err != nil {
		return false, err
	}

	claimed, err := s.persistence.ScheduleRepository().ClaimSchedule(ctx, schedule.ID, *schedule.NextRunAt, now, next)
	if err != nil {
		return false, fmt.Errorf("failed to claim schedule: %w", err)
	}

	if !claimed {
		return false, nil
	}

	fired := now
	schedule.LastRunAt = &fired
	schedule.NextRunAt = next

	return true, nil
}

// nextRun returns nil when the expression never matches again within the
// search horizon.
func (s *Schedule) nextRun(expression, timezone string, after time.Time) (*time.Time, error) {
	expr, err := cron.Parse(expression)
	if err != nil {
		return nil, NewValidationError("nextRun", "INVALID_CRON", err.Error(), ErrInvalidCron)
	}

	next, err := cron.NextRun(expr, after, timezone)
	switch {
	case err == nil:
		return &next, nil
	case errors.Is(err, cron.ErrUnknownTimezone):
		return nil, NewValidationError("nextRun", "INVALID_TIMEZONE", err.Error(), ErrInvalidTimezone)
	case errors.Is(err, cron.ErrNoNextRun):
		s.logger.Warn("Cron expression has no upcoming run", "cron_expression", expression, "timezone", timezone)

		return nil, nil
	default:
		return nil, err
	}
}
