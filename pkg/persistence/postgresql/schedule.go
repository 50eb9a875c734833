package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// ScheduleRepository handles schedule database operations.
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewScheduleRepository(db *sql.DB, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger}
}

const scheduleColumns = `
	id
  , workflow_id
  , workspace_id
  , cron_expression
  , timezone
  , is_active
  , next_run_at
  , last_run_at
  , created_at
  , updated_at
`

func scanSchedule(row scanner) (*models.Schedule, error) {
	var (
		schedule  models.Schedule
		nextRunAt sql.NullTime
		lastRunAt sql.NullTime
	)

	err := row.Scan(
		&schedule.ID,
		&schedule.WorkflowID,
		&schedule.WorkspaceID,
		&schedule.CronExpression,
		&schedule.Timezone,
		&schedule.IsActive,
		&nextRunAt,
		&lastRunAt,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	schedule.NextRunAt = timePtr(nextRunAt)
	schedule.LastRunAt = timePtr(lastRunAt)
	schedule.CreatedAt = schedule.CreatedAt.UTC()
	schedule.UpdatedAt = schedule.UpdatedAt.UTC()

	return &schedule, nil
}

func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}

	schedule.UpdatedAt = now

	if schedule.Timezone == "" {
		schedule.Timezone = models.DefaultTimezone
	}

	query := `
		INSERT INTO workflow_schedules (
			id, workflow_id, workspace_id, cron_expression, timezone, is_active,
			next_run_at, last_run_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			cron_expression = EXCLUDED.cron_expression
		  , timezone = EXCLUDED.timezone
		  , is_active = EXCLUDED.is_active
		  , next_run_at = EXCLUDED.next_run_at
		  , last_run_at = EXCLUDED.last_run_at
		  , updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		schedule.ID,
		schedule.WorkflowID,
		schedule.WorkspaceID,
		schedule.CronExpression,
		schedule.Timezone,
		schedule.IsActive,
		nullTime(schedule.NextRunAt),
		nullTime(schedule.LastRunAt),
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return &persistence.ScheduleError{Op: "Save", ScheduleID: schedule.ID, Err: err}
	}

	return nil
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*models.Schedule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM workflow_schedules WHERE id = $1`, id)

	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.ScheduleError{Op: "GetByID", ScheduleID: id, Err: persistence.ErrScheduleNotFound}
		}

		return nil, &persistence.ScheduleError{Op: "GetByID", ScheduleID: id, Err: err}
	}

	return schedule, nil
}

func (r *ScheduleRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM workflow_schedules
		WHERE workflow_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}

	return collect(ctx, r.logger, rows, scanSchedule)
}

func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflow_schedules WHERE id = $1`, id)
	if err != nil {
		return &persistence.ScheduleError{Op: "Delete", ScheduleID: id, Err: err}
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		return &persistence.ScheduleError{Op: "Delete", ScheduleID: id, Err: persistence.ErrScheduleNotFound}
	}

	return nil
}

func (r *ScheduleRepository) DueSchedules(ctx context.Context, before time.Time) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM workflow_schedules
		WHERE is_active AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at
	`

	rows, err := r.db.QueryContext(ctx, query, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}

	return collect(ctx, r.logger, rows, scanSchedule)
}

// ClaimSchedule advances next_run_at with a compare-and-set on its current
// value; only one concurrent claimant sees a row updated.
func (r *ScheduleRepository) ClaimSchedule(
	ctx context.Context,
	id string,
	expectedNextRunAt, lastRunAt time.Time,
	nextRunAt *time.Time,
) (bool, error) {
	query := `
		UPDATE workflow_schedules
		SET last_run_at = $3, next_run_at = $4, updated_at = NOW()
		WHERE id = $1 AND next_run_at = $2
	`

	result, err := r.db.ExecContext(ctx, query, id, expectedNextRunAt.UTC(), lastRunAt.UTC(), nullTime(nextRunAt))
	if err != nil {
		return false, &persistence.ScheduleError{Op: "ClaimSchedule", ScheduleID: id, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, &persistence.ScheduleError{Op: "ClaimSchedule", ScheduleID: id, Err: err}
	}

	if affected == 1 {
		return true, nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM workflow_schedules WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, &persistence.ScheduleError{Op: "ClaimSchedule", ScheduleID: id, Err: err}
	}

	if !exists {
		return false, &persistence.ScheduleError{Op: "ClaimSchedule", ScheduleID: id, Err: persistence.ErrScheduleNotFound}
	}

	return false, nil
}
