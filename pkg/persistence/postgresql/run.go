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

// RunRepository handles run and run log database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const runColumns = `
	id
  , workflow_id
  , workflow_version_id
  , workspace_id
  , status
  , trigger_source
  , trigger_data
  , step_executions
  , started_at
  , ended_at
  , error
`

func scanRun(row scanner) (*models.Run, error) {
	var (
		run            models.Run
		triggerData    []byte
		stepExecutions []byte
		endedAt        sql.NullTime
	)

	err := row.Scan(
		&run.ID,
		&run.WorkflowID,
		&run.WorkflowVersionID,
		&run.WorkspaceID,
		&run.Status,
		&run.TriggerSource,
		&triggerData,
		&stepExecutions,
		&run.StartedAt,
		&endedAt,
		&run.Error,
	)
	if err != nil {
		return nil, err
	}

	if err := fromJSON(triggerData, &run.TriggerData); err != nil {
		return nil, err
	}

	if err := fromJSON(stepExecutions, &run.StepExecutions); err != nil {
		return nil, err
	}

	if run.StepExecutions == nil {
		run.StepExecutions = map[string]*models.StepExecution{}
	}

	run.StartedAt = run.StartedAt.UTC()
	run.EndedAt = timePtr(endedAt)

	return &run, nil
}

func (r *RunRepository) CreateRun(ctx context.Context, run *models.Run) error {
	if run.StepExecutions == nil {
		run.StepExecutions = map[string]*models.StepExecution{}
	}

	triggerData, err := toJSON(run.TriggerData)
	if err != nil {
		return persistence.NewRunError("CreateRun", run.ID, err)
	}

	stepExecutions, err := toJSON(run.StepExecutions)
	if err != nil {
		return persistence.NewRunError("CreateRun", run.ID, err)
	}

	query := `
		INSERT INTO workflow_runs (
			id, workflow_id, workflow_version_id, workspace_id, status, trigger_source,
			trigger_data, step_executions, started_at, ended_at, error
		)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7::jsonb, '{}'), $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.WorkflowID,
		run.WorkflowVersionID,
		run.WorkspaceID,
		run.Status,
		run.TriggerSource,
		nullJSON(triggerData),
		stepExecutions,
		run.StartedAt,
		nullTime(run.EndedAt),
		run.Error,
	)
	if err != nil {
		return persistence.NewRunError("CreateRun", run.ID, err)
	}

	return nil
}

// nullJSON maps the encoding of a nil map to SQL NULL.
func nullJSON(data string) any {
	if data == "null" {
		return nil
	}

	return data
}

func (r *RunRepository) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE id = $1`, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("GetRun", runID, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("GetRun", runID, err)
	}

	return run, nil
}

// ListRuns returns a workflow's runs, most recent first.
func (r *RunRepository) ListRuns(ctx context.Context, workflowID string) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + `
		FROM workflow_runs
		WHERE workflow_id = $1
		ORDER BY started_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	return collect(ctx, r.logger, rows, scanRun)
}

// UpdateStepExecution merges one key into step_executions in a single
// statement, leaving the other steps untouched.
func (r *RunRepository) UpdateStepExecution(
	ctx context.Context,
	runID, stepID string,
	execution *models.StepExecution,
) error {
	data, err := toJSON(execution)
	if err != nil {
		return &persistence.RunError{Op: "UpdateStepExecution", RunID: runID, StepID: stepID, Err: err}
	}

	query := `
		UPDATE workflow_runs
		SET step_executions = jsonb_set(step_executions, ARRAY[$2::text], $3::jsonb, true)
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, runID, stepID, data)
	if err != nil {
		return &persistence.RunError{Op: "UpdateStepExecution", RunID: runID, StepID: stepID, Err: err}
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		return &persistence.RunError{Op: "UpdateStepExecution", RunID: runID, StepID: stepID, Err: persistence.ErrRunNotFound}
	}

	return nil
}

func (r *RunRepository) FinishRun(
	ctx context.Context,
	runID string,
	status models.RunStatus,
	endedAt time.Time,
	runErr string,
) error {
	query := `UPDATE workflow_runs SET status = $2, ended_at = $3, error = $4 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, runID, status, endedAt.UTC(), runErr)
	if err != nil {
		return persistence.NewRunError("FinishRun", runID, err)
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		return persistence.NewRunError("FinishRun", runID, persistence.ErrRunNotFound)
	}

	return nil
}

func (r *RunRepository) AppendLog(ctx context.Context, entry *models.RunLog) error {
	var metadata any
	if entry.Metadata != nil {
		data, err := toJSON(entry.Metadata)
		if err != nil {
			return persistence.NewRunError("AppendLog", entry.RunID, err)
		}

		metadata = data
	}

	query := `
		INSERT INTO workflow_run_logs (id, run_id, step_id, step_status, message, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.RunID,
		entry.StepID,
		entry.StepStatus,
		entry.Message,
		metadata,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		return persistence.NewRunError("AppendLog", entry.RunID, err)
	}

	return nil
}

// ListLogs returns a run's log entries in append order.
func (r *RunRepository) ListLogs(ctx context.Context, runID string) ([]*models.RunLog, error) {
	query := `
		SELECT id, run_id, step_id, step_status, message, metadata, timestamp
		FROM workflow_run_logs
		WHERE run_id = $1
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, persistence.NewRunError("ListLogs", runID, err)
	}

	return collect(ctx, r.logger, rows, func(row scanner) (*models.RunLog, error) {
		var (
			entry    models.RunLog
			metadata []byte
		)

		err := row.Scan(
			&entry.ID,
			&entry.RunID,
			&entry.StepID,
			&entry.StepStatus,
			&entry.Message,
			&metadata,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, err
		}

		if err := fromJSON(metadata, &entry.Metadata); err != nil {
			return nil, err
		}

		entry.Timestamp = entry.Timestamp.UTC()

		return &entry, nil
	})
}
