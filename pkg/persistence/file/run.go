package file

import (
	"context"
	"slices"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// RunRepository handles run and run log file operations. Logs of a run are
// kept as one JSON array per run.
type RunRepository struct {
	store *store
}

func (rr *RunRepository) CreateRun(_ context.Context, run *models.Run) error {
	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	if run.StepExecutions == nil {
		run.StepExecutions = map[string]*models.StepExecution{}
	}

	if err := rr.store.write(runsDir, run.ID, run); err != nil {
		return persistence.NewRunError("CreateRun", run.ID, err)
	}

	return nil
}

func (rr *RunRepository) GetRun(_ context.Context, runID string) (*models.Run, error) {
	rr.store.mu.RLock()
	defer rr.store.mu.RUnlock()

	run, err := rr.load(runID)
	if err != nil {
		return nil, persistence.NewRunError("GetRun", runID, err)
	}

	return run, nil
}

// ListRuns returns a workflow's runs, most recent first.
func (rr *RunRepository) ListRuns(_ context.Context, workflowID string) ([]*models.Run, error) {
	rr.store.mu.RLock()
	defer rr.store.mu.RUnlock()

	runs, err := readAll(rr.store, runsDir, func(r *models.Run) bool {
		return r.WorkflowID == workflowID
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(runs, func(a, b *models.Run) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	return runs, nil
}

func (rr *RunRepository) UpdateStepExecution(
	_ context.Context,
	runID, stepID string,
	execution *models.StepExecution,
) error {
	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	run, err := rr.load(runID)
	if err != nil {
		return &persistence.RunError{Op: "UpdateStepExecution", RunID: runID, StepID: stepID, Err: err}
	}

	run.StepExecutions[stepID] = execution

	if err := rr.store.write(runsDir, runID, run); err != nil {
		return &persistence.RunError{Op: "UpdateStepExecution", RunID: runID, StepID: stepID, Err: err}
	}

	return nil
}

func (rr *RunRepository) FinishRun(
	_ context.Context,
	runID string,
	status models.RunStatus,
	endedAt time.Time,
	runErr string,
) error {
	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	run, err := rr.load(runID)
	if err != nil {
		return persistence.NewRunError("FinishRun", runID, err)
	}

	run.Status = status
	run.EndedAt = &endedAt
	run.Error = runErr

	if err := rr.store.write(runsDir, runID, run); err != nil {
		return persistence.NewRunError("FinishRun", runID, err)
	}

	return nil
}

func (rr *RunRepository) AppendLog(_ context.Context, entry *models.RunLog) error {
	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	var entries []*models.RunLog
	if _, err := rr.store.read(runLogsDir, entry.RunID, &entries); err != nil {
		return persistence.NewRunError("AppendLog", entry.RunID, err)
	}

	entries = append(entries, entry)

	if err := rr.store.write(runLogsDir, entry.RunID, entries); err != nil {
		return persistence.NewRunError("AppendLog", entry.RunID, err)
	}

	return nil
}

// ListLogs returns a run's log entries in append order.
func (rr *RunRepository) ListLogs(_ context.Context, runID string) ([]*models.RunLog, error) {
	rr.store.mu.RLock()
	defer rr.store.mu.RUnlock()

	entries := []*models.RunLog{}
	if _, err := rr.store.read(runLogsDir, runID, &entries); err != nil {
		return nil, persistence.NewRunError("ListLogs", runID, err)
	}

	return entries, nil
}

// load must be called with the store lock held.
func (rr *RunRepository) load(runID string) (*models.Run, error) {
	var run models.Run

	found, err := rr.store.read(runsDir, runID, &run)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrRunNotFound
	}

	if run.StepExecutions == nil {
		run.StepExecutions = map[string]*models.StepExecution{}
	}

	return &run, nil
}
