package file

import (
	"context"
	"slices"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// ScheduleRepository handles schedule file operations.
type ScheduleRepository struct {
	store *store
}

func (sr *ScheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	sr.store.mu.Lock()
	defer sr.store.mu.Unlock()

	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}

	schedule.UpdatedAt = now

	if err := sr.store.write(schedulesDir, schedule.ID, schedule); err != nil {
		return &persistence.ScheduleError{Op: "Save", ScheduleID: schedule.ID, Err: err}
	}

	return nil
}

func (sr *ScheduleRepository) GetByID(_ context.Context, id string) (*models.Schedule, error) {
	sr.store.mu.RLock()
	defer sr.store.mu.RUnlock()

	schedule, err := sr.load(id)
	if err != nil {
		return nil, &persistence.ScheduleError{Op: "GetByID", ScheduleID: id, Err: err}
	}

	return schedule, nil
}

func (sr *ScheduleRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.Schedule, error) {
	sr.store.mu.RLock()
	defer sr.store.mu.RUnlock()

	schedules, err := readAll(sr.store, schedulesDir, func(s *models.Schedule) bool {
		return s.WorkflowID == workflowID
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(schedules, func(a, b *models.Schedule) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return schedules, nil
}

func (sr *ScheduleRepository) Delete(_ context.Context, id string) error {
	sr.store.mu.Lock()
	defer sr.store.mu.Unlock()

	found, err := sr.store.remove(schedulesDir, id)
	if err != nil {
		return &persistence.ScheduleError{Op: "Delete", ScheduleID: id, Err: err}
	}

	if !found {
		return &persistence.ScheduleError{Op: "Delete", ScheduleID: id, Err: persistence.ErrScheduleNotFound}
	}

	return nil
}

// DueSchedules returns active schedules due at or before the given instant,
// earliest first.
func (sr *ScheduleRepository) DueSchedules(_ context.Context, before time.Time) ([]*models.Schedule, error) {
	sr.store.mu.RLock()
	defer sr.store.mu.RUnlock()

	due, err := readAll(sr.store, schedulesDir, func(s *models.Schedule) bool {
		return s.IsDue(before)
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(due, func(a, b *models.Schedule) int {
		return a.NextRunAt.Compare(*b.NextRunAt)
	})

	return due, nil
}

func (sr *ScheduleRepository) ClaimSchedule(
	_ context.Context,
	id string,
	expectedNextRunAt, lastRunAt time.Time,
	nextRunAt *time.Time,
) (bool, error) {
	sr.store.mu.Lock()
	defer sr.store.mu.Unlock()

	schedule, err := sr.load(id)
	if err != nil {
		return false, &persistence.ScheduleError{Op: "ClaimSchedule", ScheduleID: id, Err: err}
	}

	if schedule.NextRunAt == nil || !schedule.NextRunAt.Equal(expectedNextRunAt) {
		return false, nil
	}

	schedule.LastRunAt = &lastRunAt
	schedule.NextRunAt = nextRunAt
	schedule.UpdatedAt = time.Now().UTC()

	if err := sr.store.write(schedulesDir, id, schedule); err != nil {
		return false, &persistence.ScheduleError{Op: "ClaimSchedule", ScheduleID: id, Err: err}
	}

	return true, nil
}

// load must be called with the store lock held.
func (sr *ScheduleRepository) load(id string) (*models.Schedule, error) {
	var schedule models.Schedule

	found, err := sr.store.read(schedulesDir, id, &schedule)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrScheduleNotFound
	}

	return &schedule, nil
}
