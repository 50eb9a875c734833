// Package scheduler polls for due schedules and dispatches their runs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/services"
)

// DefaultPollSpec runs a tick at the start of every minute.
const DefaultPollSpec = "@every 1m"

const defaultLockTTL = 2 * time.Minute

// ScheduleSource lists due schedules and claims them. *services.Schedule
// satisfies it.
type ScheduleSource interface {
	Due(ctx context.Context, now time.Time) ([]*models.Schedule, error)
	Fire(ctx context.Context, schedule *models.Schedule, now time.Time) (bool, error)
}

type Scheduler struct {
	schedules  ScheduleSource
	dispatcher Dispatcher
	locker     Locker
	logger     *slog.Logger
	spec       string
	lockTTL    time.Duration
	now        func() time.Time
	cron       *cron.Cron
}

type Option func(*Scheduler)

// WithLocker guards each occurrence with a distributed lock before it is
// claimed.
func WithLocker(locker Locker) Option {
	return func(s *Scheduler) {
		s.locker = locker
	}
}

// WithPollSpec sets the robfig/cron spec of the poll tick.
func WithPollSpec(spec string) Option {
	return func(s *Scheduler) {
		s.spec = spec
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func New(schedules ScheduleSource, dispatcher Dispatcher, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		schedules:  schedules,
		dispatcher: dispatcher,
		locker:     NoopLocker{},
		logger:     logger.With("module", "scheduler"),
		spec:       DefaultPollSpec,
		lockTTL:    defaultLockTTL,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start runs Tick on the poll spec until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn))

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	_, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.Tick(ctx, s.now()); err != nil {
			s.logger.ErrorContext(ctx, "Schedule tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid poll spec %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started", "poll_spec", s.spec)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop stops the tick and waits for a running one to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Tick fires every schedule due at now and returns how many runs were
// dispatched. A failure on one schedule is logged and does not stop the
// others.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (int, error) {
	due, err := s.schedules.Due(ctx, now)
	if err != nil {
		return 0, err
	}

	dispatched := 0

	for _, schedule := range due {
		logger := s.logger.With("schedule_id", schedule.ID, "workflow_id", schedule.WorkflowID)

		fired, err := s.fire(ctx, schedule, now)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to fire schedule", "error", err)

			continue
		}

		if fired {
			dispatched++
		}
	}

	if dispatched > 0 {
		s.logger.InfoContext(ctx, "Dispatched scheduled runs", "count", dispatched, "due", len(due))
	}

	return dispatched, nil
}

func (s *Scheduler) fire(ctx context.Context, schedule *models.Schedule, now time.Time) (bool, error) {
	key := fmt.Sprintf("%s:%d", schedule.ID, schedule.NextRunAt.Unix())

	locked, err := s.locker.Acquire(ctx, key, s.lockTTL)
	if err != nil {
		return false, err
	}

	if !locked {
		s.logger.DebugContext(ctx, "Occurrence locked by another scheduler", "key", key)

		return false, nil
	}

	claimed, err := s.schedules.Fire(ctx, schedule, now)
	if err != nil || !claimed {
		return false, err
	}

	if err := s.dispatcher.Dispatch(ctx, schedule, now); err != nil {
		return false, fmt.Errorf("failed to dispatch run: %w", err)
	}

	return true, nil
}

var _ ScheduleSource = (*services.Schedule)(nil)
