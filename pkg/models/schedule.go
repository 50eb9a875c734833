package models

import (
	"errors"
	"time"
)

// DefaultTimezone is used when a schedule does not name one.
const DefaultTimezone = "UTC"

// ErrInvalidSchedule is returned when schedule validation fails.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

// Schedule fires a workflow on a cron expression evaluated in a timezone.
// NextRunAt is precomputed so due schedules can be found with a single query
// instead of evaluating every expression on each poll.
type Schedule struct {
	ID             string     `json:"id"`
	WorkflowID     string     `json:"workflow_id"     validate:"required"`
	WorkspaceID    string     `json:"workspace_id"`
	CronExpression string     `json:"cron_expression" validate:"required"`
	Timezone       string     `json:"timezone"`
	IsActive       bool       `json:"is_active"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"` // nil when the expression never matches again
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsDue checks if this schedule is due for execution at the given time.
// The owning workflow's status is checked separately.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.IsActive && s.NextRunAt != nil && !s.NextRunAt.After(now)
}

// Validate performs validation on the schedule fields that do not need the
// cron parser.
func (s *Schedule) Validate() error {
	if s.WorkflowID == "" || s.CronExpression == "" {
		return ErrInvalidSchedule
	}

	return nil
}
