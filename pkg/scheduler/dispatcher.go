package scheduler

import (
	"context"
	"time"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/services"
)

// Dispatcher starts the run of a claimed schedule.
type Dispatcher interface {
	Dispatch(ctx context.Context, schedule *models.Schedule, firedAt time.Time) error
}

// BusDispatcher hands the run to a worker through the event bus.
type BusDispatcher struct {
	publisher eventbus.EventPublisher
}

func NewBusDispatcher(publisher eventbus.EventPublisher) *BusDispatcher {
	return &BusDispatcher{publisher: publisher}
}

func (d *BusDispatcher) Dispatch(ctx context.Context, schedule *models.Schedule, firedAt time.Time) error {
	event := events.WorkflowTriggered{
		BaseEvent:     events.NewBaseEvent(events.WorkflowTriggeredEvent, schedule.WorkflowID),
		TriggerSource: models.TriggerSourceSchedule,
		TriggerID:     schedule.ID,
		TriggerData:   services.ScheduleTriggerData(schedule, firedAt),
	}
	event.WorkspaceID = schedule.WorkspaceID

	return d.publisher.Publish(ctx, schedule.WorkflowID, event)
}

// InlineDispatcher runs the workflow in the scheduler process and waits for
// the run to finish.
type InlineDispatcher struct {
	trigger *services.Trigger
}

func NewInlineDispatcher(trigger *services.Trigger) *InlineDispatcher {
	return &InlineDispatcher{trigger: trigger}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, schedule *models.Schedule, firedAt time.Time) error {
	_, err := d.trigger.TriggerSchedule(ctx, schedule, firedAt)

	return err
}
