package eventbus

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/stepflow/pkg/channels/gochannel"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/models"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub, slog.Default())
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newTestBus(t)
	received := make(chan *events.WorkflowTriggered, 1)

	require.NoError(t, bus.Handle(events.WorkflowTriggeredEvent, func(_ context.Context, event any) error {
		received <- event.(*events.WorkflowTriggered)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	err := bus.Publish(ctx, "wf-1", events.WorkflowTriggered{
		BaseEvent:     events.NewBaseEvent(events.WorkflowTriggeredEvent, "wf-1"),
		TriggerSource: models.TriggerSourceWebhook,
		TriggerData:   map[string]any{"x": 1.0},
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "wf-1", event.WorkflowID)
		assert.Equal(t, models.TriggerSourceWebhook, event.TriggerSource)
		assert.Equal(t, map[string]any{"x": 1.0}, event.TriggerData)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_UnhandledTypesAreAcked(t *testing.T) {
	bus := newTestBus(t)
	received := make(chan string, 2)

	require.NoError(t, bus.Handle(events.RunCompletedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.RunCompleted).RunID

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "wf-1", events.RunStarted{RunID: "ignored"}))
	require.NoError(t, bus.Publish(ctx, "wf-1", events.RunCompleted{RunID: "run-1"}))

	select {
	case runID := <-received:
		assert.Equal(t, "run-1", runID)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}
