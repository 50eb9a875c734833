package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/dukex/stepflow/pkg/channels/gochannel"
	"github.com/dukex/stepflow/pkg/channels/kafka"
	"github.com/dukex/stepflow/pkg/eventbus"
)

// NewEventBus builds the bus for provider. gochannel only reaches
// subscribers in the same process.
func NewEventBus(provider, brokers, serviceName string, logger *slog.Logger) eventbus.EventBus {
	adapter := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(adapter, kafka.ParseBrokers(brokers), serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger)
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(adapter)
		if err != nil {
			panic(fmt.Errorf("failed to create in-memory pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
