package cmd

import cli "github.com/urfave/cli/v3"

// Flags shared by the stepflow binaries.
func DatabaseURLFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "database-url",
		Usage:    "Database connection URL for persistence (file://dir or postgres://...)",
		Required: true,
		Sources:  cli.EnvVars("DATABASE_URL"),
	}
}

func EventBusFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (kafka, gochannel)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
	}
}

func LogLevelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (debug, info, warn, error)",
		Value:   "info",
		Sources: cli.EnvVars("LOG_LEVEL"),
	}
}

func OtelFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "otel-enabled",
		Usage:   "Export traces over OTLP/HTTP",
		Sources: cli.EnvVars("OTEL_ENABLED"),
	}
}

func RedisURLFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "redis-url",
		Usage:   "Redis URL for the schedule occurrence lock (optional)",
		Sources: cli.EnvVars("REDIS_URL"),
	}
}

func PollSpecFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "poll-spec",
		Usage:   "Cron spec of the schedule poll tick",
		Value:   "@every 1m",
		Sources: cli.EnvVars("POLL_SPEC"),
	}
}

func WebhookFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "webhook-base-url",
			Usage:   "Public base URL used to build webhook URLs",
			Value:   "http://localhost:9091",
			Sources: cli.EnvVars("WEBHOOK_BASE_URL"),
		},
		&cli.StringFlag{
			Name:    "webhook-secrets",
			Usage:   "Raw webhook secrets as webhookID=secret,...",
			Sources: cli.EnvVars("WEBHOOK_SECRETS"),
		},
	}
}
