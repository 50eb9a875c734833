package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/stepflow/pkg/cmd"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/scheduler"
	"github.com/dukex/stepflow/pkg/services"
	"github.com/dukex/stepflow/pkg/worker"
	"github.com/dukex/stepflow/pkg/workflow"
)

const defaultPort = 9091

func main() {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		cmd.DatabaseURLFlag(),
		cmd.RedisURLFlag(),
		cmd.PollSpecFlag(),
		cmd.LogLevelFlag(),
		cmd.OtelFlag(),
	}
	flags = append(flags, cmd.EventBusFlags()...)
	flags = append(flags, cmd.WebhookFlags()...)

	command := &cli.Command{
		Name:                  "stepflow-api",
		Usage:                 "Create, publish and trigger workflows",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action:                run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("stepflow-api")
	logger.InfoContext(ctx, "Initializing Stepflow API")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	secrets, err := services.ParseSecrets(command.String("webhook-secrets"))
	if err != nil {
		return err
	}

	tracer, shutdown := cmd.NewTracer(ctx, logger, command.Bool("otel-enabled"), "stepflow-api")
	defer func() { _ = shutdown(context.Background()) }()

	registry := cmd.NewRegistry(logger)

	persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "stepflow-api", logger)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	executor := workflow.NewExecutor(
		persistence.WorkflowRepository(),
		persistence.RunRepository(),
		registry,
		logger,
		workflow.WithPublisher(eventBus),
		workflow.WithTracer(tracer),
	)

	webhookBaseURL := command.String("webhook-base-url")
	trigger := services.NewTrigger(persistence, executor, services.NewWebhook(persistence, webhookBaseURL), logger)

	// An in-memory bus never leaves this process, so the scheduler and a
	// worker have to live here too.
	if command.String("event-bus") != "kafka" {
		locker, closer := cmd.NewLocker(ctx, logger, command.String("redis-url"))
		defer func() { _ = closer.Close() }()

		s := scheduler.New(
			services.NewSchedule(persistence, logger),
			scheduler.NewBusDispatcher(eventBus),
			logger,
			scheduler.WithLocker(locker),
			scheduler.WithPollSpec(command.String("poll-spec")),
		)
		if err := s.Start(ctx); err != nil {
			return err
		}

		w := worker.NewManager("api-"+uuid.New().String()[:8], trigger, eventBus, logger)
		if err := w.Start(ctx); err != nil {
			return err
		}
	}

	api := NewAPI(logger, persistence, registry, trigger, webhookBaseURL, secrets)

	return api.Start(ctx, command.Int("port"))
}
