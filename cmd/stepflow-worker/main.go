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
	"github.com/dukex/stepflow/pkg/services"
	"github.com/dukex/stepflow/pkg/worker"
	"github.com/dukex/stepflow/pkg/workflow"
)

func main() {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Value:   "",
			Sources: cli.EnvVars("WORKER_ID"),
		},
		cmd.DatabaseURLFlag(),
		cmd.LogLevelFlag(),
		cmd.OtelFlag(),
	}
	flags = append(flags, cmd.EventBusFlags()...)

	command := &cli.Command{
		Name:                  "stepflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to execute triggered workflows",
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

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("stepflow-worker").With("workerId", workerID)
	logger.InfoContext(ctx, "Initializing Stepflow Worker")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, shutdown := cmd.NewTracer(ctx, logger, command.Bool("otel-enabled"), "stepflow-worker")
	defer func() { _ = shutdown(context.Background()) }()

	registry := cmd.NewRegistry(logger)

	eventBus := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "stepflow-worker", logger)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
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

	trigger := services.NewTrigger(persistence, executor, services.NewWebhook(persistence, ""), logger)
	manager := worker.NewManager(workerID, trigger, eventBus, logger)

	if err := manager.Start(ctx); err != nil {
		logger.ErrorContext(ctx, "Failed to start event-driven worker", "error", err)

		return err
	}

	<-ctx.Done()
	logger.Info("Shutting down worker")

	return nil
}
