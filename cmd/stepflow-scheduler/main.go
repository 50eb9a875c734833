package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/stepflow/pkg/cmd"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/scheduler"
	"github.com/dukex/stepflow/pkg/services"
	"github.com/dukex/stepflow/pkg/workflow"
)

func main() {
	flags := []cli.Flag{
		cmd.DatabaseURLFlag(),
		cmd.RedisURLFlag(),
		cmd.PollSpecFlag(),
		cmd.LogLevelFlag(),
		cmd.OtelFlag(),
		&cli.BoolFlag{
			Name:    "inline",
			Usage:   "Run due workflows in this process instead of publishing them to the event bus",
			Sources: cli.EnvVars("SCHEDULER_INLINE"),
		},
	}
	flags = append(flags, cmd.EventBusFlags()...)

	command := &cli.Command{
		Name:                  "stepflow-scheduler",
		Usage:                 "Fire due workflow schedules",
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

	logger := log.WithModule("stepflow-scheduler")
	logger.InfoContext(ctx, "Initializing Stepflow scheduler")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, shutdown := cmd.NewTracer(ctx, logger, command.Bool("otel-enabled"), "stepflow-scheduler")
	defer func() { _ = shutdown(context.Background()) }()

	persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "stepflow-scheduler", logger)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	var dispatcher scheduler.Dispatcher = scheduler.NewBusDispatcher(eventBus)

	if command.Bool("inline") {
		executor := workflow.NewExecutor(
			persistence.WorkflowRepository(),
			persistence.RunRepository(),
			cmd.NewRegistry(logger),
			logger,
			workflow.WithPublisher(eventBus),
			workflow.WithTracer(tracer),
		)

		trigger := services.NewTrigger(persistence, executor, services.NewWebhook(persistence, ""), logger)
		dispatcher = scheduler.NewInlineDispatcher(trigger)
	}

	locker, closer := cmd.NewLocker(ctx, logger, command.String("redis-url"))
	defer func() { _ = closer.Close() }()

	s := scheduler.New(
		services.NewSchedule(persistence, logger),
		dispatcher,
		logger,
		scheduler.WithLocker(locker),
		scheduler.WithPollSpec(command.String("poll-spec")),
	)

	if err := s.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("Shutting down scheduler")
	s.Stop()

	return nil
}
