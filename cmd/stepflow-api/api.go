// Package main provides the Stepflow API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/services"
	"github.com/dukex/stepflow/pkg/validation"
	"github.com/dukex/stepflow/pkg/web"
)

type API struct {
	logger         *slog.Logger
	persistence    persistence.Persistence
	registry       *registry.Registry
	trigger        *services.Trigger
	webhookBaseURL string
	secrets        services.SecretResolver
	validate       *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	trigger *services.Trigger,
	webhookBaseURL string,
	secrets services.SecretResolver,
) *API {
	return &API{
		logger:         logger,
		persistence:    persistence,
		registry:       registry,
		trigger:        trigger,
		webhookBaseURL: webhookBaseURL,
		secrets:        secrets,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		services.NewWorkflow(a.persistence, validation.NewValidator(a.registry)),
		services.NewSchedule(a.persistence, a.logger),
		services.NewWebhook(a.persistence, a.webhookBaseURL),
		a.trigger,
		services.NewRun(a.persistence),
		a.validate,
		a.registry,
		a.secrets,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Stepflow API")
	})

	handlers.Mount(app)

	return app
}

// Start serves until ctx ends.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		if err := app.Shutdown(); err != nil {
			a.logger.Error("Failed to shut down API", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
