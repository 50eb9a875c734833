package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/services"
	"github.com/dukex/stepflow/pkg/validation"
)

// ValidationProblem is a problem document that also carries the graph
// validation findings.
type ValidationProblem struct {
	*problems.Problem

	Validation *validation.Result `json:"validation,omitempty"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

func status(c fiber.Ctx, code int, problemType, detail string) error {
	problem := problems.NewStatusProblem(code).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(code).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	var invalid *services.InvalidWorkflowError

	switch {
	case errors.As(err, &invalid):
		problem := ValidationProblem{
			Problem: problems.NewStatusProblem(400).
				WithInstance(c.Path()).
				WithType("invalid_workflow").
				WithDetail(services.ErrInvalidWorkflow.Error()),
			Validation: invalid.Result,
		}

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsValidationError(err):
		return status(c, fiber.StatusBadRequest, "validation_error", err.Error())

	case services.IsUnauthorizedError(err):
		return status(c, fiber.StatusUnauthorized, "invalid_signature", err.Error())

	case services.IsConflictError(err), errors.Is(err, persistence.ErrVersionConflict):
		return status(c, fiber.StatusConflict, "conflict", err.Error())

	case errors.Is(err, persistence.ErrWorkflowNotFound):
		return status(c, fiber.StatusNotFound, "workflow_not_found", "workflow not found")

	case errors.Is(err, persistence.ErrVersionNotFound):
		return status(c, fiber.StatusNotFound, "version_not_found", "workflow version not found")

	case errors.Is(err, persistence.ErrRunNotFound):
		return status(c, fiber.StatusNotFound, "run_not_found", "run not found")

	case errors.Is(err, persistence.ErrScheduleNotFound):
		return status(c, fiber.StatusNotFound, "schedule_not_found", "schedule not found")

	case errors.Is(err, persistence.ErrWebhookNotFound):
		return status(c, fiber.StatusNotFound, "webhook_not_found", "webhook not found")

	default:
		// Unexpected errors keep their detail out of the response body.
		return internalError(c, err)
	}
}
