package web

import (
	"github.com/gofiber/fiber/v3"
)

// TriggerRun executes the workflow's current version with MANUAL source and
// returns the finished run.
func (h *APIHandlers) TriggerRun(c fiber.Ctx) error {
	var req TriggerRunRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	run, err := h.triggerService.TriggerManual(c.Context(), c.Params("id"), req.TriggerData)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(run)
}

func (h *APIHandlers) GetRuns(c fiber.Ctx) error {
	runs, err := h.runService.List(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(runs)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.runService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) GetRunLogs(c fiber.Ctx) error {
	logs, err := h.runService.Logs(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(logs)
}
