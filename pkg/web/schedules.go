package web

import (
	"github.com/gofiber/fiber/v3"

	"github.com/dukex/stepflow/pkg/services"
)

func (h *APIHandlers) CreateSchedule(c fiber.Ctx) error {
	var req CreateScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	schedule, err := h.scheduleService.Create(c.Context(), c.Params("id"), services.CreateScheduleRequest{
		CronExpression: req.CronExpression,
		Timezone:       req.Timezone,
		IsActive:       req.IsActive,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(schedule)
}

func (h *APIHandlers) GetSchedules(c fiber.Ctx) error {
	schedules, err := h.scheduleService.List(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schedules)
}

func (h *APIHandlers) UpdateSchedule(c fiber.Ctx) error {
	var req UpdateScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	schedule, err := h.scheduleService.Update(c.Context(), c.Params("id"), services.UpdateScheduleRequest{
		CronExpression: req.CronExpression,
		Timezone:       req.Timezone,
		IsActive:       req.IsActive,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schedule)
}

func (h *APIHandlers) DeleteSchedule(c fiber.Ctx) error {
	if err := h.scheduleService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
