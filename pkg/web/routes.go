package web

import "github.com/gofiber/fiber/v3"

// Mount registers every API route on router.
func (h *APIHandlers) Mount(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/handlers", h.ListHandlers)

	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/validate", h.ValidateWorkflow)
	w.Get("/:id/versions", h.GetVersions)
	w.Post("/:id/versions", h.CreateVersion)
	w.Post("/:id/publish", h.PublishWorkflow)
	w.Post("/:id/pause", h.PauseWorkflow)
	w.Get("/:id/runs", h.GetRuns)
	w.Post("/:id/runs", h.TriggerRun)
	w.Get("/:id/schedules", h.GetSchedules)
	w.Post("/:id/schedules", h.CreateSchedule)
	w.Get("/:id/webhooks", h.GetWebhooks)
	w.Post("/:id/webhooks", h.CreateWebhook)

	r := router.Group("/runs")
	r.Get("/:id", h.GetRun)
	r.Get("/:id/logs", h.GetRunLogs)

	s := router.Group("/schedules")
	s.Patch("/:id", h.UpdateSchedule)
	s.Delete("/:id", h.DeleteSchedule)

	router.Delete("/webhooks/:id", h.DeleteWebhook)

	router.Post("/api/workflows/webhook/:token", h.ReceiveWebhook)
}
