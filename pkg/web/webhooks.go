package web

import (
	"github.com/gofiber/fiber/v3"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/services"
)

func (h *APIHandlers) webhookResponse(webhook *models.Webhook) WebhookResponse {
	return WebhookResponse{
		ID:              webhook.ID,
		WorkflowID:      webhook.WorkflowID,
		Token:           webhook.Token,
		URL:             h.webhookService.URL(webhook.Token),
		HasSecret:       webhook.HasSecret(),
		IsActive:        webhook.IsActive,
		LastTriggeredAt: webhook.LastTriggeredAt,
		CreatedAt:       webhook.CreatedAt,
	}
}

func (h *APIHandlers) CreateWebhook(c fiber.Ctx) error {
	var req CreateWebhookRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	created, err := h.webhookService.Create(c.Context(), c.Params("id"), services.CreateWebhookRequest{
		Secret:   req.Secret,
		IsActive: req.IsActive,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(h.webhookResponse(created.Webhook))
}

func (h *APIHandlers) GetWebhooks(c fiber.Ctx) error {
	webhooks, err := h.webhookService.List(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	response := make([]WebhookResponse, 0, len(webhooks))
	for _, webhook := range webhooks {
		response = append(response, h.webhookResponse(webhook))
	}

	return c.JSON(response)
}

func (h *APIHandlers) DeleteWebhook(c fiber.Ctx) error {
	if err := h.webhookService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ReceiveWebhook is the public endpoint hit by external callers. The body
// is kept raw so the signature covers exactly what was sent.
func (h *APIHandlers) ReceiveWebhook(c fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)

	run, err := h.triggerService.TriggerWebhook(c.Context(), c.Params("token"), body, c.Get(SignatureHeader), h.secrets)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"run_id": run.ID,
		"status": run.Status,
	})
}
