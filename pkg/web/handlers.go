// Package web provides HTTP handlers and REST API endpoints for workflow management.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/services"
	"github.com/dukex/stepflow/pkg/workflow"
)

// SignatureHeader carries the hex HMAC-SHA256 of a webhook body.
const SignatureHeader = "X-Webhook-Signature"

type APIHandlers struct {
	workflowService *services.Workflow
	scheduleService *services.Schedule
	webhookService  *services.Webhook
	triggerService  *services.Trigger
	runService      *services.Run
	validator       *validator.Validate
	registry        *registry.Registry
	secrets         services.SecretResolver
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	scheduleService *services.Schedule,
	webhookService *services.Webhook,
	triggerService *services.Trigger,
	runService *services.Run,
	validator *validator.Validate,
	registry *registry.Registry,
	secrets services.SecretResolver,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		scheduleService: scheduleService,
		webhookService:  webhookService,
		triggerService:  triggerService,
		runService:      runService,
		validator:       validator,
		registry:        registry,
		secrets:         secrets,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Stepflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Stepflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// ListHandlers returns the registered action types and their config schemas.
func (h *APIHandlers) ListHandlers(c fiber.Ctx) error {
	return c.JSON(h.registry.Handlers())
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context(), c.Query("workspace_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflows)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), &models.Workflow{
		WorkspaceID: req.WorkspaceID,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.Update(c.Context(), c.Params("id"), services.UpdateWorkflowRequest{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.workflowService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ValidateWorkflow checks a step graph without saving it. With ?publish=true
// the publish rules apply. A valid graph also returns its execution order.
func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	if _, err := h.workflowService.Get(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	var req StepsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	forPublish := false

	if raw := c.Query("publish"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, "Invalid publish flag: "+err.Error())
		}

		forPublish = parsed
	}

	result := h.workflowService.Validate(req.Steps)
	if forPublish {
		result = h.workflowService.ValidateForPublish(req.Steps)
	}

	response := ValidateResponse{Result: result}

	if result.Valid {
		for _, step := range workflow.Plan(req.Steps) {
			response.Plan = append(response.Plan, step.ID)
		}
	}

	return c.JSON(response)
}

func (h *APIHandlers) CreateVersion(c fiber.Ctx) error {
	var req StepsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	version, result, err := h.workflowService.SaveVersion(c.Context(), c.Params("id"), req.Steps)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(VersionResponse{Version: version, Validation: result})
}

func (h *APIHandlers) GetVersions(c fiber.Ctx) error {
	versions, err := h.workflowService.ListVersions(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(versions)
}

func (h *APIHandlers) PublishWorkflow(c fiber.Ctx) error {
	published, _, err := h.workflowService.Publish(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) PauseWorkflow(c fiber.Ctx) error {
	paused, err := h.workflowService.Pause(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(paused)
}
