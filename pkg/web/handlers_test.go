package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence/file"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/services"
	"github.com/dukex/stepflow/pkg/signature"
	. "github.com/dukex/stepflow/pkg/testutil"
	"github.com/dukex/stepflow/pkg/validation"
	"github.com/dukex/stepflow/pkg/web"
	"github.com/dukex/stepflow/pkg/workflow"
)

type testApp struct {
	app         *fiber.App
	persistence *file.Persistence
	secrets     services.StaticSecrets
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	reg, err := registry.NewDefaultRegistry(logger)
	require.NoError(t, err)

	p := file.NewPersistence(t.TempDir())
	executor := workflow.NewExecutor(p.WorkflowRepository(), p.RunRepository(), reg, logger)
	webhooks := services.NewWebhook(p, "http://localhost:9091")
	secrets := services.StaticSecrets{}

	handlers := web.NewAPIHandlers(
		services.NewWorkflow(p, validation.NewValidator(reg)),
		services.NewSchedule(p, logger),
		webhooks,
		services.NewTrigger(p, executor, webhooks, logger),
		services.NewRun(p),
		validator.New(validator.WithRequiredStructEnabled()),
		reg,
		secrets,
	)

	app := fiber.New()
	handlers.Mount(app)

	return &testApp{app: app, persistence: p, secrets: secrets}
}

func (a *testApp) do(t *testing.T, method, path string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	case []byte:
		reader = bytes.NewBuffer(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))

	return out
}

// publishedWorkflow creates a workflow through the API, saves LinearSteps
// and publishes it.
func (a *testApp) publishedWorkflow(t *testing.T) string {
	t.Helper()

	resp, raw := a.do(t, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		WorkspaceID: "workspace-1",
		Name:        "Nightly report",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	id := decode[models.Workflow](t, raw).ID

	resp, raw = a.do(t, http.MethodPost, "/workflows/"+id+"/versions", web.StepsRequest{Steps: LinearSteps()})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	resp, raw = a.do(t, http.MethodPost, "/workflows/"+id+"/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	return id
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	resp, raw := a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	health := decode[map[string]any](t, raw)
	assert.Equal(t, "healthy", health["status"])

	resp, raw = a.do(t, http.MethodGet, "/handlers", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	handlers := decode[[]registry.HandlerInfo](t, raw)
	assert.NotEmpty(t, handlers)
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		expectedType   string
	}{
		{
			name: "successful creation",
			requestBody: web.CreateWorkflowRequest{
				WorkspaceID: "workspace-1",
				Name:        "Test Workflow",
				Description: "Test Description",
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "validation error - missing name",
			requestBody:    web.CreateWorkflowRequest{WorkspaceID: "workspace-1"},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "validation error - name too short",
			requestBody:    web.CreateWorkflowRequest{WorkspaceID: "workspace-1", Name: "Te"},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "validation error - missing workspace",
			requestBody:    web.CreateWorkflowRequest{Name: "Test Workflow"},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid-json",
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := setupTestApp(t)

			resp, raw := a.do(t, http.MethodPost, "/workflows", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(raw))

			if tt.expectedType != "" {
				problem := decode[map[string]any](t, raw)
				assert.Equal(t, tt.expectedType, problem["type"])

				return
			}

			workflow := decode[models.Workflow](t, raw)
			assert.NotEmpty(t, workflow.ID)
			assert.Equal(t, "Test Workflow", workflow.Name)
			assert.Equal(t, models.WorkflowStatusDraft, workflow.Status)
		})
	}
}

func TestAPIHandlers_WorkflowLifecycle(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	id := a.publishedWorkflow(t)

	resp, raw := a.do(t, http.MethodGet, "/workflows/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	workflow := decode[models.Workflow](t, raw)
	assert.Equal(t, models.WorkflowStatusActive, workflow.Status)
	assert.NotEmpty(t, workflow.CurrentVersionID)

	resp, raw = a.do(t, http.MethodGet, "/workflows?workspace_id=workspace-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.Workflow](t, raw), 1)

	resp, raw = a.do(t, http.MethodGet, "/workflows/"+id+"/versions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.WorkflowVersion](t, raw), 1)

	name := "Renamed"

	resp, raw = a.do(t, http.MethodPatch, "/workflows/"+id, web.UpdateWorkflowRequest{Name: &name})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Renamed", decode[models.Workflow](t, raw).Name)

	resp, _ = a.do(t, http.MethodPatch, "/workflows/"+id, `{"status":"RUNNING"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, raw = a.do(t, http.MethodPost, "/workflows/"+id+"/pause", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.WorkflowStatusPaused, decode[models.Workflow](t, raw).Status)

	resp, _ = a.do(t, http.MethodPost, "/workflows/"+id+"/pause", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = a.do(t, http.MethodDelete, "/workflows/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, raw = a.do(t, http.MethodGet, "/workflows/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "workflow_not_found", decode[map[string]any](t, raw)["type"])
}

func TestAPIHandlers_CreateVersion_Invalid(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	resp, raw := a.do(t, http.MethodPost, "/workflows", web.CreateWorkflowRequest{WorkspaceID: "w", Name: "Cyclic"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	id := decode[models.Workflow](t, raw).ID

	resp, raw = a.do(t, http.MethodPost, "/workflows/"+id+"/versions", web.StepsRequest{Steps: []*models.Step{
		Trigger("trigger"),
		Action("a", WithDependencies("b")),
		Action("b", WithDependencies("a")),
	}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var problem struct {
		Type       string             `json:"type"`
		Status     int                `json:"status"`
		Instance   string             `json:"instance"`
		Validation *validation.Result `json:"validation"`
	}

	require.NoError(t, json.Unmarshal(raw, &problem))
	assert.Equal(t, "invalid_workflow", problem.Type)
	assert.Equal(t, http.StatusBadRequest, problem.Status)
	assert.Equal(t, "/workflows/"+id+"/versions", problem.Instance)
	require.NotNil(t, problem.Validation)
	assert.True(t, problem.Validation.HasError(validation.CodeCycleDetected))

	resp, _ = a.do(t, http.MethodPost, "/workflows/missing/versions", web.StepsRequest{Steps: LinearSteps()})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_ValidateWorkflow(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	resp, raw := a.do(t, http.MethodPost, "/workflows", web.CreateWorkflowRequest{WorkspaceID: "w", Name: "Draft"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	id := decode[models.Workflow](t, raw).ID

	tests := []struct {
		name  string
		query string
		steps []*models.Step
		valid bool
		plan  []string
		code  string
	}{
		{name: "linear", steps: LinearSteps(), valid: true, plan: []string{"trigger", "a", "b"}},
		{name: "no trigger saves", steps: []*models.Step{Action("only")}, valid: true, plan: []string{"only"}},
		{
			name:  "no trigger cannot publish",
			query: "?publish=true",
			steps: []*models.Step{Action("only")},
			code:  validation.CodeNoTriggerForPublish,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := a.do(t, http.MethodPost, "/workflows/"+id+"/validate"+tt.query, web.StepsRequest{Steps: tt.steps})
			require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

			response := decode[web.ValidateResponse](t, raw)
			assert.Equal(t, tt.valid, response.Result.Valid)
			assert.Equal(t, tt.plan, response.Plan)

			if tt.code != "" {
				assert.True(t, response.Result.HasError(tt.code))
			}
		})
	}

	resp, _ = a.do(t, http.MethodPost, "/workflows/"+id+"/validate?publish=maybe", web.StepsRequest{Steps: LinearSteps()})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_Runs(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	id := a.publishedWorkflow(t)

	resp, raw := a.do(t, http.MethodPost, "/workflows/"+id+"/runs", web.TriggerRunRequest{
		TriggerData: map[string]any{"who": "ops"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	run := decode[models.Run](t, raw)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, models.TriggerSourceManual, run.TriggerSource)

	resp, raw = a.do(t, http.MethodGet, "/workflows/"+id+"/runs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.Run](t, raw), 1)

	resp, raw = a.do(t, http.MethodGet, "/runs/"+run.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, run.ID, decode[models.Run](t, raw).ID)

	resp, raw = a.do(t, http.MethodGet, "/runs/"+run.ID+"/logs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decode[[]models.RunLog](t, raw))

	resp, raw = a.do(t, http.MethodGet, "/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "run_not_found", decode[map[string]any](t, raw)["type"])

	_, _ = a.do(t, http.MethodPost, "/workflows/"+id+"/pause", nil)

	resp, raw = a.do(t, http.MethodPost, "/workflows/"+id+"/runs", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(raw))
}

func TestAPIHandlers_Schedules(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	id := a.publishedWorkflow(t)

	resp, raw := a.do(t, http.MethodPost, "/workflows/"+id+"/schedules", web.CreateScheduleRequest{
		CronExpression: "0 9 * * 1-5",
		Timezone:       "Europe/Berlin",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	schedule := decode[models.Schedule](t, raw)
	assert.True(t, schedule.IsActive)
	assert.NotNil(t, schedule.NextRunAt)

	off, on := false, true

	resp, raw = a.do(t, http.MethodPatch, "/schedules/"+schedule.ID, web.UpdateScheduleRequest{IsActive: &off})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.False(t, decode[models.Schedule](t, raw).IsActive)

	resp, raw = a.do(t, http.MethodGet, "/workflows/"+id+"/schedules", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.Schedule](t, raw), 1)

	tests := []struct {
		name string
		body web.CreateScheduleRequest
	}{
		{name: "missing expression", body: web.CreateScheduleRequest{}},
		{name: "bad expression", body: web.CreateScheduleRequest{CronExpression: "* * *"}},
		{name: "bad timezone", body: web.CreateScheduleRequest{CronExpression: "* * * * *", Timezone: "Nowhere/Land"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := a.do(t, http.MethodPost, "/workflows/"+id+"/schedules", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(raw))
		})
	}

	resp, _ = a.do(t, http.MethodDelete, "/schedules/"+schedule.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, raw = a.do(t, http.MethodPatch, "/schedules/"+schedule.ID, web.UpdateScheduleRequest{IsActive: &on})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "schedule_not_found", decode[map[string]any](t, raw)["type"])
}

func TestAPIHandlers_Webhooks(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	id := a.publishedWorkflow(t)

	resp, raw := a.do(t, http.MethodPost, "/workflows/"+id+"/webhooks", web.CreateWebhookRequest{Secret: "s3cret"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	hook := decode[web.WebhookResponse](t, raw)
	assert.True(t, hook.HasSecret)
	assert.Equal(t, "http://localhost:9091/api/workflows/webhook/"+hook.Token, hook.URL)
	assert.NotContains(t, string(raw), "secret_hash")

	a.secrets[hook.ID] = "s3cret"

	body := []byte(`{"event":"push"}`)
	path := "/api/workflows/webhook/" + hook.Token

	tests := []struct {
		name           string
		path           string
		sig            string
		expectedStatus int
	}{
		{name: "signed", path: path, sig: signature.Prefix + signature.Sign("s3cret", body), expectedStatus: http.StatusAccepted},
		{name: "bare hex", path: path, sig: signature.Sign("s3cret", body), expectedStatus: http.StatusAccepted},
		{name: "wrong secret", path: path, sig: signature.Sign("nope", body), expectedStatus: http.StatusUnauthorized},
		{name: "unsigned", path: path, expectedStatus: http.StatusUnauthorized},
		{name: "unknown token", path: "/api/workflows/webhook/unknown", expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := a.do(t, http.MethodPost, tt.path, body, web.SignatureHeader, tt.sig)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(raw))
		})
	}

	runs, err := a.persistence.RunRepository().ListRuns(t.Context(), id)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, models.TriggerSourceWebhook, runs[0].TriggerSource)
	assert.Equal(t, "push", runs[0].TriggerData["event"])

	resp, raw = a.do(t, http.MethodGet, "/workflows/"+id+"/webhooks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	listed := decode[[]web.WebhookResponse](t, raw)
	require.Len(t, listed, 1)
	assert.NotNil(t, listed[0].LastTriggeredAt)

	resp, _ = a.do(t, http.MethodDelete, "/webhooks/"+hook.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = a.do(t, http.MethodPost, path, body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
