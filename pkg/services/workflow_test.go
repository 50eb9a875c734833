package services

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/persistence/file"
	"github.com/dukex/stepflow/pkg/registry"
	tu "github.com/dukex/stepflow/pkg/testutil"
	"github.com/dukex/stepflow/pkg/validation"
)

func newWorkflowService(t *testing.T) (*Workflow, *file.Persistence) {
	t.Helper()

	reg, err := registry.NewDefaultRegistry(slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	p := file.NewPersistence(t.TempDir())

	return NewWorkflow(p, validation.NewValidator(reg)), p
}

func createDraft(t *testing.T, service *Workflow) *models.Workflow {
	t.Helper()

	created, err := service.Create(t.Context(), &models.Workflow{
		WorkspaceID: "workspace-1",
		Name:        "Nightly report",
	})
	require.NoError(t, err)

	return created
}

func TestNewWorkflow(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	service := NewWorkflow(p, nil)

	assert.NotNil(t, service)
	assert.Equal(t, p, service.persistence)
	assert.NotNil(t, service.validator)
}

func TestWorkflow_HealthCheck(t *testing.T) {
	service, _ := newWorkflowService(t)

	message, ok := service.HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)

	message, ok = NewWorkflow(nil, nil).HealthCheck(t.Context())
	assert.False(t, ok)
	assert.Equal(t, "Persistence layer not initialized", message)
}

func TestWorkflow_Create(t *testing.T) {
	service, _ := newWorkflowService(t)

	created := createDraft(t, service)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)
	assert.Empty(t, created.CurrentVersionID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.False(t, created.UpdatedAt.IsZero())

	fetched, err := service.Get(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nightly report", fetched.Name)
}

func TestWorkflow_Create_Invalid(t *testing.T) {
	service, _ := newWorkflowService(t)

	testCases := []struct {
		name     string
		workflow *models.Workflow
		expected error
	}{
		{
			name:     "blank name",
			workflow: &models.Workflow{Name: "   "},
			expected: ErrWorkflowNameRequired,
		},
		{
			name:     "created active",
			workflow: &models.Workflow{Name: "Sneaky", Status: models.WorkflowStatusActive},
			expected: ErrInvalidStatus,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Create(t.Context(), tc.workflow)
			require.ErrorIs(t, err, tc.expected)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestWorkflow_List(t *testing.T) {
	service, _ := newWorkflowService(t)

	createDraft(t, service)
	createDraft(t, service)

	_, err := service.Create(t.Context(), &models.Workflow{WorkspaceID: "workspace-2", Name: "Other"})
	require.NoError(t, err)

	list, err := service.List(t.Context(), "workspace-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	all, err := service.List(t.Context(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestWorkflow_Update(t *testing.T) {
	service, _ := newWorkflowService(t)
	created := createDraft(t, service)

	name := "Renamed"
	description := "now with a description"

	updated, err := service.Update(t.Context(), created.ID, UpdateWorkflowRequest{
		Name:        &name,
		Description: &description,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, description, updated.Description)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	active := models.WorkflowStatusActive
	_, err = service.Update(t.Context(), created.ID, UpdateWorkflowRequest{Status: &active})
	require.ErrorIs(t, err, ErrNoCurrentVersion)
	assert.True(t, IsConflictError(err))

	bogus := models.WorkflowStatus("RUNNING")
	_, err = service.Update(t.Context(), created.ID, UpdateWorkflowRequest{Status: &bogus})
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = service.Update(t.Context(), "missing", UpdateWorkflowRequest{Name: &name})
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflow_Delete_RemovesSchedulesAndWebhooks(t *testing.T) {
	service, p := newWorkflowService(t)
	ctx := t.Context()
	created := createDraft(t, service)

	schedules := NewSchedule(p, slog.New(slog.DiscardHandler))
	schedule, err := schedules.Create(ctx, created.ID, CreateScheduleRequest{CronExpression: "0 * * * *"})
	require.NoError(t, err)

	webhook, err := NewWebhook(p, "http://localhost").Create(ctx, created.ID, CreateWebhookRequest{})
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, created.ID))

	_, err = service.Get(ctx, created.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	_, err = p.ScheduleRepository().GetByID(ctx, schedule.ID)
	require.ErrorIs(t, err, persistence.ErrScheduleNotFound)

	_, err = p.WebhookRepository().GetByToken(ctx, webhook.Token)
	require.ErrorIs(t, err, persistence.ErrWebhookNotFound)

	assert.ErrorIs(t, service.Delete(ctx, created.ID), persistence.ErrWorkflowNotFound)
}

func TestWorkflow_SaveVersion(t *testing.T) {
	service, _ := newWorkflowService(t)
	created := createDraft(t, service)

	first, result, err := service.SaveVersion(t.Context(), created.ID, tu.LinearSteps())
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 1, first.Version)

	second, _, err := service.SaveVersion(t.Context(), created.ID, tu.LinearSteps())
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)
	assert.NotEqual(t, first.ID, second.ID)

	versions, err := service.ListVersions(t.Context(), created.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, first.ID, versions[0].ID)

	got, err := service.GetVersion(t.Context(), created.ID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
}

func TestWorkflow_SaveVersion_Warnings(t *testing.T) {
	service, _ := newWorkflowService(t)
	created := createDraft(t, service)

	version, result, err := service.SaveVersion(t.Context(), created.ID, []*models.Step{tu.Action("only")})
	require.NoError(t, err)
	require.NotNil(t, version)
	assert.True(t, result.Valid)
	assert.True(t, result.HasWarning(validation.CodeNoTrigger))
}

func TestWorkflow_SaveVersion_Rejected(t *testing.T) {
	service, _ := newWorkflowService(t)
	created := createDraft(t, service)

	testCases := []struct {
		name  string
		steps []*models.Step
		code  string
	}{
		{
			name: "cycle",
			steps: []*models.Step{
				tu.Trigger("trigger"),
				tu.Action("a", tu.WithDependencies("b")),
				tu.Action("b", tu.WithDependencies("a")),
			},
			code: validation.CodeCycleDetected,
		},
		{
			name:  "missing dependency",
			steps: []*models.Step{tu.Trigger("trigger"), tu.Action("a", tu.WithDependencies("ghost"))},
			code:  validation.CodeMissingDependency,
		},
		{
			name: "log step without message",
			steps: []*models.Step{
				tu.Trigger("trigger"),
				tu.Action("a", tu.WithDependencies("trigger"), tu.WithConfig(map[string]any{models.ActionTypeKey: "log"})),
			},
			code: validation.CodeInvalidConfig,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			version, result, err := service.SaveVersion(t.Context(), created.ID, tc.steps)
			require.ErrorIs(t, err, ErrInvalidWorkflow)
			assert.Nil(t, version)
			assert.True(t, result.HasError(tc.code))

			var invalid *InvalidWorkflowError
			require.True(t, errors.As(err, &invalid))
			assert.Same(t, result, invalid.Result)
		})
	}

	versions, err := service.ListVersions(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestWorkflow_Publish(t *testing.T) {
	service, _ := newWorkflowService(t)
	created := createDraft(t, service)

	_, _, err := service.SaveVersion(t.Context(), created.ID, tu.LinearSteps())
	require.NoError(t, err)

	published, result, err := service.Publish(t.Context(), created.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, models.WorkflowStatusActive, published.Status)
	assert.NotEmpty(t, published.CurrentVersionID)

	version, err := service.GetVersion(t.Context(), created.ID, published.CurrentVersionID)
	require.NoError(t, err)
	assert.NotNil(t, version.PublishedAt)

	paused, err := service.Pause(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPaused, paused.Status)

	_, err = service.Pause(t.Context(), created.ID)
	require.ErrorIs(t, err, ErrWorkflowNotActive)
}

func TestWorkflow_Publish_Rejected(t *testing.T) {
	service, _ := newWorkflowService(t)
	created := createDraft(t, service)

	// Saves fine with a NO_TRIGGER warning, but publishing needs a trigger.
	_, _, err := service.SaveVersion(t.Context(), created.ID, []*models.Step{tu.Action("only")})
	require.NoError(t, err)

	workflow, result, err := service.Publish(t.Context(), created.ID)
	require.ErrorIs(t, err, ErrInvalidWorkflow)
	assert.Nil(t, workflow)
	assert.True(t, result.HasError(validation.CodeNoTriggerForPublish))

	fetched, err := service.Get(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusDraft, fetched.Status)
	assert.Empty(t, fetched.CurrentVersionID)
}

func TestWorkflow_Publish_NoVersion(t *testing.T) {
	service, _ := newWorkflowService(t)
	created := createDraft(t, service)

	_, _, err := service.Publish(t.Context(), created.ID)
	require.ErrorIs(t, err, persistence.ErrVersionNotFound)
}
