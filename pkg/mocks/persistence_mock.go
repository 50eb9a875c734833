package mocks

import (
	"context"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) List(ctx context.Context, workspaceID string) ([]*models.Workflow, error) {
	args := m.Called(ctx, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockWorkflowRepository) SaveVersion(ctx context.Context, version *models.WorkflowVersion) error {
	args := m.Called(ctx, version)

	return args.Error(0)
}

func (m *MockWorkflowRepository) GetVersion(ctx context.Context, versionID string) (*models.WorkflowVersion, error) {
	args := m.Called(ctx, versionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowVersion), args.Error(1)
}

func (m *MockWorkflowRepository) LatestVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowVersion), args.Error(1)
}

func (m *MockWorkflowRepository) ListVersions(ctx context.Context, workflowID string) ([]*models.WorkflowVersion, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowVersion), args.Error(1)
}

// MockRunRepository is a mock implementation of persistence.RunRepository interface.
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) CreateRun(ctx context.Context, run *models.Run) error {
	args := m.Called(ctx, run)

	return args.Error(0)
}

func (m *MockRunRepository) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Run), args.Error(1)
}

func (m *MockRunRepository) ListRuns(ctx context.Context, workflowID string) ([]*models.Run, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Run), args.Error(1)
}

func (m *MockRunRepository) UpdateStepExecution(
	ctx context.Context,
	runID, stepID string,
	execution *models.StepExecution,
) error {
	args := m.Called(ctx, runID, stepID, execution)

	return args.Error(0)
}

func (m *MockRunRepository) FinishRun(
	ctx context.Context,
	runID string,
	status models.RunStatus,
	endedAt time.Time,
	runErr string,
) error {
	args := m.Called(ctx, runID, status, endedAt, runErr)

	return args.Error(0)
}

func (m *MockRunRepository) AppendLog(ctx context.Context, entry *models.RunLog) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockRunRepository) ListLogs(ctx context.Context, runID string) ([]*models.RunLog, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.RunLog), args.Error(1)
}

// MockScheduleRepository is a mock implementation of persistence.ScheduleRepository interface.
type MockScheduleRepository struct {
	mock.Mock
}

func (m *MockScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	args := m.Called(ctx, schedule)

	return args.Error(0)
}

func (m *MockScheduleRepository) GetByID(ctx context.Context, id string) (*models.Schedule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Schedule, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockScheduleRepository) DueSchedules(ctx context.Context, before time.Time) ([]*models.Schedule, error) {
	args := m.Called(ctx, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) ClaimSchedule(
	ctx context.Context,
	id string,
	expectedNextRunAt, lastRunAt time.Time,
	nextRunAt *time.Time,
) (bool, error) {
	args := m.Called(ctx, id, expectedNextRunAt, lastRunAt, nextRunAt)

	return args.Bool(0), args.Error(1)
}

// MockWebhookRepository is a mock implementation of persistence.WebhookRepository interface.
type MockWebhookRepository struct {
	mock.Mock
}

func (m *MockWebhookRepository) Save(ctx context.Context, webhook *models.Webhook) error {
	args := m.Called(ctx, webhook)

	return args.Error(0)
}

func (m *MockWebhookRepository) GetByID(ctx context.Context, id string) (*models.Webhook, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Webhook), args.Error(1)
}

func (m *MockWebhookRepository) GetByToken(ctx context.Context, token string) (*models.Webhook, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Webhook), args.Error(1)
}

func (m *MockWebhookRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Webhook, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Webhook), args.Error(1)
}

func (m *MockWebhookRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockWebhookRepository) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)

	return args.Error(0)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	Workflows MockWorkflowRepository
	Runs      MockRunRepository
	Schedules MockScheduleRepository
	Webhooks  MockWebhookRepository
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return &m.Workflows
}

func (m *MockPersistence) RunRepository() persistence.RunRepository {
	return &m.Runs
}

func (m *MockPersistence) ScheduleRepository() persistence.ScheduleRepository {
	return &m.Schedules
}

func (m *MockPersistence) WebhookRepository() persistence.WebhookRepository {
	return &m.Webhooks
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
