package workflow_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/mocks"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/persistence/file"
	"github.com/dukex/stepflow/pkg/protocol"
	"github.com/dukex/stepflow/pkg/registry"
	. "github.com/dukex/stepflow/pkg/testutil"
	"github.com/dukex/stepflow/pkg/workflow"
)

type harness struct {
	persistence *file.Persistence
	registry    *registry.Registry
	executor    *workflow.Executor
	workflow    *models.Workflow
	seen        map[string]models.StepContext
}

func newHarness(t *testing.T, opts ...workflow.Option) *harness {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	reg, err := registry.NewDefaultRegistry(logger)
	require.NoError(t, err)

	h := &harness{
		persistence: file.NewPersistence(t.TempDir()),
		registry:    reg,
		workflow:    CreateTestWorkflow(WithWorkflowID("wf-1")),
		seen:        map[string]models.StepContext{},
	}

	require.NoError(t, reg.Register("record", protocol.HandlerFunc(
		func(_ context.Context, step *models.Step, sc models.StepContext) (map[string]any, error) {
			h.seen[step.ID] = sc

			return map[string]any{"step": step.ID}, nil
		})))
	require.NoError(t, reg.Register("fail", protocol.HandlerFunc(
		func(context.Context, *models.Step, models.StepContext) (map[string]any, error) {
			return nil, errors.New("boom")
		})))
	require.NoError(t, reg.Register("panic", protocol.HandlerFunc(
		func(context.Context, *models.Step, models.StepContext) (map[string]any, error) {
			panic("unexpected")
		})))

	require.NoError(t, h.persistence.WorkflowRepository().Save(t.Context(), h.workflow))

	h.executor = workflow.NewExecutor(
		h.persistence.WorkflowRepository(),
		h.persistence.RunRepository(),
		reg,
		logger,
		opts...,
	)

	return h
}

func (h *harness) run(t *testing.T, steps ...*models.Step) *models.Run {
	t.Helper()

	version := CreateTestVersion(h.workflow.ID, steps...)
	require.NoError(t, h.persistence.WorkflowRepository().SaveVersion(t.Context(), version))

	run, err := h.executor.Execute(t.Context(), workflow.Request{
		WorkflowID:    h.workflow.ID,
		VersionID:     version.ID,
		TriggerSource: models.TriggerSourceManual,
		TriggerData:   map[string]any{"user": "ana"},
	})
	require.NoError(t, err)

	stored, err := h.persistence.RunRepository().GetRun(t.Context(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Status, stored.Status, "returned and stored run must agree")
	assert.Len(t, stored.StepExecutions, len(run.StepExecutions))

	return run
}

func record(id string, overrides ...func(*models.Step)) *models.Step {
	return Action(id, append(overrides, WithConfig(map[string]any{models.ActionTypeKey: "record"}))...)
}

func failing(id string, overrides ...func(*models.Step)) *models.Step {
	return Action(id, append(overrides, WithConfig(map[string]any{models.ActionTypeKey: "fail"}))...)
}

func TestExecute_LinearRunCompletes(t *testing.T) {
	h := newHarness(t)

	run := h.run(t,
		Trigger("trigger"),
		record("a", WithDependencies("trigger")),
		record("b", WithDependencies("a")),
	)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.NotNil(t, run.EndedAt)
	assert.Empty(t, run.Error)

	for _, id := range []string{"trigger", "a", "b"} {
		exec := run.StepExecutions[id]
		require.NotNil(t, exec, id)
		assert.Equal(t, models.StepStatusCompleted, exec.Status, id)
		assert.NotNil(t, exec.StartedAt)
		assert.NotNil(t, exec.EndedAt)
	}

	assert.Equal(t, map[string]any{"step": "b"}, run.StepExecutions["b"].Output)

	seen := h.seen["b"]
	assert.Equal(t, "wf-1", seen.WorkflowID)
	assert.Equal(t, run.ID, seen.RunID)
	assert.Equal(t, "ana", seen.TriggerData["user"])
	assert.Equal(t, map[string]any{"step": "a"}, seen.PreviousOutputs["a"])
	assert.NotContains(t, seen.PreviousOutputs, "b")
}

func TestExecute_RunLog(t *testing.T) {
	h := newHarness(t)

	run := h.run(t, Trigger("trigger"), record("a", WithDependencies("trigger")))

	logs, err := h.persistence.RunRepository().ListLogs(t.Context(), run.ID)
	require.NoError(t, err)
	require.NotEmpty(t, logs)

	assert.Equal(t, "Run started by MANUAL trigger", logs[0].Message)
	assert.Equal(t, "Run completed", logs[len(logs)-1].Message)

	var statuses []models.StepStatus
	for _, entry := range logs {
		if entry.StepID == "a" {
			statuses = append(statuses, entry.StepStatus)
		}
	}

	assert.Equal(t, []models.StepStatus{models.StepStatusRunning, models.StepStatusCompleted}, statuses)
}

func branchWorkflow(left any) []*models.Step {
	return []*models.Step{
		Trigger("trigger"),
		Condition("check",
			WithDependencies("trigger"),
			WithConfig(map[string]any{"leftOperand": left}),
		),
		record("yes", WithBranch("check", models.BranchTypeIfTrue)),
		record("no", WithBranch("check", models.BranchTypeIfFalse)),
		record("always", WithBranch("check", models.BranchTypeDefault)),
		record("no-child", WithBranch("no", models.BranchTypeDefault)),
		record("after-no", WithDependencies("no")),
		record("after-after-no", WithDependencies("after-no")),
		record("after-yes", WithDependencies("yes")),
	}
}

func TestExecute_BranchPruning(t *testing.T) {
	testCases := []struct {
		name      string
		left      any
		completed []string
		skipped   []string
	}{
		{
			name:      "true result",
			left:      true,
			completed: []string{"trigger", "check", "yes", "always", "after-yes"},
			skipped:   []string{"no", "no-child", "after-no", "after-after-no"},
		},
		{
			name:      "false result",
			left:      false,
			completed: []string{"trigger", "check", "no", "always", "no-child", "after-no", "after-after-no"},
			skipped:   []string{"yes", "after-yes"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			run := h.run(t, branchWorkflow(tc.left)...)

			assert.Equal(t, models.RunStatusCompleted, run.Status)

			for _, id := range tc.completed {
				assert.Equal(t, models.StepStatusCompleted, run.StepStatus(id), id)
			}

			for _, id := range tc.skipped {
				exec := run.StepExecutions[id]
				require.NotNil(t, exec, id)
				assert.Equal(t, models.StepStatusSkipped, exec.Status, id)
				assert.Zero(t, exec.DurationMs, id)
				assert.NotContains(t, h.seen, id, "skipped step %s must not run", id)
			}
		})
	}
}

func TestExecute_UntaggedConditionChildIsSkipped(t *testing.T) {
	for _, left := range []bool{true, false} {
		h := newHarness(t)

		run := h.run(t,
			Trigger("trigger"),
			Condition("check", WithDependencies("trigger"), WithConfig(map[string]any{"leftOperand": left})),
			record("untagged", WithBranch("check", "")),
			record("default", WithBranch("check", models.BranchTypeDefault)),
		)

		assert.Equal(t, models.RunStatusCompleted, run.Status)
		assert.Equal(t, models.StepStatusSkipped, run.StepStatus("untagged"), "left=%v", left)
		assert.Equal(t, models.StepStatusCompleted, run.StepStatus("default"), "left=%v", left)
		assert.NotContains(t, h.seen, "untagged")
	}
}

func TestExecute_ConditionWithoutOutputKeepsBranches(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.registry.Register("silent", protocol.HandlerFunc(
		func(context.Context, *models.Step, models.StepContext) (map[string]any, error) {
			return nil, nil
		})))

	run := h.run(t,
		Trigger("trigger"),
		Condition("check", WithDependencies("trigger"), WithConfig(map[string]any{models.ActionTypeKey: "silent"})),
		record("yes", WithBranch("check", models.BranchTypeIfTrue)),
		record("no", WithBranch("check", models.BranchTypeIfFalse)),
	)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, models.StepStatusCompleted, run.StepStatus("yes"))
	assert.Equal(t, models.StepStatusCompleted, run.StepStatus("no"))
}

func TestExecute_HandlersGetACopyOfOutputs(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.registry.Register("tamper", protocol.HandlerFunc(
		func(_ context.Context, _ *models.Step, sc models.StepContext) (map[string]any, error) {
			delete(sc.PreviousOutputs, "a")
			sc.PreviousOutputs["forged"] = map[string]any{"step": "forged"}

			return map[string]any{}, nil
		})))

	run := h.run(t,
		Trigger("trigger"),
		record("a", WithDependencies("trigger")),
		Action("tamper", WithDependencies("a"), WithConfig(map[string]any{models.ActionTypeKey: "tamper"})),
		record("b", WithDependencies("tamper")),
	)

	assert.Equal(t, models.RunStatusCompleted, run.Status)

	seen := h.seen["b"].PreviousOutputs
	assert.Equal(t, map[string]any{"step": "a"}, seen["a"])
	assert.NotContains(t, seen, "forged")
	assert.NotContains(t, h.seen["a"].PreviousOutputs, "b", "earlier contexts must not grow")
}

func TestExecute_FirstFailureHaltsRun(t *testing.T) {
	h := newHarness(t)

	run := h.run(t,
		Trigger("trigger"),
		record("first", WithDependencies("trigger"), WithSequence(1)),
		failing("broken", WithDependencies("trigger"), WithSequence(2)),
		record("sibling", WithDependencies("trigger"), WithSequence(3)),
		record("after", WithDependencies("broken")),
	)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.NotNil(t, run.EndedAt)
	assert.Contains(t, run.Error, "broken")
	assert.Contains(t, run.Error, "boom")

	assert.Equal(t, models.StepStatusCompleted, run.StepStatus("first"))
	assert.Equal(t, models.StepStatusFailed, run.StepStatus("broken"))
	assert.Equal(t, "boom", run.StepExecutions["broken"].Error)

	assert.NotContains(t, run.StepExecutions, "sibling")
	assert.NotContains(t, run.StepExecutions, "after")
	assert.Equal(t, models.StepStatusPending, run.StepStatus("after"))
}

func TestExecute_SkippedStepsKeepStatusAfterFailure(t *testing.T) {
	h := newHarness(t)

	run := h.run(t,
		Trigger("trigger"),
		Condition("check", WithDependencies("trigger"), WithConfig(map[string]any{"leftOperand": false})),
		record("yes", WithBranch("check", models.BranchTypeIfTrue), WithSequence(1)),
		failing("no", WithBranch("check", models.BranchTypeIfFalse), WithSequence(2)),
	)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, models.StepStatusSkipped, run.StepStatus("yes"))
	assert.Equal(t, models.StepStatusFailed, run.StepStatus("no"))
}

func TestExecute_HandlerProblemsFailTheStep(t *testing.T) {
	testCases := []struct {
		name       string
		actionType string
		message    string
	}{
		{"missing handler", "nope", "no handler registered"},
		{"handler panic", "panic", "handler panicked: unexpected"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)

			run := h.run(t,
				Trigger("trigger"),
				Action("a", WithDependencies("trigger"), WithConfig(map[string]any{models.ActionTypeKey: tc.actionType})),
			)

			assert.Equal(t, models.RunStatusFailed, run.Status)
			assert.Equal(t, models.StepStatusFailed, run.StepStatus("a"))
			assert.Contains(t, run.StepExecutions["a"].Error, tc.message)
		})
	}
}

func TestExecute_ConditionSeesEarlierOutputs(t *testing.T) {
	h := newHarness(t)

	run := h.run(t,
		Trigger("trigger"),
		record("fetch", WithDependencies("trigger")),
		Condition("check", WithDependencies("fetch"), WithConfig(map[string]any{
			"leftOperand":  "{{fetch.step}}",
			"operator":     "equals",
			"rightOperand": "fetch",
		})),
		record("matched", WithBranch("check", models.BranchTypeIfTrue)),
	)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, true, run.StepExecutions["check"].Output["result"])
	assert.Equal(t, models.StepStatusCompleted, run.StepStatus("matched"))
}

func TestExecute_ResolvesVersion(t *testing.T) {
	h := newHarness(t)
	repo := h.persistence.WorkflowRepository()

	_, err := h.executor.Execute(t.Context(), workflow.Request{WorkflowID: "wf-1"})
	require.ErrorIs(t, err, workflow.ErrNoVersion)

	v1 := CreateTestVersion("wf-1", Trigger("one"))
	v2 := CreateTestVersion("wf-1", Trigger("two"))
	v2.Version = 2

	require.NoError(t, repo.SaveVersion(t.Context(), v1))
	require.NoError(t, repo.SaveVersion(t.Context(), v2))

	run, err := h.executor.Execute(t.Context(), workflow.Request{WorkflowID: "wf-1"})
	require.NoError(t, err)
	assert.Equal(t, v2.ID, run.WorkflowVersionID)

	h.workflow.CurrentVersionID = v1.ID
	require.NoError(t, repo.Save(t.Context(), h.workflow))

	run, err = h.executor.Execute(t.Context(), workflow.Request{WorkflowID: "wf-1"})
	require.NoError(t, err)
	assert.Equal(t, v1.ID, run.WorkflowVersionID)
	assert.Contains(t, run.StepExecutions, "one")

	other := CreateTestVersion("wf-other", Trigger("x"))
	require.NoError(t, repo.SaveVersion(t.Context(), other))

	_, err = h.executor.Execute(t.Context(), workflow.Request{WorkflowID: "wf-1", VersionID: other.ID})
	require.ErrorIs(t, err, workflow.ErrVersionMismatched)

	_, err = h.executor.Execute(t.Context(), workflow.Request{WorkflowID: "ghost"})
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestExecute_PublishesLifecycleEvents(t *testing.T) {
	bus := &mocks.MockEventBus{}

	var published []events.EventType

	bus.On("Publish", mock.Anything, "wf-1", mock.Anything).
		Run(func(args mock.Arguments) {
			published = append(published, args.Get(2).(interface{ GetType() events.EventType }).GetType())
		}).
		Return(nil)

	h := newHarness(t, workflow.WithPublisher(bus))
	h.run(t, Trigger("trigger"), failing("a", WithDependencies("trigger")))

	assert.Equal(t, []events.EventType{
		events.RunStartedEvent,
		events.StepFinishedEvent,
		events.StepFinishedEvent,
		events.RunFailedEvent,
	}, published)
}

func TestExecute_PublishFailureDoesNotAffectRun(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	h := newHarness(t, workflow.WithPublisher(bus))
	run := h.run(t, Trigger("trigger"))

	assert.Equal(t, models.RunStatusCompleted, run.Status)
}

func TestExecute_PersistenceFailureFailsRun(t *testing.T) {
	workflows := &mocks.MockWorkflowRepository{}
	runs := &mocks.MockRunRepository{}

	wf := CreateTestWorkflow(WithWorkflowID("wf-1"))
	version := CreateTestVersion("wf-1", Trigger("trigger"), record("a", WithDependencies("trigger")))

	workflows.On("GetByID", mock.Anything, "wf-1").Return(wf, nil)
	workflows.On("GetVersion", mock.Anything, version.ID).Return(version, nil)

	storageErr := errors.New("disk full")

	runs.On("CreateRun", mock.Anything, mock.Anything).Return(nil)
	runs.On("AppendLog", mock.Anything, mock.Anything).Return(nil)
	runs.On("UpdateStepExecution", mock.Anything, mock.Anything, "trigger", mock.Anything).Return(storageErr)
	runs.On("FinishRun", mock.Anything, mock.Anything, models.RunStatusFailed, mock.Anything, "disk full").Return(nil)

	reg := registry.NewRegistry(slog.New(slog.DiscardHandler))
	require.NoError(t, reg.RegisterDefaults())

	executor := workflow.NewExecutor(workflows, runs, reg, slog.New(slog.DiscardHandler))

	run, err := executor.Execute(t.Context(), workflow.Request{WorkflowID: "wf-1", VersionID: version.ID})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, "disk full", run.Error)
	assert.NotNil(t, run.EndedAt)
	runs.AssertCalled(t, "FinishRun", mock.Anything, run.ID, models.RunStatusFailed, mock.Anything, "disk full")
	runs.AssertNotCalled(t, "UpdateStepExecution", mock.Anything, mock.Anything, "a", mock.Anything)
}

func TestExecute_CreateRunFailureIsReturned(t *testing.T) {
	workflows := &mocks.MockWorkflowRepository{}
	runs := &mocks.MockRunRepository{}

	wf := CreateTestWorkflow(WithWorkflowID("wf-1"))
	version := CreateTestVersion("wf-1", Trigger("trigger"))

	workflows.On("GetByID", mock.Anything, "wf-1").Return(wf, nil)
	workflows.On("GetVersion", mock.Anything, version.ID).Return(version, nil)
	runs.On("CreateRun", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	executor := workflow.NewExecutor(workflows, runs, registry.NewRegistry(slog.New(slog.DiscardHandler)),
		slog.New(slog.DiscardHandler))

	run, err := executor.Execute(t.Context(), workflow.Request{WorkflowID: "wf-1", VersionID: version.ID})
	require.Error(t, err)
	assert.Nil(t, run)
	runs.AssertNotCalled(t, "AppendLog", mock.Anything, mock.Anything)
}
