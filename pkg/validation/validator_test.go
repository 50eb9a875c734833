package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/stepflow/pkg/models"
	. "github.com/dukex/stepflow/pkg/testutil"
)

func codes(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issue.Code)
	}

	return out
}

func TestValidate_CleanGraph(t *testing.T) {
	result := Validate(LinearSteps())

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidate_EmptyGraph(t *testing.T) {
	result := Validate(nil)

	assert.True(t, result.Valid)
	assert.Empty(t, result.Warnings)
}

func TestValidate_TwoStepCycle(t *testing.T) {
	steps := []*models.Step{
		Trigger("t"),
		Action("a", WithDependencies("t", "b")),
		Action("b", WithDependencies("a")),
	}

	result := Validate(steps)

	require.False(t, result.Valid)

	var cycles []Issue

	for _, issue := range result.Errors {
		if issue.Code == CodeCycleDetected {
			cycles = append(cycles, issue)
		}
	}

	require.Len(t, cycles, 1)
	assert.Contains(t, cycles[0].Message, "a")
	assert.Contains(t, cycles[0].Message, "b")
	assert.Contains(t, cycles[0].Message, "a -> b -> a")
}

func TestValidate_CycleAcrossParentAndDependencyEdges(t *testing.T) {
	steps := []*models.Step{
		Trigger("t"),
		Condition("cond", WithDependencies("t", "branch")),
		Action("branch", WithBranch("cond", models.BranchTypeIfTrue)),
	}

	result := Validate(steps)

	require.False(t, result.Valid)
	assert.True(t, result.HasError(CodeCycleDetected))
}

func TestValidate_SelfDependency(t *testing.T) {
	steps := []*models.Step{
		Trigger("t"),
		Action("a", WithDependencies("a")),
	}

	result := Validate(steps)

	require.True(t, result.HasError(CodeCycleDetected))
	assert.Contains(t, result.Errors[0].Message, "a -> a")
}

func TestValidate_MissingReferences(t *testing.T) {
	steps := []*models.Step{
		Trigger("t"),
		Action("a", WithDependencies("t", "ghost")),
		Action("b", WithBranch("nowhere", models.BranchTypeIfTrue)),
	}

	result := Validate(steps)

	require.False(t, result.Valid)
	assert.True(t, result.HasError(CodeMissingDependency))
	assert.True(t, result.HasError(CodeMissingParent))
}

func TestValidate_NoTriggerIsOnlyAWarning(t *testing.T) {
	steps := []*models.Step{
		Action("a"),
		Action("b", WithDependencies("a")),
	}

	result := Validate(steps)

	assert.True(t, result.Valid)
	assert.Equal(t, []string{CodeNoTrigger}, codes(result.Warnings))
}

func TestValidate_OrphanStep(t *testing.T) {
	steps := []*models.Step{
		Trigger("t"),
		Action("a", WithDependencies("t")),
		Action("lonely"),
	}

	result := Validate(steps)

	assert.True(t, result.Valid)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, CodeOrphanStep, result.Warnings[0].Code)
	assert.Equal(t, "lonely", result.Warnings[0].StepID)
}

func TestValidate_FieldChecks(t *testing.T) {
	testCases := []struct {
		name string
		step *models.Step
		code string
	}{
		{
			name: "missing name",
			step: Action("a", WithDependencies("t"), WithName("  ")),
			code: CodeMissingName,
		},
		{
			name: "invalid type",
			step: Action("a", WithDependencies("t"), WithType("LOOP")),
			code: CodeInvalidType,
		},
		{
			name: "negative sequence",
			step: Action("a", WithDependencies("t"), WithSequence(-1)),
			code: CodeInvalidSequence,
		},
		{
			name: "branch without parent",
			step: Action("a", WithDependencies("t"), func(s *models.Step) { s.BranchType = models.BranchTypeIfTrue }),
			code: CodeBranchWithoutParent,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := Validate([]*models.Step{Trigger("t"), tc.step})

			assert.False(t, result.Valid)
			assert.Equal(t, []string{tc.code}, codes(result.Errors))
			assert.Equal(t, "a", result.Errors[0].StepID)
		})
	}
}

func TestValidate_DuplicateStepID(t *testing.T) {
	steps := []*models.Step{
		Trigger("t"),
		Action("a", WithDependencies("t")),
		Action("a", WithDependencies("t")),
	}

	result := Validate(steps)

	assert.False(t, result.Valid)
	assert.Equal(t, []string{CodeDuplicateStepID}, codes(result.Errors))
}

func TestValidate_ConditionWithoutBranches(t *testing.T) {
	steps := []*models.Step{
		Trigger("t"),
		Condition("c", WithDependencies("t")),
	}

	result := Validate(steps)

	assert.True(t, result.Valid)
	assert.True(t, result.HasWarning(CodeConditionNoBranches))
}

func TestValidate_NestedChildrenAreFlattened(t *testing.T) {
	steps := []*models.Step{
		Trigger("t"),
		Condition("c", WithDependencies("t"), WithChildren(
			Action("yes", func(s *models.Step) { s.BranchType = models.BranchTypeIfTrue }),
			Action("no", func(s *models.Step) { s.BranchType = models.BranchTypeIfFalse }),
		)),
		Action("after", WithDependencies("yes")),
	}

	result := Validate(steps)

	assert.True(t, result.Valid, result.Error())
	assert.Empty(t, result.Warnings)
}

type stubConfigs map[string]error

func (s stubConfigs) ValidateConfig(actionType string, _ map[string]any) error {
	return s[actionType]
}

func TestValidator_InvalidConfig(t *testing.T) {
	v := NewValidator(stubConfigs{"log": errors.New("message is required")})

	result := v.Validate(LinearSteps())

	assert.False(t, result.Valid)
	assert.Equal(t, []string{CodeInvalidConfig, CodeInvalidConfig}, codes(result.Errors))
	assert.Equal(t, "message is required", result.Errors[0].Message)
}

func TestValidateForPublish(t *testing.T) {
	testCases := []struct {
		name     string
		steps    []*models.Step
		valid    bool
		expected []string
	}{
		{
			name:     "empty",
			steps:    nil,
			expected: []string{CodeEmptyWorkflow},
		},
		{
			name:     "no trigger",
			steps:    []*models.Step{Action("a")},
			expected: []string{CodeNoTriggerForPublish},
		},
		{
			name:     "no action",
			steps:    []*models.Step{Trigger("t")},
			expected: []string{CodeNoActionForPublish},
		},
		{
			name:     "orphan blocks publishing",
			steps:    []*models.Step{Trigger("t"), Action("a")},
			expected: []string{CodeOrphanStep},
		},
		{
			name:     "publishable",
			steps:    LinearSteps(),
			valid:    true,
			expected: []string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := ValidateForPublish(tc.steps)

			assert.Equal(t, tc.valid, result.Valid)
			assert.Equal(t, tc.expected, codes(result.Errors))
			assert.False(t, result.HasWarning(CodeOrphanStep))
		})
	}
}
