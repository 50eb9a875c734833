package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/stepflow/pkg/cron"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/registry"
	. "github.com/dukex/stepflow/pkg/testutil"
	"github.com/dukex/stepflow/pkg/validation"
)

func writeSteps(t *testing.T, content string, ext ...string) string {
	t.Helper()

	name := "steps.json"
	if len(ext) > 0 {
		name = "steps" + ext[0]
	}

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestPrintNextRuns(t *testing.T) {
	var out bytes.Buffer

	from := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, printNextRuns(&out, "0 12 * * *", "UTC", from, 2))

	assert.Equal(t,
		"2024-01-15T12:00:00Z  (2024-01-15T12:00:00Z)\n2024-01-16T12:00:00Z  (2024-01-16T12:00:00Z)\n",
		out.String())

	require.ErrorIs(t, printNextRuns(&out, "* * *", "UTC", from, 1), cron.ErrInvalidExpression)
	require.ErrorIs(t, printNextRuns(&out, "* * * * *", "Nowhere/Land", from, 1), cron.ErrUnknownTimezone)
}

func TestLoadSteps(t *testing.T) {
	testCases := []struct {
		name    string
		ext     string
		content string
	}{
		{name: "array", ext: ".json", content: `[{"id":"trigger","type":"TRIGGER"},{"id":"a","type":"ACTION","dependencies":["trigger"]}]`},
		{name: "object", ext: ".json", content: `{"steps":[{"id":"trigger","type":"TRIGGER"},{"id":"a","type":"ACTION","dependencies":["trigger"]}]}`},
		{
			name: "yaml",
			ext:  ".yaml",
			content: `steps:
  - id: trigger
    type: TRIGGER
  - id: a
    type: ACTION
    dependencies: [trigger]
    config:
      actionType: log
      message: hello
`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			steps, err := loadSteps(writeSteps(t, tc.content, tc.ext))
			require.NoError(t, err)
			require.Len(t, steps, 2)
			assert.Equal(t, []string{"trigger"}, steps[1].Dependencies)
		})
	}

	_, err := loadSteps("")
	require.Error(t, err)

	_, err = loadSteps(writeSteps(t, "{nope"))
	require.Error(t, err)
}

func TestValidateSteps(t *testing.T) {
	reg, err := registry.NewDefaultRegistry(slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	validator := validation.NewValidator(reg)

	var out bytes.Buffer
	require.NoError(t, validateSteps(&out, validator, LinearSteps(), true))

	var result validation.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.True(t, result.Valid)

	out.Reset()

	cyclic := []*models.Step{Trigger("t"), Action("a", WithDependencies("b")), Action("b", WithDependencies("a"))}
	require.ErrorIs(t, validateSteps(&out, validator, cyclic, false), errInvalidWorkflow)
	assert.Contains(t, out.String(), validation.CodeCycleDetected)
}

func TestPrintPlan(t *testing.T) {
	var out bytes.Buffer

	steps := []*models.Step{
		Trigger("trigger"),
		Action("left", WithDependencies("trigger")),
		Action("right", WithDependencies("trigger")),
		Action("join", WithDependencies("left", "right")),
	}

	require.NoError(t, printPlan(&out, steps))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "wave 1: trigger", lines[0])
	assert.Contains(t, lines[1], "left")
	assert.Contains(t, lines[1], "right")
	assert.Equal(t, "wave 3: join", lines[2])
}

func TestRunSteps(t *testing.T) {
	var out bytes.Buffer

	err := runSteps(t.Context(), &out, slog.New(slog.DiscardHandler), t.TempDir(), LinearSteps(), map[string]any{"k": "v"})
	require.NoError(t, err)

	var run models.Run
	require.NoError(t, json.Unmarshal(out.Bytes(), &run))
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, "v", run.TriggerData["k"])

	cyclic := []*models.Step{Action("a", WithDependencies("b")), Action("b", WithDependencies("a"))}
	err = runSteps(t.Context(), &out, slog.New(slog.DiscardHandler), t.TempDir(), cyclic, nil)
	require.ErrorIs(t, err, errInvalidWorkflow)
}
