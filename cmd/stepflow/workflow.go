package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence/file"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/validation"
	"github.com/dukex/stepflow/pkg/workflow"
)

var errInvalidWorkflow = errors.New("workflow is invalid")

func workflowCommand() *cli.Command {
	return &cli.Command{
		Name:  "workflow",
		Usage: "Validate, plan and run a step file",
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Validate a step file",
				ArgsUsage: "<file.json|file.yaml>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "publish", Usage: "Apply the publish rules"},
				},
				Action: func(_ context.Context, command *cli.Command) error {
					steps, err := loadSteps(command.Args().First())
					if err != nil {
						return err
					}

					reg, err := registry.NewDefaultRegistry(slog.Default())
					if err != nil {
						return err
					}

					err = validateSteps(command.Root().Writer, validation.NewValidator(reg), steps, command.Bool("publish"))
					if errors.Is(err, errInvalidWorkflow) {
						return cli.Exit(err.Error(), 1)
					}

					return err
				},
			},
			{
				Name:      "plan",
				Usage:     "Print the execution waves of a step file",
				ArgsUsage: "<file.json|file.yaml>",
				Action: func(_ context.Context, command *cli.Command) error {
					steps, err := loadSteps(command.Args().First())
					if err != nil {
						return err
					}

					return printPlan(command.Root().Writer, steps)
				},
			},
			{
				Name:      "run",
				Usage:     "Execute a step file with the built-in handlers",
				ArgsUsage: "<file.json|file.yaml>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "trigger-data", Usage: "JSON object passed as trigger data", Value: "{}"},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					steps, err := loadSteps(command.Args().First())
					if err != nil {
						return err
					}

					var data map[string]any
					if err := json.Unmarshal([]byte(command.String("trigger-data")), &data); err != nil {
						return fmt.Errorf("invalid --trigger-data: %w", err)
					}

					dir, err := os.MkdirTemp("", "stepflow-run-")
					if err != nil {
						return err
					}
					defer os.RemoveAll(dir)

					return runSteps(ctx, command.Root().Writer, slog.Default(), dir, steps, data)
				},
			},
		},
	}
}

// loadSteps reads a step file: a bare step array or an object with a
// "steps" key, as JSON or (.yaml/.yml) YAML.
func loadSteps(path string) ([]*models.Step, error) {
	if path == "" {
		return nil, errors.New("a step file is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err = yamlToJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
		var steps []*models.Step
		if err := json.Unmarshal(raw, &steps); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}

		return steps, nil
	}

	var doc struct {
		Steps []*models.Step `json:"steps"`
	}

	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return doc.Steps, nil
}

// yamlToJSON re-encodes a YAML document so the json tags of models.Step
// apply to both formats.
func yamlToJSON(raw []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	return json.Marshal(doc)
}

func validateSteps(w io.Writer, validator *validation.Validator, steps []*models.Step, forPublish bool) error {
	result := validator.Validate(steps)
	if forPublish {
		result = validator.ValidateForPublish(steps)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(result); err != nil {
		return err
	}

	if !result.Valid {
		return errInvalidWorkflow
	}

	return nil
}

func printPlan(w io.Writer, steps []*models.Step) error {
	for i, wave := range workflow.PlanWaves(steps) {
		ids := make([]string, 0, len(wave))
		for _, step := range wave {
			ids = append(ids, step.ID)
		}

		if _, err := fmt.Fprintf(w, "wave %d: %s\n", i+1, strings.Join(ids, ", ")); err != nil {
			return err
		}
	}

	return nil
}

// runSteps stores steps as the published version of a throwaway workflow in
// dir and runs it once.
func runSteps(
	ctx context.Context,
	w io.Writer,
	logger *slog.Logger,
	dir string,
	steps []*models.Step,
	data map[string]any,
) error {
	reg, err := registry.NewDefaultRegistry(logger)
	if err != nil {
		return err
	}

	if result := validation.NewValidator(reg).Validate(steps); !result.Valid {
		return fmt.Errorf("%w: %s", errInvalidWorkflow, result.Error())
	}

	p := file.NewPersistence(dir)
	now := time.Now().UTC()

	version := &models.WorkflowVersion{
		ID:          uuid.New().String(),
		WorkflowID:  uuid.New().String(),
		Version:     1,
		Steps:       steps,
		CreatedAt:   now,
		PublishedAt: &now,
	}

	wf := &models.Workflow{
		ID:               version.WorkflowID,
		WorkspaceID:      "local",
		Name:             "local run",
		Status:           models.WorkflowStatusActive,
		CurrentVersionID: version.ID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := p.WorkflowRepository().Save(ctx, wf); err != nil {
		return err
	}

	if err := p.WorkflowRepository().SaveVersion(ctx, version); err != nil {
		return err
	}

	executor := workflow.NewExecutor(p.WorkflowRepository(), p.RunRepository(), reg, logger)

	run, err := executor.Execute(ctx, workflow.Request{
		WorkflowID:    wf.ID,
		VersionID:     version.ID,
		TriggerSource: models.TriggerSourceManual,
		TriggerData:   data,
	})
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(run)
}
