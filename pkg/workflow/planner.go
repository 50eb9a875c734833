// Package workflow plans and executes runs of workflow versions.
package workflow

import (
	"slices"

	"github.com/dukex/stepflow/pkg/models"
)

// PlanWaves groups steps into waves. A step joins a wave once every
// dependency and its parent are in earlier waves; each wave is ordered by
// Sequence, ties keeping input order. Steps whose prerequisites never
// become satisfied are left out. Nested children are flattened first.
func PlanWaves(steps []*models.Step) [][]*models.Step {
	flat := models.FlattenSteps(steps)
	scheduled := make(map[string]bool, len(flat))
	remaining := flat

	var waves [][]*models.Step

	for len(remaining) > 0 {
		var ready, blocked []*models.Step

		for _, step := range remaining {
			if prerequisitesMet(step, scheduled) {
				ready = append(ready, step)
			} else {
				blocked = append(blocked, step)
			}
		}

		if len(ready) == 0 {
			break
		}

		slices.SortStableFunc(ready, func(a, b *models.Step) int {
			return a.Sequence - b.Sequence
		})

		for _, step := range ready {
			scheduled[step.ID] = true
		}

		waves = append(waves, ready)
		remaining = blocked
	}

	return waves
}

// Plan returns the steps in execution order: the waves of PlanWaves
// concatenated.
func Plan(steps []*models.Step) []*models.Step {
	var plan []*models.Step
	for _, wave := range PlanWaves(steps) {
		plan = append(plan, wave...)
	}

	return plan
}

func prerequisitesMet(step *models.Step, scheduled map[string]bool) bool {
	for _, dep := range step.Dependencies {
		if !scheduled[dep] {
			return false
		}
	}

	return step.ParentStepID == "" || scheduled[step.ParentStepID]
}
