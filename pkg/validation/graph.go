package validation

import (
	"fmt"
	"strings"

	"github.com/dukex/stepflow/pkg/models"
)

// graph is an id-indexed view over a flat step list with adjacency built once.
type graph struct {
	steps []*models.Step
	byID  map[string]*models.Step
	// children maps a step id to the ids whose ParentStepID points at it.
	children map[string][]string
	// dependents maps a step id to every step that depends on it or is its
	// branch.
	dependents map[string][]string
}

func newGraph(steps []*models.Step) *graph {
	g := &graph{
		steps:      steps,
		byID:       make(map[string]*models.Step, len(steps)),
		children:   make(map[string][]string),
		dependents: make(map[string][]string),
	}

	for _, step := range steps {
		if _, exists := g.byID[step.ID]; !exists {
			g.byID[step.ID] = step
		}
	}

	for _, step := range steps {
		for _, dep := range step.Dependencies {
			g.dependents[dep] = append(g.dependents[dep], step.ID)
		}

		if step.ParentStepID != "" {
			g.children[step.ParentStepID] = append(g.children[step.ParentStepID], step.ID)
			g.dependents[step.ParentStepID] = append(g.dependents[step.ParentStepID], step.ID)
		}
	}

	return g
}

// prerequisites returns the dependency ids followed by the parent id.
func prerequisites(step *models.Step) []string {
	if step.ParentStepID == "" {
		return step.Dependencies
	}

	out := make([]string, 0, len(step.Dependencies)+1)
	out = append(out, step.Dependencies...)

	return append(out, step.ParentStepID)
}

func (g *graph) checkReferences(result *Result) {
	for _, step := range g.steps {
		for _, dep := range step.Dependencies {
			if _, ok := g.byID[dep]; !ok {
				result.Errors = append(result.Errors, Issue{
					Code:    CodeMissingDependency,
					Message: fmt.Sprintf("dependency %q does not exist", dep),
					StepID:  step.ID,
				})
			}
		}

		if step.ParentStepID != "" {
			if _, ok := g.byID[step.ParentStepID]; !ok {
				result.Errors = append(result.Errors, Issue{
					Code:    CodeMissingParent,
					Message: fmt.Sprintf("parent step %q does not exist", step.ParentStepID),
					StepID:  step.ID,
				})
			}
		}
	}
}

const (
	white = iota
	grey
	black
)

// checkCycles runs a coloured depth-first search over dependency and parent
// edges. Every back edge is reported once with the full path.
func (g *graph) checkCycles(result *Result) {
	color := make(map[string]int, len(g.byID))
	stack := make([]string, 0, len(g.byID))

	var visit func(id string)

	visit = func(id string) {
		color[id] = grey
		stack = append(stack, id)

		for _, next := range prerequisites(g.byID[id]) {
			if _, ok := g.byID[next]; !ok {
				continue
			}

			switch color[next] {
			case white:
				visit(next)
			case grey:
				result.Errors = append(result.Errors, Issue{
					Code:    CodeCycleDetected,
					Message: "cycle detected: " + cyclePath(stack, next),
					StepID:  next,
				})
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, step := range g.steps {
		if color[step.ID] == white {
			visit(step.ID)
		}
	}
}

func cyclePath(stack []string, target string) string {
	start := 0

	for i, id := range stack {
		if id == target {
			start = i

			break
		}
	}

	path := append(append([]string{}, stack[start:]...), target)

	return strings.Join(path, " -> ")
}

// checkReachability walks dependents breadth-first from every trigger.
// Without triggers only NO_TRIGGER is reported.
func (g *graph) checkReachability(result *Result) {
	if len(g.steps) == 0 {
		return
	}

	queue := make([]string, 0, len(g.steps))
	reached := make(map[string]bool, len(g.steps))

	for _, step := range g.steps {
		if step.Type == models.StepTypeTrigger && !reached[step.ID] {
			reached[step.ID] = true
			queue = append(queue, step.ID)
		}
	}

	if len(queue) == 0 {
		result.Warnings = append(result.Warnings, Issue{
			Code:    CodeNoTrigger,
			Message: "workflow has no trigger step and can only be run manually",
		})

		return
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, next := range g.dependents[id] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}

	reported := make(map[string]bool)

	for _, step := range g.steps {
		if reached[step.ID] || reported[step.ID] {
			continue
		}

		reported[step.ID] = true
		result.Warnings = append(result.Warnings, Issue{
			Code:    CodeOrphanStep,
			Message: "step is not reachable from any trigger",
			StepID:  step.ID,
		})
	}
}
