// Package template resolves {{stepId.field.path}} references against the
// outputs of previously completed steps.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	wholeReference    = regexp.MustCompile(`^\s*\{\{\s*([^{}\s]+)\s*\}\}\s*$`)
	embeddedReference = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)
)

// Reference points at a value inside a prior step's output map.
type Reference struct {
	StepID string
	Path   []string
}

// String renders the reference back in its {{...}} form.
func (r Reference) String() string {
	return "{{" + strings.Join(append([]string{r.StepID}, r.Path...), ".") + "}}"
}

// Parse returns the reference when s consists of exactly one {{...}}
// expression. ok is false for plain values and malformed references.
func Parse(s string) (Reference, bool) {
	match := wholeReference.FindStringSubmatch(s)
	if match == nil {
		return Reference{}, false
	}

	return parseExpression(match[1])
}

func parseExpression(expr string) (Reference, bool) {
	parts := strings.Split(expr, ".")
	for _, part := range parts {
		if part == "" {
			return Reference{}, false
		}
	}

	return Reference{StepID: parts[0], Path: parts[1:]}, true
}

// Lookup walks the reference through outputs. found is false on any miss.
func (r Reference) Lookup(outputs map[string]map[string]any) (any, bool) {
	output, ok := outputs[r.StepID]
	if !ok {
		return nil, false
	}

	var current any = output

	for _, key := range r.Path {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}

		if current, ok = m[key]; !ok {
			return nil, false
		}
	}

	return current, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}

		return out, true
	default:
		return nil, false
	}
}

// Resolve returns the referenced value when value is a string holding a
// single reference, nil when that reference misses, and value unchanged
// otherwise.
func Resolve(value any, outputs map[string]map[string]any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}

	ref, ok := Parse(s)
	if !ok {
		return value
	}

	resolved, _ := ref.Lookup(outputs)

	return resolved
}

// Interpolate replaces every embedded reference in s with the formatted
// referenced value. Missing references render as an empty string.
func Interpolate(s string, outputs map[string]map[string]any) string {
	return embeddedReference.ReplaceAllStringFunc(s, func(token string) string {
		ref, ok := parseExpression(embeddedReference.FindStringSubmatch(token)[1])
		if !ok {
			return token
		}

		value, found := ref.Lookup(outputs)
		if !found || value == nil {
			return ""
		}

		return fmt.Sprint(value)
	})
}

// TriggerDataKey exposes the run's trigger payload to references, as in
// {{trigger_data.body.id}}, unless a step already uses that id.
const TriggerDataKey = "trigger_data"

// Scope returns the lookup table references resolve against: the outputs of
// completed steps plus the trigger payload.
func Scope(previousOutputs map[string]map[string]any, triggerData map[string]any) map[string]map[string]any {
	scope := make(map[string]map[string]any, len(previousOutputs)+1)
	for id, output := range previousOutputs {
		scope[id] = output
	}

	if _, taken := scope[TriggerDataKey]; !taken && triggerData != nil {
		scope[TriggerDataKey] = triggerData
	}

	return scope
}
