package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var outputs = map[string]map[string]any{
	"fetch": {
		"status": 200,
		"body": map[string]any{
			"user": map[string]any{"name": "ada", "tags": []any{"admin"}},
		},
		"headers": map[string]string{"content-type": "application/json"},
	},
	"empty": {},
}

func TestParse(t *testing.T) {
	testCases := []struct {
		input  string
		ok     bool
		stepID string
		path   []string
	}{
		{input: "{{fetch.status}}", ok: true, stepID: "fetch", path: []string{"status"}},
		{input: "{{ fetch.body.user.name }}", ok: true, stepID: "fetch", path: []string{"body", "user", "name"}},
		{input: "{{fetch}}", ok: true, stepID: "fetch", path: []string{}},
		{input: "fetch.status", ok: false},
		{input: "prefix {{fetch.status}}", ok: false},
		{input: "{{fetch..status}}", ok: false},
		{input: "{{}}", ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			ref, ok := Parse(tc.input)
			require.Equal(t, tc.ok, ok)

			if tc.ok {
				assert.Equal(t, tc.stepID, ref.StepID)
				assert.Equal(t, tc.path, ref.Path)
			}
		})
	}
}

func TestReference_String(t *testing.T) {
	ref, ok := Parse("{{ fetch.body.user }}")
	require.True(t, ok)
	assert.Equal(t, "{{fetch.body.user}}", ref.String())
}

func TestResolve(t *testing.T) {
	assert.Equal(t, 200, Resolve("{{fetch.status}}", outputs))
	assert.Equal(t, "ada", Resolve("{{fetch.body.user.name}}", outputs))
	assert.Equal(t, []any{"admin"}, Resolve("{{fetch.body.user.tags}}", outputs))
	assert.Equal(t, "application/json", Resolve("{{fetch.headers.content-type}}", outputs))
	assert.Equal(t, map[string]any{}, Resolve("{{empty}}", outputs))

	// Misses resolve to nil.
	assert.Nil(t, Resolve("{{missing.status}}", outputs))
	assert.Nil(t, Resolve("{{fetch.nope}}", outputs))
	assert.Nil(t, Resolve("{{fetch.status.deeper}}", outputs))

	// Plain values pass through.
	assert.Equal(t, "literal", Resolve("literal", outputs))
	assert.Equal(t, 42, Resolve(42, outputs))
	assert.Nil(t, Resolve(nil, outputs))
}

func TestInterpolate(t *testing.T) {
	assert.Equal(t,
		"user ada got 200",
		Interpolate("user {{fetch.body.user.name}} got {{ fetch.status }}", outputs))
	assert.Equal(t, "missing: []", Interpolate("missing: [{{ghost.value}}]", outputs))
	assert.Equal(t, "no references", Interpolate("no references", outputs))
}

func TestScope(t *testing.T) {
	scope := Scope(outputs, map[string]any{"id": "evt-1"})

	assert.Equal(t, "evt-1", Resolve("{{trigger_data.id}}", scope))
	assert.Equal(t, 200, Resolve("{{fetch.status}}", scope))

	shadowed := Scope(map[string]map[string]any{"trigger_data": {"id": "step"}}, map[string]any{"id": "evt-1"})
	assert.Equal(t, "step", Resolve("{{trigger_data.id}}", shadowed))
}
