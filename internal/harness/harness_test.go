package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		file    string
		message string
	}{
		{"missing_steps.yaml", "invalid scenario"},
		{"event_and_resolve.yaml", "invalid scenario"},
		{"bad_error_code.yaml", "invalid scenario"},
		{"unknown_field.yaml", "invalid scenario"},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			_, err := LoadScenario(filepath.Join("testdata/invalid", tt.file))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/does-not-exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_SchemaError(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: Bad-Name
steps:
  - event: { kind: increment }
`))
	require.Error(t, err)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.NotEmpty(t, schemaErr.Message)
}

func TestParseScenario_ResolveNeedsTarget(t *testing.T) {
	// The schema accepts an empty kind; the decoder-level check does not.
	_, err := ParseScenario([]byte(`
name: empty_kind
steps:
  - resolve: { kind: "" }
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a request id or a kind")
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: failing
steps:
  - event: { kind: increment }
    expect:
      requests: [key_value]
  - resolve: { request: 42, output: 1 }
  - resolve: { kind: render }
    expect:
      error: NOT_FOUND
view:
  count: 7
assertions:
  - type: trace_count
    operation: render
    count: 3
  - type: trace_order
    operations: [key_value, render]
  - type: trace_contains
    entry: event
    payload: { kind: decrement }
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 7)

	assert.Contains(t, result.Errors[0], "expected requests [key_value], got [render]")
	assert.Contains(t, result.Errors[1], "unexpected error")
	assert.Contains(t, result.Errors[1], "NOT_FOUND")
	assert.Contains(t, result.Errors[2], "expected error NOT_FOUND")
	assert.Contains(t, result.Errors[2], "RESOLVE_NEVER")
	assert.Contains(t, result.Errors[3], "view:")
	assert.Contains(t, result.Errors[4], "trace_count")
	assert.Contains(t, result.Errors[5], "missing operation: key_value")
	assert.Contains(t, result.Errors[6], "trace_contains")
}

func TestRun_SessionIsStamped(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: named_session
session: my-session
steps:
  - event: { kind: increment }
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, "event", result.Trace[0].Type)
	assert.Equal(t, "request", result.Trace[1].Type)
	assert.Equal(t, float64(1), result.View["count"])
}

func TestMatchSubset(t *testing.T) {
	actual := map[string]any{"a": float64(1), "b": "x"}

	assert.True(t, matchSubset(actual, nil))
	assert.True(t, matchSubset(actual, map[string]any{"a": float64(1)}))
	assert.False(t, matchSubset(actual, map[string]any{"a": float64(2)}))
	assert.False(t, matchSubset(actual, map[string]any{"c": "x"}))
	assert.False(t, matchSubset("not a map", map[string]any{"a": float64(1)}))
}
