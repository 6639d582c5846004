package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted conversation between a shell and the demo app.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Session is the session id of the recorded log.
	// Default: "test-session".
	Session string `yaml:"session,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// View is matched against the final view model (subset match).
	View map[string]any `yaml:"view,omitempty"`

	// Assertions validate the recorded trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step sends one event or resolves one request. Exactly one of Event and
// Resolve is set.
type Step struct {
	Event   map[string]any `yaml:"event,omitempty"`
	Resolve *ResolveStep   `yaml:"resolve,omitempty"`
	Expect  *StepExpect    `yaml:"expect,omitempty"`
}

// ResolveStep addresses a request by id, or by kind for the most recently
// issued request of that kind.
type ResolveStep struct {
	Request uint32 `yaml:"request,omitempty"`
	Kind    string `yaml:"kind,omitempty"`
	Output  any    `yaml:"output,omitempty"`
}

// StepExpect checks the outcome of a step.
type StepExpect struct {
	// Requests lists the kinds of the requests returned, in order. If
	// nil, the requests are not checked.
	Requests []string `yaml:"requests,omitempty"`

	// Error is the expected resolve error code. If empty, the step must
	// succeed.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the recorded trace.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count.
	Type string `yaml:"type"`

	// Entry is the entry type matched by trace_contains.
	// Default: request.
	Entry string `yaml:"entry,omitempty"`

	// Operation is the operation name (trace_contains, trace_count).
	Operation string `yaml:"operation,omitempty"`

	// Payload is matched against the entry's payload (trace_contains).
	// Subset match - only specified fields are validated.
	Payload map[string]any `yaml:"payload,omitempty"`

	// Operations is the expected order of first requests (trace_order).
	Operations []string `yaml:"operations,omitempty"`

	// Count is the expected number of requests (trace_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// LoadScenario reads, validates and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario validates data against the scenario schema and decodes it.
// Unknown fields are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := ValidateDocument(doc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks what the schema cannot express.
func validateScenario(s *Scenario) error {
	for i, step := range s.Steps {
		if step.Resolve != nil && step.Resolve.Request == 0 && step.Resolve.Kind == "" {
			return fmt.Errorf("steps[%d]: resolve needs a request id or a kind", i)
		}
		if step.Expect != nil && step.Expect.Error != "" && step.Event != nil {
			return fmt.Errorf("steps[%d]: events cannot expect a resolve error", i)
		}
	}
	return nil
}
