package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/cruxgo/internal/bridge"
	"github.com/roach88/cruxgo/internal/command"
	"github.com/roach88/cruxgo/internal/core"
	"github.com/roach88/cruxgo/internal/demo"
	"github.com/roach88/cruxgo/internal/middleware"
	"github.com/roach88/cruxgo/internal/store"
	"github.com/roach88/cruxgo/internal/testutil"
)

type demoBridge = bridge.Bridge[demo.Event, demo.Effect, demo.ViewModel]

// Harness runs one scenario against a fresh demo app.
type Harness struct {
	store  *store.Store
	bridge *demoBridge
	logger *slog.Logger

	// latest maps a request kind to the most recently issued id.
	latest map[string]uint32
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database and a fresh app, so
// scenarios never observe each other. A non-nil error means the scenario
// could not be run at all; failed expectations are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := demo.NewCore(core.WithLogger(logger))

	h := &Harness{
		store: st,
		bridge: bridge.New[demo.Event, demo.Effect, demo.ViewModel](
			middleware.FromCore(c),
			bridge.WithRecorder(st),
			bridge.WithSessionGenerator(testutil.NewFixedSessionGenerator(scenario.Session)),
			bridge.WithLogger(logger),
		),
		logger: logger,
		latest: make(map[string]uint32),
	}
	defer h.bridge.Close()

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i, step, result); err != nil {
			return nil, err
		}
	}

	if err := h.collectTrace(ctx, result); err != nil {
		return nil, err
	}

	if err := h.checkView(scenario.View, result); err != nil {
		return nil, err
	}

	for i, a := range scenario.Assertions {
		if err := evaluateAssertion(result.Trace, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	return result, nil
}

func (h *Harness) runStep(ctx context.Context, index int, step Step, result *Result) error {
	var (
		out []byte
		err error
	)

	switch {
	case step.Event != nil:
		payload, merr := json.Marshal(step.Event)
		if merr != nil {
			return fmt.Errorf("steps[%d]: encode event: %w", index, merr)
		}
		out, err = h.bridge.Update(ctx, payload)

	case step.Resolve != nil:
		id := step.Resolve.Request
		if id == 0 {
			id = h.latest[step.Resolve.Kind]
		}
		payload, merr := json.Marshal(step.Resolve.Output)
		if merr != nil {
			return fmt.Errorf("steps[%d]: encode output: %w", index, merr)
		}
		out, err = h.bridge.Resolve(ctx, id, payload)

	default:
		return fmt.Errorf("steps[%d]: step has neither event nor resolve", index)
	}

	expect := step.Expect
	if expect == nil {
		expect = &StepExpect{}
	}

	if err != nil {
		code := string(command.CodeOf(err))
		switch {
		case expect.Error == "":
			result.AddError(fmt.Sprintf("steps[%d]: unexpected error: %v", index, err))
		case expect.Error != code:
			result.AddError(fmt.Sprintf("steps[%d]: expected error %s, got %v", index, expect.Error, err))
		}
		return nil
	}
	if expect.Error != "" {
		result.AddError(fmt.Sprintf("steps[%d]: expected error %s, got success", index, expect.Error))
		return nil
	}

	var requests []bridge.Request
	if err := json.Unmarshal(out, &requests); err != nil {
		return fmt.Errorf("steps[%d]: decode requests: %w", index, err)
	}

	kinds := make([]string, 0, len(requests))
	for _, r := range requests {
		kinds = append(kinds, r.Kind)
		h.latest[r.Kind] = r.ID
	}

	if expect.Requests != nil && !slices.Equal(kinds, expect.Requests) {
		result.AddError(fmt.Sprintf("steps[%d]: expected requests %v, got %v", index, expect.Requests, kinds))
	}

	h.logger.Debug("step done",
		"step", index,
		"requests", kinds,
	)
	return nil
}

// collectTrace reads the recorded request log back into the result.
func (h *Harness) collectTrace(ctx context.Context, result *Result) error {
	entries, err := h.store.ReadSession(ctx, h.bridge.Session())
	if err != nil {
		return fmt.Errorf("read trace: %w", err)
	}
	for _, e := range entries {
		result.Trace = append(result.Trace, TraceEvent{
			Seq:       e.Seq,
			Type:      string(e.Kind),
			Operation: e.Operation,
			RequestID: e.RequestID,
			Payload:   e.Payload,
		})
	}
	return nil
}

func (h *Harness) checkView(expected map[string]any, result *Result) error {
	data, err := h.bridge.View()
	if err != nil {
		return fmt.Errorf("read view: %w", err)
	}
	if err := json.Unmarshal(data, &result.View); err != nil {
		return fmt.Errorf("decode view: %w", err)
	}

	if len(expected) == 0 {
		return nil
	}

	// YAML and JSON disagree on number types; compare in JSON terms.
	want, err := normalizeJSON(expected)
	if err != nil {
		return fmt.Errorf("encode expected view: %w", err)
	}
	if !matchSubset(result.View, want.(map[string]any)) {
		result.AddError(fmt.Sprintf("view: expected %v, got %v", expected, result.View))
	}
	return nil
}

func normalizeJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
