package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/cruxgo/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s", event.Seq, event.Type)
		if event.RequestID != 0 {
			fmt.Fprintf(&buf, " #%d", event.RequestID)
		}
		if event.Operation != "" {
			fmt.Fprintf(&buf, " %s", event.Operation)
		}
		fmt.Fprintf(&buf, " %s\n", event.Payload)
	}

	return buf.String()
}

func evaluateAssertion(trace []TraceEvent, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(trace, a)
	case AssertTraceCount:
		return assertTraceCount(trace, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertTraceContains checks for an entry of the given type and operation
// whose payload matches (subset semantics).
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	entry := a.Entry
	if entry == "" {
		entry = string(store.KindRequest)
	}

	want, err := normalizeJSON(a.Payload)
	if err != nil {
		return fmt.Errorf("encode expected payload: %w", err)
	}
	wantMap, _ := want.(map[string]any)

	for _, event := range trace {
		if event.Type != entry {
			continue
		}
		if a.Operation != "" && event.Operation != a.Operation {
			continue
		}
		var actual any
		if err := json.Unmarshal(event.Payload, &actual); err != nil {
			continue
		}
		if matchSubset(actual, wantMap) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s %s with payload %v", entry, a.Operation, a.Payload),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that operations were first requested in the
// given order. Other requests may come in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != string(store.KindRequest) {
			continue
		}
		if _, seen := positions[event.Operation]; !seen {
			positions[event.Operation] = i
		}
	}

	for _, op := range a.Operations {
		if _, ok := positions[op]; !ok {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all operations requested: %v", a.Operations),
				Actual:   fmt.Sprintf("missing operation: %s", op),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Operations); i++ {
		prev, cur := a.Operations[i-1], a.Operations[i]
		if positions[prev] >= positions[cur] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("%s before %s", prev, cur),
				Actual:   fmt.Sprintf("%s first requested at seq %d, %s at seq %d", prev, trace[positions[prev]].Seq, cur, trace[positions[cur]].Seq),
				Trace:    trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks that an operation was requested exactly Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == string(store.KindRequest) && event.Operation == a.Operation {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s requested %d times", a.Operation, a.Count),
			Actual:   fmt.Sprintf("%d times", count),
			Trace:    trace,
		}
	}
	return nil
}

// matchSubset reports whether every key of expected is present in actual
// with an equal value. Extra keys in actual are fine.
func matchSubset(actual any, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}

	actualMap, ok := actual.(map[string]any)
	if !ok {
		return false
	}

	for key, want := range expected {
		got, exists := actualMap[key]
		if !exists {
			return false
		}
		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
