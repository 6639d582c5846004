package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cruxgo/internal/store"
	"github.com/roach88/cruxgo/internal/testutil"
)

// TraceSnapshot captures the trace of a scenario run. It is serialized as
// canonical JSON for byte-exact comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Session      string       `json:"session"`
	Trace        []TraceEvent `json:"trace"`
}

// RunWithGolden runs a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Snapshot encodes the trace of a scenario run as canonical JSON. Golden
// files hold exactly these bytes.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	session := scenario.Session
	if session == "" {
		session = testutil.DefaultSessionID
	}

	return store.MarshalCanonical(TraceSnapshot{
		ScenarioName: scenario.Name,
		Session:      session,
		Trace:        result.Trace,
	})
}

// AssertGolden compares an existing result's trace against the golden file
// of scenario.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)

	return nil
}
