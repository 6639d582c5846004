package harness

import (
	"encoding/json"
)

// TraceEvent is one entry of a scenario's recorded request log.
type TraceEvent struct {
	Seq       int64           `json:"seq"`
	Type      string          `json:"type"` // "event", "request" or "resolution"
	Operation string          `json:"operation,omitempty"`
	RequestID uint32          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass indicates overall success.
	Pass bool `json:"pass"`

	// Trace contains every recorded entry in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`

	// View is the final view model.
	View map[string]any `json:"view,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
