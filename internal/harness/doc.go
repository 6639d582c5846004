// Package harness runs scenario files against the demo app.
//
// A scenario drives the app through a bridge the way a foreign shell
// would: it sends events, resolves the requests it gets back by id and
// checks what comes out. Every run records its request log to a fresh
// in-memory store, and the log is the trace that assertions and golden
// files are checked against.
//
// # Scenario Format
//
//	name: save_and_load
//	description: "What this scenario validates"
//	steps:
//	  - event: { kind: save }
//	    expect:
//	      requests: [render, key_value]
//	  - resolve: { kind: key_value, output: { value: "5", found: true } }
//	  - resolve: { request: 3, output: { value: "5", found: true } }
//	    expect:
//	      error: NOT_FOUND
//	view:
//	  status: saved
//	assertions:
//	  - type: trace_count
//	    operation: render
//	    count: 2
//
// A resolve step addresses a request either by id or by kind, in which
// case the most recently issued request of that kind is used.
//
// Scenario files are validated against a CUE schema (schema.cue) before
// they are decoded, so structural mistakes are reported with the path of
// the offending field.
//
// # Assertion Types
//
//   - trace_contains: an entry of the given type, operation and payload
//     (subset match) was recorded
//   - trace_order: operations were first requested in the given order
//   - trace_count: an operation was requested exactly N times
//
// # Deterministic Testing
//
// Runs use a fixed session id and the bridge's monotonic request ids, so
// the same scenario always produces a byte-identical trace.
package harness
