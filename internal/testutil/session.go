package testutil

import (
	"fmt"
	"sync/atomic"
)

// DefaultSessionID is the session id of a FixedSessionGenerator created
// without one.
const DefaultSessionID = "test-session"

// FixedSessionGenerator returns the same session id every time.
//
// Recording a scenario with a fixed session id makes the request log
// byte-identical across runs, which the golden traces rely on.
type FixedSessionGenerator struct {
	id string
}

// NewFixedSessionGenerator creates a generator for id. An empty id becomes
// DefaultSessionID.
func NewFixedSessionGenerator(id string) *FixedSessionGenerator {
	if id == "" {
		id = DefaultSessionID
	}
	return &FixedSessionGenerator{id: id}
}

// Generate implements bridge.SessionGenerator.
func (g *FixedSessionGenerator) Generate() string {
	return g.id
}

// CountingSessionGenerator returns "<prefix>-1", "<prefix>-2", ... so tests
// that open several sessions can tell them apart deterministically.
type CountingSessionGenerator struct {
	prefix string
	n      atomic.Int64
}

// NewCountingSessionGenerator creates a generator with the given prefix.
func NewCountingSessionGenerator(prefix string) *CountingSessionGenerator {
	return &CountingSessionGenerator{prefix: prefix}
}

// Generate implements bridge.SessionGenerator.
func (g *CountingSessionGenerator) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}
