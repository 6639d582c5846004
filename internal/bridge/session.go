package bridge

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// SessionGenerator generates the session id stamped on recorded entries.
// Implemented by UUIDv7Generator (production) and the generators in
// internal/testutil.
type SessionGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so sessions
// listed in id order are listed in creation order.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if the system's random source fails.
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceSource issues the seq numbers of a session's recorded entries.
// Implemented by *Sequence and testutil.DeterministicSequence.
type SequenceSource interface {
	Next() int64
}

// Sequence is the logical clock ordering a session's recorded entries.
//
// Thread-safety: Sequence is safe for concurrent use.
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence whose next value is start+1. Used to
// continue a session that already has entries.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}
