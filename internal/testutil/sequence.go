package testutil

import "sync"

// DeterministicSequence is a resettable sequence for tests.
//
// Unlike bridge.Sequence it can be rewound, so one test can drive the same
// scenario twice and compare the recorded sequence numbers.
//
// Thread-safety: all methods are safe for concurrent use.
type DeterministicSequence struct {
	mu    sync.Mutex
	start int64
	seq   int64
}

// NewDeterministicSequence creates a sequence whose first Next returns
// start+1.
func NewDeterministicSequence(start int64) *DeterministicSequence {
	return &DeterministicSequence{start: start, seq: start}
}

// Next increments and returns the sequence number.
func (s *DeterministicSequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Current returns the last issued number.
func (s *DeterministicSequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Reset rewinds the sequence to its start.
func (s *DeterministicSequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = s.start
}
