package core

import (
	"errors"
	"fmt"
)

// cascadeQuota bounds the number of events fed back into update during one
// external call.
//
// Without it, an update that always emits another event would never
// return. Deferred events are not lost: they stay queued on the root
// command and are processed by the next call.
type cascadeQuota struct {
	limit   int
	current int
}

func newCascadeQuota(limit int) *cascadeQuota {
	return &cascadeQuota{limit: limit}
}

// Check increments the step counter and validates it against the limit.
func (q *cascadeQuota) Check() error {
	q.current++
	if q.limit > 0 && q.current > q.limit {
		return &CascadeExceededError{
			Steps: q.current,
			Limit: q.limit,
		}
	}
	return nil
}

// Current returns the current step count.
func (q *cascadeQuota) Current() int {
	return q.current
}

// Limit returns the configured limit.
func (q *cascadeQuota) Limit() int {
	return q.limit
}

// CascadeExceededError reports an event cascade that hit the limit set by
// WithMaxCascade.
type CascadeExceededError struct {
	Steps int // Number of steps taken
	Limit int // Maximum allowed steps
}

// Error implements the error interface.
func (e *CascadeExceededError) Error() string {
	return fmt.Sprintf("event cascade exceeded limit (%d > %d)", e.Steps, e.Limit)
}

// IsCascadeError returns true if the error is a CascadeExceededError.
func IsCascadeError(err error) bool {
	var ce *CascadeExceededError
	return errors.As(err, &ce)
}
