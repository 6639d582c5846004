// Package testutil provides deterministic stand-ins for the nondeterministic
// parts of the runtime: background workers, session ids and sequence
// numbers.
package testutil

import "sync"

// ManualExecutor queues background jobs until the test runs them.
//
// Middlewares under test hand their work to the executor instead of a
// goroutine pool, so the test decides exactly when (and on which goroutine)
// a request is resolved.
//
// Thread-safety: all methods are safe for concurrent use. Jobs queued while
// RunPending is running are left for the next call.
type ManualExecutor struct {
	mu   sync.Mutex
	jobs []func()
}

// NewManualExecutor creates an empty executor.
func NewManualExecutor() *ManualExecutor {
	return &ManualExecutor{}
}

// Go queues fn.
func (e *ManualExecutor) Go(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, fn)
}

// Pending returns the number of queued jobs.
func (e *ManualExecutor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.jobs)
}

// RunPending runs the jobs queued so far, in order, on the calling
// goroutine. It returns the number of jobs run.
func (e *ManualExecutor) RunPending() int {
	e.mu.Lock()
	jobs := e.jobs
	e.jobs = nil
	e.mu.Unlock()

	for _, job := range jobs {
		job()
	}
	return len(jobs)
}

// RunUntilIdle runs jobs, including jobs queued by jobs, until none are
// left or maxRounds rounds have run. It returns the number of jobs run.
func (e *ManualExecutor) RunUntilIdle(maxRounds int) int {
	total := 0
	for round := 0; round < maxRounds; round++ {
		n := e.RunPending()
		if n == 0 {
			break
		}
		total += n
	}
	return total
}
