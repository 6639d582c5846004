package command

import (
	"sync"
	"sync/atomic"
)

// scope is a node in the cancellation tree.
//
// A thunk or resolver belongs to exactly one scope. Cancelling a scope
// cancels every descendant: cancelled() walks the parent chain, so no
// child registration is required.
type scope struct {
	parent *scope
	done   atomic.Bool
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent}
}

// cancelled reports whether this scope or any ancestor was cancelled.
// A nil scope is never cancelled.
func (s *scope) cancelled() bool {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.done.Load() {
			return true
		}
	}
	return false
}

func (s *scope) cancel() {
	s.done.Store(true)
}

// thunk is one unit of ready work.
type thunk struct {
	scope *scope
	fn    func()
}

// scheduler is the ready queue of a command tree.
//
// It never starts goroutines. Whoever pushes work calls run(), which makes
// the calling goroutine the driver if nobody else is driving. Work pushed
// from inside a running thunk is queued and picked up by the same drain
// loop, so continuations never recurse into each other.
//
// A hosted scheduler is only driven by its host: run() becomes a no-op and
// the host calls drive() when it is ready to execute queued work.
//
// Thread-safety: push and run may be called from any goroutine. At most one
// goroutine executes thunks at a time.
type scheduler struct {
	mu      sync.Mutex
	ready   []thunk
	driving atomic.Bool
	hosted  atomic.Bool
}

func newScheduler() *scheduler {
	return &scheduler{
		ready: make([]thunk, 0, 16),
	}
}

// push appends a thunk to the back of the ready queue.
func (s *scheduler) push(sc *scope, fn func()) {
	s.mu.Lock()
	s.ready = append(s.ready, thunk{scope: sc, fn: fn})
	s.mu.Unlock()
}

// pop removes and returns the front thunk.
func (s *scheduler) pop() (thunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ready) == 0 {
		return thunk{}, false
	}

	t := s.ready[0]

	// Nil out the slot so the closure and everything it captured can be
	// collected before the backing array is reallocated.
	s.ready[0] = thunk{}

	if len(s.ready) == 1 {
		s.ready = s.ready[:0]
	} else {
		s.ready = s.ready[1:]
	}

	return t, true
}

// pending reports whether ready work is queued.
func (s *scheduler) pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ready) > 0
}

// reset drops all queued work.
func (s *scheduler) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.ready)
	s.ready = s.ready[:0]
}

// run drives the queue until it is empty, unless another goroutine is
// already driving, in which case that driver picks up the new work. On a
// hosted scheduler the work stays queued for the host.
func (s *scheduler) run() {
	if s.hosted.Load() {
		return
	}
	s.drive()
}

// drive is run without the hosted check.
func (s *scheduler) drive() {
	for {
		if !s.driving.CompareAndSwap(false, true) {
			return
		}
		s.drain()

		// Work pushed between the last pop and releasing the flag would
		// otherwise be stranded.
		if !s.pending() {
			return
		}
	}
}

func (s *scheduler) drain() {
	defer s.driving.Store(false)

	for {
		t, ok := s.pop()
		if !ok {
			return
		}
		if t.scope.cancelled() {
			continue
		}
		t.fn()
	}
}
