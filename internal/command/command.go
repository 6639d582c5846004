package command

import (
	"sync"
	"sync/atomic"
)

const (
	stateFresh int32 = iota
	stateComposed
	stateStarted
)

const (
	errConsumed        = "command: command already consumed"
	errStarted         = "command: command already started"
	errAbortAfterStart = "command: abort handle requested after start"
)

// sink is where a running command delivers its output. Combinators that
// map events or effects wrap the sink; abortable commands swap its scope.
type sink[Eff, Ev any] struct {
	sched  *scheduler
	scope  *scope
	effect func(Eff)
	event  func(Ev)
}

func (s *sink[Eff, Ev]) push(fn func()) {
	s.sched.push(s.scope, fn)
}

func (s *sink[Eff, Ev]) withScope(sc *scope) *sink[Eff, Ev] {
	cp := *s
	cp.scope = sc
	return &cp
}

// Command is a description of asynchronous work that emits effects for the
// shell and events for the application's update function.
//
// A Command is started lazily: the first call to Effects, Events, IsDone,
// Spawn or Cancel, or spawning it into a Core, runs it synchronously to
// its first suspension point. A command can be started or composed into
// another command exactly once; reusing it panics.
//
// Thread-safety: all exported methods are safe for concurrent use.
type Command[Eff, Ev any] struct {
	body  func(s *sink[Eff, Ev], k func())
	state atomic.Int32

	mu    sync.Mutex
	abort *AbortHandle
	tree  *taskTree[Eff, Ev]
}

func newCommand[Eff, Ev any](body func(s *sink[Eff, Ev], k func())) *Command[Eff, Ev] {
	return &Command[Eff, Ev]{body: body}
}

// compose marks the command as owned by a combinator.
func (c *Command[Eff, Ev]) compose() {
	if !c.state.CompareAndSwap(stateFresh, stateComposed) {
		panic(errConsumed)
	}
}

// start schedules the command's body. k is scheduled once the command
// completes, or once it is aborted.
func (c *Command[Eff, Ev]) start(s *sink[Eff, Ev], k func()) {
	if !c.state.CompareAndSwap(stateComposed, stateStarted) &&
		!c.state.CompareAndSwap(stateFresh, stateStarted) {
		panic(errStarted)
	}
	c.launch(s, k)
}

func (c *Command[Eff, Ev]) launch(s *sink[Eff, Ev], k func()) {
	c.mu.Lock()
	h := c.abort
	c.mu.Unlock()

	if h == nil {
		body := c.body
		s.push(func() {
			body(s, func() { s.push(k) })
		})
		return
	}

	// Abortable commands run in their own scope. The completion runs in the
	// parent scope so an abort still counts as completion for joins.
	child := s.withScope(newScope(s.scope))
	finish := sync.OnceFunc(func() { s.push(k) })
	if h.bind(child.scope, s.sched, finish) {
		finish()
		return
	}
	body := c.body
	child.push(func() {
		body(child, finish)
	})
}

// ensureTree starts the command standalone, the first time it is observed.
func (c *Command[Eff, Ev]) ensureTree() *taskTree[Eff, Ev] {
	c.mu.Lock()
	if c.tree != nil {
		t := c.tree
		c.mu.Unlock()
		return t
	}
	if !c.state.CompareAndSwap(stateFresh, stateStarted) {
		c.mu.Unlock()
		panic(errConsumed)
	}
	t := newTaskTree[Eff, Ev]()
	t.live.Add(1)
	c.tree = t
	c.mu.Unlock()

	c.launch(t.sink, t.taskDone)
	t.sched.run()
	return t
}

// Effects drains the effects produced so far.
func (c *Command[Eff, Ev]) Effects() []Eff {
	return c.ensureTree().takeEffects()
}

// Events drains the events produced so far.
func (c *Command[Eff, Ev]) Events() []Ev {
	return c.ensureTree().takeEvents()
}

// IsDone reports whether every task has completed and both queues have
// been drained. A done command never produces more output.
func (c *Command[Eff, Ev]) IsDone() bool {
	return c.ensureTree().done()
}

// Spawn starts child inside this command's task tree. The child's effects
// and events are delivered to this command's queues, and this command is
// not done until the child is.
func (c *Command[Eff, Ev]) Spawn(child *Command[Eff, Ev]) {
	if child == nil {
		return
	}
	if child.state.Load() != stateFresh {
		panic(errConsumed)
	}
	c.ensureTree().spawn(child)
}

// Cancel cancels every task of the command. Queued output is discarded and
// requests issued by the command become inert: resolving them reports
// NotFound. A cancelled command is done.
func (c *Command[Eff, Ev]) Cancel() {
	c.mu.Lock()
	t := c.tree
	if t == nil {
		if !c.state.CompareAndSwap(stateFresh, stateStarted) {
			c.mu.Unlock()
			panic(errConsumed)
		}
		t = newTaskTree[Eff, Ev]()
		c.tree = t
	}
	c.mu.Unlock()

	t.cancel()
}

// Host hands the driving of the command's tree to the caller. Resolving
// one of its requests or aborting one of its tasks then only queues the
// continuation, and nothing runs until the caller invokes RunReady. A
// Core hosts its root command this way so that all application code runs
// under its process lock.
func (c *Command[Eff, Ev]) Host() {
	c.ensureTree().sched.hosted.Store(true)
}

// RunReady executes queued work until the command can make no more
// progress. It is only needed for hosted commands.
func (c *Command[Eff, Ev]) RunReady() {
	c.ensureTree().sched.drive()
}

// AbortHandle returns the handle that aborts this command. It must be
// requested before the command starts.
func (c *Command[Eff, Ev]) AbortHandle() *AbortHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abort == nil {
		if c.state.Load() == stateStarted {
			panic(errAbortAfterStart)
		}
		c.abort = &AbortHandle{}
	}
	return c.abort
}

// taskTree is the state of a started command: its scheduler, output queues
// and the number of live top-level tasks.
type taskTree[Eff, Ev any] struct {
	sched *scheduler
	scope *scope
	sink  *sink[Eff, Ev]
	live  atomic.Int64

	mu      sync.Mutex
	effects []Eff
	events  []Ev
}

func newTaskTree[Eff, Ev any]() *taskTree[Eff, Ev] {
	t := &taskTree[Eff, Ev]{
		sched: newScheduler(),
		scope: newScope(nil),
	}
	t.sink = &sink[Eff, Ev]{
		sched:  t.sched,
		scope:  t.scope,
		effect: t.pushEffect,
		event:  t.pushEvent,
	}
	return t
}

func (t *taskTree[Eff, Ev]) pushEffect(e Eff) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.scope.cancelled() {
		return
	}
	t.effects = append(t.effects, e)
}

func (t *taskTree[Eff, Ev]) pushEvent(e Ev) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.scope.cancelled() {
		return
	}
	t.events = append(t.events, e)
}

func (t *taskTree[Eff, Ev]) takeEffects() []Eff {
	t.mu.Lock()
	defer t.mu.Unlock()
	effects := t.effects
	t.effects = nil
	return effects
}

func (t *taskTree[Eff, Ev]) takeEvents() []Ev {
	t.mu.Lock()
	defer t.mu.Unlock()
	events := t.events
	t.events = nil
	return events
}

func (t *taskTree[Eff, Ev]) taskDone() {
	t.live.Add(-1)
}

func (t *taskTree[Eff, Ev]) spawn(child *Command[Eff, Ev]) {
	if t.scope.cancelled() {
		child.state.Store(stateStarted)
		return
	}
	t.live.Add(1)
	child.start(t.sink, t.taskDone)
	t.sched.run()
}

func (t *taskTree[Eff, Ev]) done() bool {
	if t.live.Load() != 0 || t.sched.pending() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.effects) == 0 && len(t.events) == 0
}

func (t *taskTree[Eff, Ev]) cancel() {
	t.scope.cancel()
	t.sched.reset()

	t.mu.Lock()
	t.effects = nil
	t.events = nil
	t.mu.Unlock()

	t.live.Store(0)
}

// AbortHandle aborts one command from outside of it, typically to stop a
// stream. Aborting cancels the command's tasks and makes its requests
// inert. Commands that joined the aborted one treat it as completed.
//
// Thread-safety: safe for concurrent use.
type AbortHandle struct {
	mu      sync.Mutex
	aborted bool
	scope   *scope
	sched   *scheduler
	finish  func()
}

// bind attaches the handle to a started command. It returns true if the
// handle was aborted before the command started.
func (h *AbortHandle) bind(sc *scope, sched *scheduler, finish func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.aborted {
		return true
	}
	h.scope = sc
	h.sched = sched
	h.finish = finish
	return false
}

// Abort aborts the command. Calling Abort more than once is a no-op.
func (h *AbortHandle) Abort() {
	h.mu.Lock()
	if h.aborted {
		h.mu.Unlock()
		return
	}
	h.aborted = true
	sc, sched, finish := h.scope, h.sched, h.finish
	h.scope, h.sched, h.finish = nil, nil, nil
	h.mu.Unlock()

	if sc == nil {
		return
	}
	sc.cancel()
	finish()
	sched.run()
}

// IsAborted reports whether Abort was called.
func (h *AbortHandle) IsAborted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aborted
}
