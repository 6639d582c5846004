package command

import (
	"slices"
	"sync/atomic"
)

const errContextClosed = "command: context used after builder returned"

// Then runs c to completion, then starts next.
func (c *Command[Eff, Ev]) Then(next *Command[Eff, Ev]) *Command[Eff, Ev] {
	c.compose()
	next.compose()
	return newCommand(func(s *sink[Eff, Ev], k func()) {
		c.start(s, func() {
			next.start(s, k)
		})
	})
}

// And runs c and other concurrently and completes when both have.
func (c *Command[Eff, Ev]) And(other *Command[Eff, Ev]) *Command[Eff, Ev] {
	return All(c, other)
}

// All runs every command concurrently and completes when all of them have.
// Output of different members is interleaved by availability.
func All[Eff, Ev any](cmds ...*Command[Eff, Ev]) *Command[Eff, Ev] {
	members := slices.Clone(cmds)
	for _, m := range members {
		m.compose()
	}
	return newCommand(func(s *sink[Eff, Ev], k func()) {
		if len(members) == 0 {
			k()
			return
		}
		var remaining atomic.Int64
		remaining.Store(int64(len(members)))
		join := func() {
			if remaining.Add(-1) == 0 {
				k()
			}
		}
		for _, m := range members {
			m.start(s, join)
		}
	})
}

// MapEvent converts every event c emits with f.
func MapEvent[Eff, Ev, To any](c *Command[Eff, Ev], f func(Ev) To) *Command[Eff, To] {
	c.compose()
	return newCommand(func(s *sink[Eff, To], k func()) {
		inner := &sink[Eff, Ev]{
			sched:  s.sched,
			scope:  s.scope,
			effect: s.effect,
			event:  func(e Ev) { s.event(f(e)) },
		}
		c.start(inner, k)
	})
}

// MapEffect converts every effect c emits with f.
func MapEffect[Eff, Ev, To any](c *Command[Eff, Ev], f func(Eff) To) *Command[To, Ev] {
	c.compose()
	return newCommand(func(s *sink[To, Ev], k func()) {
		inner := &sink[Eff, Ev]{
			sched:  s.sched,
			scope:  s.scope,
			effect: func(e Eff) { s.effect(f(e)) },
			event:  s.event,
		}
		c.start(inner, k)
	})
}

// Context is handed to the function passed to New. It is only valid until
// that function returns.
type Context[Eff, Ev any] struct {
	s      *sink[Eff, Ev]
	join   func()
	count  *atomic.Int64
	closed atomic.Bool
}

// New builds a command imperatively. f runs when the command starts; it
// may send events and spawn commands through ctx. The command completes
// once f has returned and every spawned command has completed.
func New[Eff, Ev any](f func(ctx *Context[Eff, Ev])) *Command[Eff, Ev] {
	return newCommand(func(s *sink[Eff, Ev], k func()) {
		var remaining atomic.Int64
		remaining.Store(1)
		join := func() {
			if remaining.Add(-1) == 0 {
				k()
			}
		}
		ctx := &Context[Eff, Ev]{s: s, join: join, count: &remaining}
		f(ctx)
		ctx.closed.Store(true)
		join()
	})
}

// SendEvent emits e immediately.
func (ctx *Context[Eff, Ev]) SendEvent(e Ev) {
	if ctx.closed.Load() {
		panic(errContextClosed)
	}
	ctx.s.event(e)
}

// Spawn starts cmd as part of the command being built.
func (ctx *Context[Eff, Ev]) Spawn(cmd *Command[Eff, Ev]) {
	if ctx.closed.Load() {
		panic(errContextClosed)
	}
	if cmd == nil {
		return
	}
	ctx.count.Add(1)
	cmd.start(ctx.s, ctx.join)
}
