// Package middleware stacks effect-handling layers around a Core.
//
// A Layer has the same shape as a Core: it accepts events, resolves
// requests and projects a view. Wrapping layers intercept effects they know
// how to answer and resolve them natively, possibly later and on another
// goroutine. Everything else bubbles up to the caller unchanged and in
// production order.
//
// Effects that become available asynchronously, after the call that
// caused them has returned, are delivered through the callback passed to
// Update, Resolve or ProcessTasks. The callback may be invoked from any
// goroutine and must be safe for concurrent use. A nil callback discards
// them; wrapping layers log each discarded batch at debug level.
package middleware

import (
	"github.com/roach88/cruxgo/internal/command"
	"github.com/roach88/cruxgo/internal/core"
)

// Layer is a Core or a stack of middlewares around one.
type Layer[Ev, Eff, VM any] interface {
	// Update processes ev. Effects available before Update returns are
	// returned; later ones are passed to cb, or discarded if cb is nil.
	Update(ev Ev, cb func([]Eff)) []Eff

	// Resolve resolves req with out.
	Resolve(req command.Resolvable, out any, cb func([]Eff)) ([]Eff, error)

	// View returns the current view model.
	View() VM

	// ProcessTasks drains effects that became available without a call.
	ProcessTasks(cb func([]Eff)) []Eff

	// Close shuts the layer and everything it wraps down.
	Close()
}

// Resolve resolves a typed request through a layer.
func Resolve[Ev, Eff, VM, Op, Out any](l Layer[Ev, Eff, VM], req *command.Request[Op, Out], out Out, cb func([]Eff)) ([]Eff, error) {
	return l.Resolve(req, out, cb)
}

// CoreLayer adapts a Core to the Layer interface. A Core never produces
// effects asynchronously on its own, so the callbacks are unused.
type CoreLayer[Ev, M, VM, Eff any] struct {
	core *core.Core[Ev, M, VM, Eff]
}

// FromCore wraps c as the innermost layer of a stack.
func FromCore[Ev, M, VM, Eff any](c *core.Core[Ev, M, VM, Eff]) *CoreLayer[Ev, M, VM, Eff] {
	return &CoreLayer[Ev, M, VM, Eff]{core: c}
}

// Update implements Layer.
func (l *CoreLayer[Ev, M, VM, Eff]) Update(ev Ev, _ func([]Eff)) []Eff {
	return l.core.Update(ev)
}

// Resolve implements Layer.
func (l *CoreLayer[Ev, M, VM, Eff]) Resolve(req command.Resolvable, out any, _ func([]Eff)) ([]Eff, error) {
	return l.core.ResolveAny(req, out)
}

// View implements Layer.
func (l *CoreLayer[Ev, M, VM, Eff]) View() VM {
	return l.core.View()
}

// ProcessTasks implements Layer.
func (l *CoreLayer[Ev, M, VM, Eff]) ProcessTasks(_ func([]Eff)) []Eff {
	return l.core.ProcessEffects()
}

// Close implements Layer.
func (l *CoreLayer[Ev, M, VM, Eff]) Close() {
	l.core.Close()
}

var _ Layer[struct{}, command.Resolvable, struct{}] = (*CoreLayer[struct{}, struct{}, struct{}, command.Resolvable])(nil)
