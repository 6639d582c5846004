// Package core owns an application's model and drives its update function.
//
// A Core turns incoming events into commands, runs them to their next
// suspension point, feeds emitted events back into update until none are
// left, and returns the effects that are waiting for a shell.
//
// Thread-safety model:
//   - Update, Resolve, ResolveAny and ProcessEffects are serialized by one
//     process mutex; the model is only mutated while it is held.
//   - View takes the model read lock only and never observes a partially
//     applied update.
//   - Requests may be resolved directly from any goroutine. That only
//     queues the continuation; it runs, and its output is picked up, on the
//     next Update, Resolve or ProcessEffects call.
package core

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/cruxgo/internal/command"
)

// App is the application logic driven by a Core.
type App[Ev, M, VM, Eff any] interface {
	// Update applies ev to the model and returns the command to run.
	// A nil command is equivalent to command.Done.
	Update(ev Ev, model *M) *command.Command[Eff, Ev]

	// View projects the model. It must not mutate it.
	View(model *M) VM
}

// DefaultMaxCascade is the default number of events one external call may
// feed back into update before the rest is deferred.
const DefaultMaxCascade = 1000

// Option configures a Core.
type Option func(*config)

type config struct {
	logger     *slog.Logger
	maxCascade int
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithMaxCascade limits how many events a single Update, Resolve or
// ProcessEffects call feeds back into update. Events beyond the limit stay
// queued for the next call. Zero or a negative value disables the limit.
//
// Default: 1000 (DefaultMaxCascade)
func WithMaxCascade(n int) Option {
	return func(c *config) {
		c.maxCascade = n
	}
}

// Core holds the model of one application instance and the root command
// every update's command is spawned into.
type Core[Ev, M, VM, Eff any] struct {
	app App[Ev, M, VM, Eff]

	modelMu sync.RWMutex
	model   M

	procMu sync.Mutex
	root   *command.Command[Eff, Ev]
	closed atomic.Bool

	logger     *slog.Logger
	maxCascade int
}

// New creates a Core with the zero value of M as its model.
func New[Ev, M, VM, Eff any](app App[Ev, M, VM, Eff], opts ...Option) *Core[Ev, M, VM, Eff] {
	var model M
	return NewWithModel(app, model, opts...)
}

// NewWithModel creates a Core starting from model.
func NewWithModel[Ev, M, VM, Eff any](app App[Ev, M, VM, Eff], model M, opts ...Option) *Core[Ev, M, VM, Eff] {
	cfg := config{
		logger:     slog.Default(),
		maxCascade: DefaultMaxCascade,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	root := command.Done[Eff, Ev]()
	root.Host()

	return &Core[Ev, M, VM, Eff]{
		app:        app,
		model:      model,
		root:       root,
		logger:     cfg.logger,
		maxCascade: cfg.maxCascade,
	}
}

// Update processes ev and returns the effects that became available,
// including those of every event cascaded from it.
func (c *Core[Ev, M, VM, Eff]) Update(ev Ev) []Eff {
	c.procMu.Lock()
	defer c.procMu.Unlock()

	if c.closed.Load() {
		c.logger.Debug("update ignored: core closed")
		return nil
	}

	c.apply(ev)
	return c.settle()
}

// Resolve resolves req with out and returns the effects that became
// available as a result.
func Resolve[Ev, M, VM, Eff, Op, Out any](c *Core[Ev, M, VM, Eff], req *command.Request[Op, Out], out Out) ([]Eff, error) {
	return c.resolve(func() error {
		return req.Resolve(out)
	})
}

// ResolveAny resolves a type-erased request. An output of the wrong type
// fails with an OutputMismatch error.
func (c *Core[Ev, M, VM, Eff]) ResolveAny(req command.Resolvable, out any) ([]Eff, error) {
	return c.resolve(func() error {
		return req.ResolveValue(out)
	})
}

func (c *Core[Ev, M, VM, Eff]) resolve(fn func() error) ([]Eff, error) {
	c.procMu.Lock()
	defer c.procMu.Unlock()

	if c.closed.Load() {
		return nil, command.NewNotFoundError("core is closed")
	}

	if err := fn(); err != nil {
		return nil, err
	}
	return c.settle(), nil
}

// ProcessEffects drains effects that became available without an
// external call, e.g. after a request was resolved on another goroutine.
func (c *Core[Ev, M, VM, Eff]) ProcessEffects() []Eff {
	c.procMu.Lock()
	defer c.procMu.Unlock()

	if c.closed.Load() {
		return nil
	}
	return c.settle()
}

// View returns the current view model.
func (c *Core[Ev, M, VM, Eff]) View() VM {
	c.modelMu.RLock()
	defer c.modelMu.RUnlock()
	return c.app.View(&c.model)
}

// Close cancels every running command. Outstanding requests become inert
// and later calls are no-ops. Close is idempotent.
func (c *Core[Ev, M, VM, Eff]) Close() {
	if c.closed.Swap(true) {
		return
	}

	c.procMu.Lock()
	defer c.procMu.Unlock()
	c.root.Cancel()

	c.logger.Debug("core closed")
}

// Closed reports whether Close was called.
func (c *Core[Ev, M, VM, Eff]) Closed() bool {
	return c.closed.Load()
}

func (c *Core[Ev, M, VM, Eff]) apply(ev Ev) {
	cmd := c.runUpdate(ev)
	if cmd != nil {
		c.root.Spawn(cmd)
	}
	c.root.RunReady()
}

func (c *Core[Ev, M, VM, Eff]) runUpdate(ev Ev) *command.Command[Eff, Ev] {
	c.modelMu.Lock()
	defer c.modelMu.Unlock()
	return c.app.Update(ev, &c.model)
}

// settle feeds emitted events back into update until none are left, then
// drains the effects. Must be called with procMu held.
func (c *Core[Ev, M, VM, Eff]) settle() []Eff {
	quota := newCascadeQuota(c.maxCascade)

	// Continuations queued by direct resolutions or aborts.
	c.root.RunReady()

	for {
		events := c.root.Events()
		if len(events) == 0 {
			break
		}

		for i, ev := range events {
			if err := quota.Check(); err != nil {
				c.logger.Error("event cascade quota exceeded",
					"steps", quota.Current(),
					"limit", quota.Limit(),
					"deferred", len(events)-i,
					"error", err,
				)
				for _, rest := range events[i:] {
					c.root.Spawn(command.Event[Eff](rest))
				}
				c.root.RunReady()
				return c.root.Effects()
			}
			c.apply(ev)
		}
	}

	return c.root.Effects()
}
