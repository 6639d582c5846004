package middleware

import (
	"log/slog"
	"sync/atomic"
	"time"
	"weak"

	"github.com/roach88/cruxgo/internal/command"
)

// EffectMiddleware answers requests of one operation type natively.
type EffectMiddleware[Eff, Op, Out any] interface {
	// TryProcessEffectWith narrows eff to a request it can answer. If it
	// can, it takes the request over and returns true; resolve must then
	// be called later, from another goroutine, as often as the request's
	// multiplicity allows. Calling resolve from within TryProcessEffectWith
	// is a bug and panics.
	//
	// If eff is not a request for Op it returns false and must not keep eff.
	TryProcessEffectWith(eff Eff, resolve func(req *command.Request[Op, Out], out Out)) bool
}

// MiddlewareFunc builds an EffectMiddleware from a narrowing function and
// a handler. Handle receives the operation and a resolve function bound to
// the narrowed request.
type MiddlewareFunc[Eff, Op, Out any] struct {
	Narrow func(eff Eff) (*command.Request[Op, Out], bool)
	Handle func(op Op, resolve func(Out))
}

// TryProcessEffectWith implements EffectMiddleware.
func (m MiddlewareFunc[Eff, Op, Out]) TryProcessEffectWith(eff Eff, resolve func(req *command.Request[Op, Out], out Out)) bool {
	req, ok := m.Narrow(eff)
	if !ok {
		return false
	}
	m.Handle(req.Operation, func(out Out) {
		resolve(req, out)
	})
	return true
}

// HandleOption configures a HandleEffectLayer.
type HandleOption func(*handleConfig)

type handleConfig struct {
	logger      *slog.Logger
	syncTimeout time.Duration
}

// DefaultSyncResolveTimeout is how long a resolution that arrives while its
// request is still being registered waits before it is treated as a
// synchronous resolution.
const DefaultSyncResolveTimeout = time.Second

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) HandleOption {
	return func(c *handleConfig) {
		c.logger = l
	}
}

// WithSyncResolveTimeout sets how long a resolution racing registration
// waits for it to finish.
//
// A middleware that resolves synchronously, from inside
// TryProcessEffectWith, is only detected once this timeout expires: the
// registering goroutine stalls for the full duration and then panics.
//
// Default: 1s (DefaultSyncResolveTimeout)
func WithSyncResolveTimeout(d time.Duration) HandleOption {
	return func(c *handleConfig) {
		c.syncTimeout = d
	}
}

// HandleEffectLayer wraps a layer and answers the effects its middleware
// recognizes. Effects produced by resolving those requests are routed
// through the middleware again before anything bubbles further up.
//
// Resolution callbacks reach the layer's state through a weak pointer.
// Once the layer is closed, or dropped and collected, late resolutions are
// silently ignored.
type HandleEffectLayer[Ev, Eff, VM, Op, Out any] struct {
	state *handleState[Ev, Eff, VM, Op, Out]
}

type handleState[Ev, Eff, VM, Op, Out any] struct {
	inner       Layer[Ev, Eff, VM]
	mw          EffectMiddleware[Eff, Op, Out]
	logger      *slog.Logger
	syncTimeout time.Duration
	closed      atomic.Bool
}

// HandleEffects wraps inner with mw.
func HandleEffects[Ev, Eff, VM, Op, Out any](inner Layer[Ev, Eff, VM], mw EffectMiddleware[Eff, Op, Out], opts ...HandleOption) *HandleEffectLayer[Ev, Eff, VM, Op, Out] {
	cfg := handleConfig{
		logger:      slog.Default(),
		syncTimeout: DefaultSyncResolveTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &HandleEffectLayer[Ev, Eff, VM, Op, Out]{
		state: &handleState[Ev, Eff, VM, Op, Out]{
			inner:       inner,
			mw:          mw,
			logger:      cfg.logger,
			syncTimeout: cfg.syncTimeout,
		},
	}
}

// Update implements Layer.
func (l *HandleEffectLayer[Ev, Eff, VM, Op, Out]) Update(ev Ev, cb func([]Eff)) []Eff {
	s := l.state
	effects := s.inner.Update(ev, s.wrapCallback(cb))
	return s.processEffects(effects, cb)
}

// Resolve implements Layer.
func (l *HandleEffectLayer[Ev, Eff, VM, Op, Out]) Resolve(req command.Resolvable, out any, cb func([]Eff)) ([]Eff, error) {
	s := l.state
	effects, err := s.inner.Resolve(req, out, s.wrapCallback(cb))
	if err != nil {
		return nil, err
	}
	return s.processEffects(effects, cb), nil
}

// View implements Layer.
func (l *HandleEffectLayer[Ev, Eff, VM, Op, Out]) View() VM {
	return l.state.inner.View()
}

// ProcessTasks implements Layer.
func (l *HandleEffectLayer[Ev, Eff, VM, Op, Out]) ProcessTasks(cb func([]Eff)) []Eff {
	s := l.state
	effects := s.inner.ProcessTasks(s.wrapCallback(cb))
	return s.processEffects(effects, cb)
}

// Close implements Layer. Pending resolutions become no-ops.
func (l *HandleEffectLayer[Ev, Eff, VM, Op, Out]) Close() {
	if l.state.closed.Swap(true) {
		return
	}
	l.state.inner.Close()
}

// wrapCallback routes asynchronously produced effects through the
// middleware before handing the rest to cb.
func (s *handleState[Ev, Eff, VM, Op, Out]) wrapCallback(cb func([]Eff)) func([]Eff) {
	ref := weak.Make(s)
	return func(effects []Eff) {
		st := ref.Value()
		if st == nil || st.closed.Load() {
			return
		}
		st.deliver(st.processEffects(effects, cb), cb)
	}
}

// deliver hands effects that bubbled up asynchronously to cb.
func (s *handleState[Ev, Eff, VM, Op, Out]) deliver(effects []Eff, cb func([]Eff)) {
	if len(effects) == 0 {
		return
	}
	if cb == nil {
		s.logger.Debug("follow-up effects discarded: no callback",
			"count", len(effects),
		)
		return
	}
	cb(effects)
}

// processEffects offers every effect to the middleware and returns the
// ones it did not take, in order.
func (s *handleState[Ev, Eff, VM, Op, Out]) processEffects(effects []Eff, cb func([]Eff)) []Eff {
	var rest []Eff
	for _, eff := range effects {
		if s.tryHandle(eff, cb) {
			continue
		}
		rest = append(rest, eff)
	}
	return rest
}

// tryHandle offers eff to the middleware.
//
// Go has no goroutine identity, so a resolution that arrives while the
// request is still being registered waits for registration to finish. A
// synchronous resolution blocks the registering goroutine itself, so it
// can only time out, and then panics.
func (s *handleState[Ev, Eff, VM, Op, Out]) tryHandle(eff Eff, cb func([]Eff)) bool {
	ref := weak.Make(s)
	logger := s.logger
	registered := make(chan struct{})
	timeout := s.syncTimeout

	defer close(registered)

	return s.mw.TryProcessEffectWith(eff, func(req *command.Request[Op, Out], out Out) {
		if !awaitRegistration(registered, timeout) {
			panic(command.ErrSynchronousResolve)
		}

		st := ref.Value()
		if st == nil || st.closed.Load() {
			logger.Debug("resolution dropped: layer gone",
				"op", req.OperationName(),
			)
			return
		}
		st.resolve(req, out, cb)
	})
}

func awaitRegistration(registered <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-registered:
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-registered:
		return true
	case <-timer.C:
		return false
	}
}

func (s *handleState[Ev, Eff, VM, Op, Out]) resolve(req *command.Request[Op, Out], out Out, cb func([]Eff)) {
	effects, err := s.inner.Resolve(req, out, s.wrapCallback(cb))
	if err != nil {
		// Cancelled requests are expected after a stream was aborted.
		if command.IsNotFound(err) {
			s.logger.Debug("resolution dropped: request inert",
				"op", req.OperationName(),
			)
			return
		}
		s.logger.Warn("middleware resolution failed",
			"op", req.OperationName(),
			"error", err,
		)
		return
	}

	s.logger.Debug("effect resolved by middleware",
		"op", req.OperationName(),
		"follow_up", len(effects),
	)

	s.deliver(s.processEffects(effects, cb), cb)
}

var _ Layer[struct{}, struct{}, struct{}] = (*HandleEffectLayer[struct{}, struct{}, struct{}, struct{}, struct{}])(nil)
